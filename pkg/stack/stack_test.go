package stack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform/stackform/modules/git"
)

func TestOrderRoundTrip(t *testing.T) {
	names := []string{"feature-x", "fix-null-deref", "docs"}
	assert.Equal(t, names, parseOrder(formatOrder(names)))
	assert.Nil(t, formatOrder(nil))
	assert.Empty(t, parseOrder(nil))
	// stray blank lines are harmless
	assert.Equal(t, []string{"a", "b"}, parseOrder([]byte("a\n\nb\n")))
}

func TestAllPatchesOrder(t *testing.T) {
	s := testStack(t, []string{"a"}, []string{"u"}, []string{"h"})
	assert.Equal(t, []string{"a", "u", "h"}, s.AllPatches())
}

func TestPatchRef(t *testing.T) {
	assert.Equal(t, "refs/patches/main/feature-x", patchRef("main", "feature-x"))
	assert.Equal(t, "refs/stacks/main", logRef("main"))
}

func TestSnapshotMetaRoundTrip(t *testing.T) {
	repo, err := git.New(context.Background(), t.TempDir())
	require.NoError(t, err)
	head := repo.GetCommit("e8ad84c41c2acde27c77fa212b8865cd3acfe6fb")
	commits := map[string]*git.Commit{
		"a": repo.GetCommit("a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"),
		"u": repo.GetCommit("b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3"),
	}
	meta := snapshotMeta(head, []string{"a"}, []string{"u"}, nil, commits)
	assert.Contains(t, meta, "applied:\n  a a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2\n")
	assert.Equal(t, head.OID(), snapshotHead([]byte(meta)))
	assert.Equal(t, "", snapshotHead([]byte("version: 1\n")))
}

func TestSetOrderRejectsDuplicates(t *testing.T) {
	s := testStack(t, nil, nil, nil)
	err := s.SetOrder([]string{"a"}, []string{"a"}, nil)
	require.Error(t, err)
}
