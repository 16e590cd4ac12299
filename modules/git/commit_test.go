package git

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()
	r, err := New(context.Background(), t.TempDir())
	require.NoError(t, err)
	return r
}

func TestParseCommitData(t *testing.T) {
	r := testRepository(t)
	raw := []byte(`tree e8ad84c41c2acde27c77fa212b8865cd3acfe6fb
parent a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2
parent b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3
author Pat Doe <pdoe@example.org> 1337892984 -0700
committer Pat Doe <pdoe@example.org> 1337892985 -0700

subject line

body`)
	cd, err := ParseCommitData(r, raw)
	require.NoError(t, err)
	assert.Equal(t, "e8ad84c41c2acde27c77fa212b8865cd3acfe6fb", cd.Tree.OID())
	require.Len(t, cd.Parents, 2)
	assert.Nil(t, cd.Parent())
	assert.Equal(t, "Pat Doe", cd.Author.Name)
	assert.Equal(t, int64(1337892985), cd.Committer.When.Time().Unix())
	assert.Equal(t, "subject line\n\nbody", cd.Message)
}

func TestParseCommitDataContinuationHeader(t *testing.T) {
	r := testRepository(t)
	raw := []byte(`tree e8ad84c41c2acde27c77fa212b8865cd3acfe6fb
gpgsig -----BEGIN PGP SIGNATURE-----
 line two
 -----END PGP SIGNATURE-----
author Pat Doe <pdoe@example.org> 1337892984 -0700
committer Pat Doe <pdoe@example.org> 1337892984 -0700

msg`)
	cd, err := ParseCommitData(r, raw)
	require.NoError(t, err)
	// folded continuation lines must not derail the known headers
	assert.Equal(t, "Pat Doe", cd.Author.Name)
	assert.Equal(t, "msg", cd.Message)
}

func TestParseCommitDataNoTree(t *testing.T) {
	r := testRepository(t)
	_, err := ParseCommitData(r, []byte("author Pat Doe <p@e.org> 1 +0000\n\nmsg"))
	require.Error(t, err)
}

func TestCommitDataWithers(t *testing.T) {
	r := testRepository(t)
	base := &CommitData{
		Tree:    r.GetTree("e8ad84c41c2acde27c77fa212b8865cd3acfe6fb"),
		Message: "one",
	}
	mod := base.WithMessage("two")
	assert.Equal(t, "one", base.Message)
	assert.Equal(t, "two", mod.Message)
	assert.Equal(t, base.Tree, mod.Tree)

	p := r.GetCommit("a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2")
	withParent := base.WithParent(p)
	require.Len(t, withParent.Parents, 1)
	assert.Equal(t, p, withParent.Parent())
	assert.Empty(t, base.Parents)

	two := withParent.AddParent(r.GetCommit("b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3"))
	assert.Len(t, two.Parents, 2)
	assert.Len(t, withParent.Parents, 1)
}

func TestCommitDataEnv(t *testing.T) {
	when, err := ParseDate(context.Background(), "1337892984 -0700")
	require.NoError(t, err)
	cd := &CommitData{
		Author: &Person{Name: "Pat Doe", Email: "pdoe@example.org", When: when},
		// committer deliberately cleared: re-stamped by git
	}
	env := cd.Env()
	assert.Contains(t, env, "GIT_AUTHOR_NAME=Pat Doe")
	assert.Contains(t, env, "GIT_AUTHOR_EMAIL=pdoe@example.org")
	assert.Contains(t, env, "GIT_AUTHOR_DATE=1337892984 -0700")
	for _, kv := range env {
		assert.NotContains(t, kv, "GIT_COMMITTER")
	}
}
