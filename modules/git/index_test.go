package git

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The trivial merge cases decide on handle identity alone and must not
// touch git at all; a repository over an empty directory proves it.

func TestMergeTrivialBaseEqualsOurs(t *testing.T) {
	r := testRepository(t)
	index := r.TempIndex()
	base := r.GetTree("1111111111111111111111111111111111111111")
	theirs := r.GetTree("2222222222222222222222222222222222222222")
	current := r.GetTree("3333333333333333333333333333333333333333")

	result, indexTree, err := index.Merge(context.Background(), base, base, theirs, current)
	require.NoError(t, err)
	assert.Same(t, theirs, result)
	// the index tree hint passes through unchanged
	assert.Same(t, current, indexTree)
}

func TestMergeTrivialBaseEqualsTheirs(t *testing.T) {
	r := testRepository(t)
	index := r.TempIndex()
	base := r.GetTree("1111111111111111111111111111111111111111")
	ours := r.GetTree("2222222222222222222222222222222222222222")

	result, indexTree, err := index.Merge(context.Background(), base, ours, base, nil)
	require.NoError(t, err)
	assert.Same(t, ours, result)
	assert.Nil(t, indexTree)
}

func TestMergeTrivialOursEqualsTheirs(t *testing.T) {
	r := testRepository(t)
	index := r.TempIndex()
	base := r.GetTree("1111111111111111111111111111111111111111")
	ours := r.GetTree("2222222222222222222222222222222222222222")

	result, indexTree, err := index.Merge(context.Background(), base, ours, ours, nil)
	require.NoError(t, err)
	assert.Same(t, ours, result)
	assert.Nil(t, indexTree)
}

func TestTempIndexNames(t *testing.T) {
	r := testRepository(t)
	a := r.TempIndex()
	b := r.TempIndex()
	assert.NotEqual(t, a.Filename(), b.Filename())
	assert.True(t, strings.HasPrefix(a.Filename(), r.Directory()))
	assert.Contains(t, a.Filename(), "index.temp-")
	// deleting an index that never materialized is fine
	require.NoError(t, a.Delete())
}

func TestDefaultIndexLocation(t *testing.T) {
	r := testRepository(t)
	t.Setenv("GIT_INDEX_FILE", "")
	index := r.DefaultIndex()
	assert.True(t, strings.HasSuffix(index.Filename(), "index"))
	assert.Same(t, index, r.DefaultIndex())
}
