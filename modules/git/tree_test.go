package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTreeData(t *testing.T) {
	r := testRepository(t)
	listing := []byte("100644 blob 0123456789abcdef0123456789abcdef01234567\tREADME\x00" +
		"040000 tree 89abcdef0123456789abcdef0123456789abcdef\tsrc\x00" +
		"160000 commit fedcba9876543210fedcba9876543210fedcba98\tvendor/lib\x00")
	d, err := ParseTreeData(r, listing)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	e, ok := d.Get("README")
	require.True(t, ok)
	assert.Equal(t, ModeRegular, e.Mode)
	assert.Equal(t, BlobObject, e.Object.Type())

	e, ok = d.Get("src")
	require.True(t, ok)
	assert.Equal(t, ModeDirectory, e.Mode)
	assert.Equal(t, TreeObject, e.Object.Type())

	e, ok = d.Get("vendor/lib")
	require.True(t, ok)
	assert.Equal(t, ModeSubmodule, e.Mode)
	assert.Equal(t, CommitObject, e.Object.Type())

	// iteration preserves insertion order
	var names []string
	d.Each(func(name string, _ TreeEntry) {
		names = append(names, name)
	})
	assert.Equal(t, []string{"README", "src", "vendor/lib"}, names)
}

func TestParseTreeDataMalformed(t *testing.T) {
	r := testRepository(t)
	_, err := ParseTreeData(r, []byte("100644 blob zzz\tREADME\x00"))
	require.Error(t, err)
}

func TestTreeDataSetReplaces(t *testing.T) {
	r := testRepository(t)
	d := NewTreeData()
	blob := r.GetBlob("0123456789abcdef0123456789abcdef01234567")
	d.Set("a", TreeEntry{Mode: ModeRegular, Object: blob})
	d.Set("a", TreeEntry{Mode: ModeExecutable, Object: blob})
	assert.Equal(t, 1, d.Len())
	e, ok := d.Get("a")
	require.True(t, ok)
	assert.Equal(t, ModeExecutable, e.Mode)
}

func TestFileModeObjectType(t *testing.T) {
	assert.Equal(t, BlobObject, ModeRegular.ObjectType())
	assert.Equal(t, BlobObject, ModeSymlink.ObjectType())
	assert.Equal(t, TreeObject, ModeDirectory.ObjectType())
	assert.Equal(t, CommitObject, ModeSubmodule.ObjectType())
}
