package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectInterning(t *testing.T) {
	r := testRepository(t)
	oid := "e8ad84c41c2acde27c77fa212b8865cd3acfe6fb"
	assert.Same(t, r.GetCommit(oid), r.GetCommit(oid))
	assert.Same(t, r.GetTree(oid), r.GetTree(oid))
	assert.Same(t, r.GetBlob(oid), r.GetBlob(oid))

	o, err := r.GetObject(CommitObject, oid)
	require.NoError(t, err)
	assert.Same(t, r.GetCommit(oid), o)
	_, err = r.GetObject(TagObject, oid)
	require.Error(t, err)
}

func TestParseShowRef(t *testing.T) {
	out := []byte(`e8ad84c41c2acde27c77fa212b8865cd3acfe6fb refs/heads/main
a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2 refs/patches/main/feature-x
`)
	refs := parseShowRef(out)
	require.Len(t, refs, 2)
	assert.Equal(t, "e8ad84c41c2acde27c77fa212b8865cd3acfe6fb", refs["refs/heads/main"])
	assert.Equal(t, "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2", refs["refs/patches/main/feature-x"])
	assert.Empty(t, parseShowRef(nil))
}

func TestParseFileDiffs(t *testing.T) {
	r := testRepository(t)
	data := []byte(":100644 100755 0123456789abcdef0123456789abcdef01234567 89abcdef0123456789abcdef0123456789abcdef M\x00main.go\x00" +
		":100644 100644 0123456789abcdef0123456789abcdef01234567 0123456789abcdef0123456789abcdef01234567 R100\x00old.go\x00new.go\x00")
	diffs, err := parseFileDiffs(r, data)
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	assert.Equal(t, "M", diffs[0].Status)
	assert.Equal(t, "main.go", diffs[0].OldName)
	assert.Equal(t, "main.go", diffs[0].NewName)
	assert.Equal(t, ModeRegular, diffs[0].OldMode)
	assert.Equal(t, ModeExecutable, diffs[0].NewMode)

	assert.Equal(t, "R100", diffs[1].Status)
	assert.Equal(t, "old.go", diffs[1].OldName)
	assert.Equal(t, "new.go", diffs[1].NewName)
	// blobs intern like every other object
	assert.Same(t, diffs[1].OldBlob, diffs[1].NewBlob)
}

func TestParseFileDiffsMalformed(t *testing.T) {
	r := testRepository(t)
	_, err := parseFileDiffs(r, []byte("not a record\x00"))
	require.Error(t, err)
	_, err = parseFileDiffs(r, []byte(":100644 100644 0123456789abcdef0123456789abcdef01234567 0123456789abcdef0123456789abcdef01234567 R100\x00only-one-path\x00"))
	require.Error(t, err)
}

func TestDiffOptsArgs(t *testing.T) {
	opts := &DiffOpts{}
	assert.Equal(t, []string{"--patch", "--binary"}, opts.args())

	opts = &DiffOpts{Stat: true, Opts: []string{"--binary", "-M"}}
	assert.Equal(t, []string{"--stat", "--summary", "-M"}, opts.args())

	opts = &DiffOpts{Opts: []string{"--binary"}, PathLimits: []string{"a", "b"}}
	assert.Equal(t, []string{"--patch", "--binary", "--", "a", "b"}, opts.args())
}

func TestValidateHex(t *testing.T) {
	assert.True(t, ValidateHex("e8ad84c41c2acde27c77fa212b8865cd3acfe6fb"))
	assert.False(t, ValidateHex("e8ad84"))
	assert.False(t, ValidateHex("E8AD84C41C2ACDE27C77FA212B8865CD3ACFE6FB"))
	assert.False(t, ValidateHex("zzzd84c41c2acde27c77fa212b8865cd3acfe6fb"))
}
