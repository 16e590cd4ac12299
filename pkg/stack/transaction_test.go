package stack

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform/stackform/modules/git"
	"github.com/stackform/stackform/pkg/display"
)

func testStack(t *testing.T, applied, unapplied, hidden []string) *Stack {
	t.Helper()
	repo, err := git.New(context.Background(), t.TempDir())
	require.NoError(t, err)
	s := &Stack{
		repo:      repo,
		name:      "main",
		applied:   applied,
		unapplied: unapplied,
		hidden:    hidden,
	}
	s.patches = &Patches{stack: s}
	return s
}

func stagedTransaction(t *testing.T, s *Stack) *Transaction {
	t.Helper()
	return &Transaction{
		stack:          s,
		msg:            "test",
		out:            display.New(io.Discard, io.Discard),
		patches:        make(map[string]*git.Commit),
		applied:        s.Applied(),
		unapplied:      s.Unapplied(),
		hidden:         s.Hidden(),
		allowConflicts: func(*Transaction) bool { return false },
	}
}

func TestPopPatchesNoMatch(t *testing.T) {
	s := testStack(t, []string{"a", "b", "c"}, []string{"u"}, nil)
	tr := stagedTransaction(t, s)
	incidental := tr.PopPatches(func(string) bool { return false })
	assert.Empty(t, incidental)
	assert.Equal(t, []string{"a", "b", "c"}, tr.Applied())
	assert.Equal(t, []string{"u"}, tr.Unapplied())
}

func TestPopPatchesMiddle(t *testing.T) {
	s := testStack(t, []string{"a", "b", "c"}, []string{"u"}, nil)
	tr := stagedTransaction(t, s)
	incidental := tr.PopPatches(func(pn string) bool { return pn == "b" })
	// c had to come off too, and lands in front of b on unapplied
	assert.Equal(t, []string{"c"}, incidental)
	assert.Equal(t, []string{"a"}, tr.Applied())
	assert.Equal(t, []string{"c", "b", "u"}, tr.Unapplied())
}

func TestPopPatchesSplitKeepsOrder(t *testing.T) {
	s := testStack(t, []string{"a", "b", "c", "d"}, nil, nil)
	tr := stagedTransaction(t, s)
	incidental := tr.PopPatches(func(pn string) bool { return pn == "b" || pn == "d" })
	assert.Equal(t, []string{"c"}, incidental)
	assert.Equal(t, []string{"a"}, tr.Applied())
	// incidental pops first, then the selected ones, then old unapplied
	assert.Equal(t, []string{"c", "b", "d"}, tr.Unapplied())
}

func TestDeletePatchesEverywhere(t *testing.T) {
	s := testStack(t, []string{"a", "b"}, []string{"u1", "u2"}, []string{"h"})
	tr := stagedTransaction(t, s)
	incidental, err := tr.DeletePatches(context.Background(),
		func(pn string) bool { return pn == "a" || pn == "u1" || pn == "h" }, true)
	require.NoError(t, err)
	// deleting a pops b incidentally
	assert.Equal(t, []string{"b"}, incidental)
	assert.Empty(t, tr.Applied())
	assert.Equal(t, []string{"b", "u2"}, tr.Unapplied())
	assert.Empty(t, tr.Hidden())
	// tombstones for every deleted patch
	for _, pn := range []string{"a", "u1", "h"} {
		c, ok := tr.patches[pn]
		require.True(t, ok, pn)
		assert.Nil(t, c)
	}
	_, ok := tr.patches["b"]
	assert.False(t, ok)
}

func TestDeleteAllLeavesStackEmpty(t *testing.T) {
	s := testStack(t, []string{"a", "b"}, []string{"u"}, []string{"h"})
	tr := stagedTransaction(t, s)
	incidental, err := tr.DeletePatches(context.Background(), func(string) bool { return true }, true)
	require.NoError(t, err)
	assert.Empty(t, incidental)
	assert.Empty(t, tr.Applied())
	assert.Empty(t, tr.Unapplied())
	assert.Empty(t, tr.Hidden())
	assert.Len(t, tr.patches, 4)
}

func TestReorderPopOnly(t *testing.T) {
	s := testStack(t, []string{"a", "b", "c"}, []string{"u"}, nil)
	tr := stagedTransaction(t, s)
	// target keeps the common prefix [a]; b and c are popped, nothing
	// is pushed, so no merge machinery runs
	err := tr.ReorderPatches(context.Background(),
		[]string{"a"}, []string{"b", "c", "u"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tr.Applied())
	assert.Equal(t, []string{"b", "c", "u"}, tr.Unapplied())
	assert.Empty(t, tr.Hidden())
}

func TestReorderRejectsForeignSets(t *testing.T) {
	s := testStack(t, []string{"a", "b"}, nil, nil)
	tr := stagedTransaction(t, s)
	err := tr.ReorderPatches(context.Background(),
		[]string{"a"}, []string{"b", "ghost"}, nil, nil)
	require.Error(t, err)
	assert.True(t, IsTransactionError(err))
}

func TestRemoveFromOne(t *testing.T) {
	first, second := removeFromOne([]string{"x", "y"}, []string{"z"}, "y")
	assert.Equal(t, []string{"x"}, first)
	assert.Equal(t, []string{"z"}, second)

	first, second = removeFromOne([]string{"x"}, []string{"z", "y"}, "y")
	assert.Equal(t, []string{"x"}, first)
	assert.Equal(t, []string{"z"}, second)

	first, second = removeFromOne([]string{"x"}, []string{"z"}, "missing")
	assert.Equal(t, []string{"x"}, first)
	assert.Equal(t, []string{"z"}, second)
}

func TestEqualStringSets(t *testing.T) {
	assert.True(t, equalStringSets([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, equalStringSets([]string{"a", "a"}, []string{"a", "b"}))
	assert.False(t, equalStringSets([]string{"a"}, []string{"a", "b"}))
	assert.True(t, equalStringSets(nil, nil))
}

func TestPrintCurrentPatch(t *testing.T) {
	for _, tc := range []struct {
		name string
		old  []string
		new  []string
		want string
	}{
		{"both empty", nil, nil, ""},
		{"emptied", []string{"a"}, nil, "No patch applied\n"},
		{"first push", nil, []string{"a"}, "Now at patch \"a\"\n"},
		{"same top", []string{"a", "b"}, []string{"a", "b"}, ""},
		{"new top", []string{"a"}, []string{"a", "b"}, "Now at patch \"b\"\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var stdout bytes.Buffer
			tr := &Transaction{out: display.New(&stdout, io.Discard)}
			tr.printCurrentPatch(tc.old, tc.new)
			assert.Equal(t, tc.want, stdout.String())
		})
	}
}

func TestApplyPushFromHidden(t *testing.T) {
	s := testStack(t, []string{"a"}, []string{"u"}, []string{"h"})
	tr := stagedTransaction(t, s)
	tr.applyPush(&pendingPush{name: "h"})
	assert.Equal(t, []string{"a", "h"}, tr.Applied())
	assert.Equal(t, []string{"u"}, tr.Unapplied())
	assert.Empty(t, tr.Hidden())
}

func TestHaltErrors(t *testing.T) {
	tr := &Transaction{out: display.New(io.Discard, io.Discard)}
	err := tr.halt("merge conflict")
	assert.True(t, IsHalt(err))
	assert.Equal(t, "merge conflict", tr.errMsg)
	assert.False(t, IsHalt(errAborted()))
	assert.True(t, IsTransactionError(errAborted()))
}
