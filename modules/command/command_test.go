package command

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitStderr(t *testing.T) {
	w := NewStderr()
	big := strings.Repeat("x", STDERR_BUFFER_LIMIT+4096)
	n, err := w.Write([]byte(big))
	require.NoError(t, err)
	assert.Equal(t, len(big), n)
	assert.Equal(t, STDERR_BUFFER_LIMIT, len(w.String()))
	// further writes are swallowed but still report success
	n, err = w.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, STDERR_BUFFER_LIMIT, len(w.String()))
}

func TestPrefixSuffixSaver(t *testing.T) {
	w := &prefixSuffixSaver{N: 4}
	_, _ = w.Write([]byte("0123456789abcdef"))
	out := string(w.Bytes())
	assert.True(t, strings.HasPrefix(out, "0123"))
	assert.True(t, strings.HasSuffix(out, "cdef"))
	assert.Contains(t, out, "omitting")
}

func TestPrefixSuffixSaverSmall(t *testing.T) {
	w := &prefixSuffixSaver{N: 32}
	_, _ = w.Write([]byte("tiny"))
	assert.Equal(t, "tiny", string(w.Bytes()))
}

func TestCommandString(t *testing.T) {
	c := New(context.Background(), "/tmp", "git", "rev-parse", "--git-dir")
	s := c.String()
	assert.Contains(t, s, "[/tmp]")
	assert.Contains(t, s, "rev-parse --git-dir")
}

func TestFromErrorNil(t *testing.T) {
	assert.Equal(t, "", FromError(nil))
	assert.Equal(t, 0, FromErrorCode(nil))
}

func TestRunExitHooksOrderAndOnce(t *testing.T) {
	var got []int
	AtExit(func() { got = append(got, 1) })
	AtExit(func() { got = append(got, 2) })
	RunExitHooks()
	require.Len(t, got, 2)
	// reverse registration order
	assert.Equal(t, []int{2, 1}, got)
	RunExitHooks()
	assert.Len(t, got, 2)
}
