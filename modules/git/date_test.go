package git

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRaw(t *testing.T) {
	d, err := ParseDate(context.Background(), "1337892984 -0700")
	require.NoError(t, err)
	assert.Equal(t, int64(1337892984), d.Time().Unix())
	assert.Equal(t, "1337892984 -0700", d.String())
}

func TestParseDateRawColonZone(t *testing.T) {
	d, err := ParseDate(context.Background(), "1337892984 +05:30")
	require.NoError(t, err)
	assert.Equal(t, "1337892984 +0530", d.String())
}

func TestParseDateISO(t *testing.T) {
	d, err := ParseDate(context.Background(), "2012-05-24 13:36:24 +0200")
	require.NoError(t, err)
	assert.Equal(t, "2012-05-24 13:36:24 +0200", d.ISO())
}

func TestParseDateISOColonZone(t *testing.T) {
	d, err := ParseDate(context.Background(), "2012-05-24 13:36:24 +02:00")
	require.NoError(t, err)
	assert.Equal(t, "2012-05-24 13:36:24 +0200", d.ISO())
}

func TestParseDateISOOutOfRange(t *testing.T) {
	_, err := ParseDate(context.Background(), "2012-13-24 13:36:24 +0200")
	require.Error(t, err)
	var de *DateError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "date", de.Kind)
}

func TestParseTimeZoneBad(t *testing.T) {
	_, err := ParseTimeZone("0700")
	require.Error(t, err)
	_, err = ParseTimeZone("+7:00")
	require.Error(t, err)
}

func TestDateEqual(t *testing.T) {
	a, err := ParseDate(context.Background(), "1337892984 -0700")
	require.NoError(t, err)
	b, err := ParseDate(context.Background(), "1337892984 -0700")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	// same instant, different recorded offset
	c, err := ParseDate(context.Background(), "1337892984 +0000")
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(Date{}))
	assert.True(t, Date{}.Equal(Date{}))
}
