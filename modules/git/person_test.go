package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePerson(t *testing.T) {
	p, err := ParsePerson("Pat Doe <pdoe@example.org> 1337892984 -0700")
	require.NoError(t, err)
	assert.Equal(t, "Pat Doe", p.Name)
	assert.Equal(t, "pdoe@example.org", p.Email)
	assert.Equal(t, "Pat Doe <pdoe@example.org>", p.NameEmail())
	// format round trip
	assert.Equal(t, "Pat Doe <pdoe@example.org> 1337892984 -0700", p.String())
}

func TestParsePersonEmptyName(t *testing.T) {
	p, err := ParsePerson("<bot@example.org> 1 +0000")
	require.NoError(t, err)
	assert.Equal(t, "", p.Name)
	assert.Equal(t, "bot@example.org", p.Email)
}

func TestParsePersonMalformed(t *testing.T) {
	_, err := ParsePerson("no email here 1337892984 -0700")
	require.Error(t, err)
}

func TestPersonEq(t *testing.T) {
	a, err := ParsePerson("Pat Doe <pdoe@example.org> 1337892984 -0700")
	require.NoError(t, err)
	b, err := ParsePerson("Pat Doe <pdoe@example.org> 1337892984 -0700")
	require.NoError(t, err)
	assert.True(t, a.Eq(b))
	assert.False(t, a.Eq(b.WithEmail("other@example.org")))
	assert.False(t, a.Eq(nil))
	var nilPerson *Person
	assert.True(t, nilPerson.Eq(nil))
}
