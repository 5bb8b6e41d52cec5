package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemp(t *testing.T) {
	id := NewTemp()
	assert.True(t, id.IsTemp())
	assert.False(t, id.IsZero())
	assert.Contains(t, id.String(), TempPrefix)

	other := NewTemp()
	assert.NotEqual(t, id.String(), other.String())
}

func TestParse(t *testing.T) {
	assert.True(t, Parse("tmp-abc").IsTemp())
	assert.False(t, Parse("srv-1").IsTemp())
	assert.False(t, Parse("").IsTemp())
	assert.True(t, Parse("").IsZero())
}

func TestRemote(t *testing.T) {
	id := Remote("srv-42")
	assert.False(t, id.IsTemp())
	assert.Equal(t, "srv-42", id.String())
}

func TestMustRemote(t *testing.T) {
	assert.Equal(t, "srv-1", Parse("srv-1").MustRemote())
	require.Panics(t, func() { NewTemp().MustRemote() })
}
