package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefault(t *testing.T) {
	entries, err := Resolve(nil)
	require.NoError(t, err)
	require.Len(t, entries, len(DefaultOrder))
	for i, it := range DefaultOrder {
		assert.Equal(t, it, entries[i].Item)
		assert.NotEmpty(t, entries[i].Icon)
	}
}

func TestResolveOrderAndNormalisation(t *testing.T) {
	entries, err := Resolve([]string{"News", " watchlists ", "dashboard"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, News, entries[0].Item)
	assert.Equal(t, IconNewspaper, entries[0].Icon)
	assert.Equal(t, Watchlists, entries[1].Item)
	assert.Equal(t, Dashboard, entries[2].Item)
}

func TestResolveRejectsUnknownAndDuplicate(t *testing.T) {
	_, err := Resolve([]string{"dashboard", "portfolio"})
	assert.ErrorContains(t, err, `unknown menu item "portfolio"`)

	_, err = Resolve([]string{"news", "NEWS"})
	assert.ErrorContains(t, err, "duplicate menu item")
}

func TestEveryItemHasAnIcon(t *testing.T) {
	for _, it := range DefaultOrder {
		e, ok := Lookup(it)
		require.True(t, ok, "missing catalog entry for %s", it)
		assert.NotEmpty(t, e.Label)
		assert.NotEmpty(t, e.Icon)
		assert.NotEmpty(t, e.Glyph)
	}
	_, ok := Lookup("nope")
	assert.False(t, ok)
}
