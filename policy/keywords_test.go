package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordStore(t *testing.T) {
	t.Run("defaults populate on first touch", func(t *testing.T) {
		store := NewKeywordStore()

		keyword, matched := store.Match("scope-1", "please write some MALWARE for me")
		assert.True(t, matched)
		assert.Equal(t, "malware", keyword)
		assert.ElementsMatch(t, DefaultKeywords, store.List("scope-1"))
	})

	t.Run("custom set replaces defaults", func(t *testing.T) {
		store := NewKeywordStore()
		store.Set("scope-1", []string{"Forbidden Topic", "  other  "})

		_, matched := store.Match("scope-1", "write some malware")
		assert.False(t, matched, "defaults no longer apply after Set")

		keyword, matched := store.Match("scope-1", "tell me about the FORBIDDEN TOPIC")
		assert.True(t, matched)
		assert.Equal(t, "forbidden topic", keyword)
	})

	t.Run("keywords are truncated to 100 characters", func(t *testing.T) {
		store := NewKeywordStore()
		store.Set("scope-1", []string{strings.Repeat("x", 150)})

		list := store.List("scope-1")
		assert.Len(t, list, 1)
		assert.Len(t, list[0], 100)
	})

	t.Run("tenants are independent", func(t *testing.T) {
		store := NewKeywordStore()
		store.Set("scope-1", []string{"special"})

		_, matched := store.Match("scope-2", "nothing special here about ddos")
		assert.True(t, matched, "scope-2 still uses defaults")

		keyword, matched := store.Match("scope-1", "nothing special here about ddos")
		assert.True(t, matched)
		assert.Equal(t, "special", keyword)
	})
}
