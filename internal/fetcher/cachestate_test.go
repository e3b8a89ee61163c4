package fetcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"eve-market-hand/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStateDefaultWhenMissing(t *testing.T) {
	store := NewCacheStateStore(t.TempDir())

	state := store.Load("jita")
	assert.True(t, state.LastFetchTime.IsZero())
	assert.True(t, state.NextAllowedFetch.IsZero())
}

func TestCacheStateRoundTrip(t *testing.T) {
	store := NewCacheStateStore(t.TempDir())

	saved := models.CacheState{
		LastFetchTime:    time.Now().UTC().Truncate(time.Second),
		NextAllowedFetch: time.Now().UTC().Add(5 * time.Minute).Truncate(time.Second),
	}
	require.NoError(t, store.Save("jita", saved))

	loaded := store.Load("jita")
	assert.True(t, saved.LastFetchTime.Equal(loaded.LastFetchTime))
	assert.True(t, saved.NextAllowedFetch.Equal(loaded.NextAllowedFetch))
}

func TestCacheStatePerMarket(t *testing.T) {
	store := NewCacheStateStore(t.TempDir())

	require.NoError(t, store.Save("jita", models.CacheState{
		NextAllowedFetch: time.Now().Add(time.Hour),
	}))

	assert.True(t, store.Load("gsf").NextAllowedFetch.IsZero(),
		"markets must not share throttle state")
}

func TestCacheStateCorruptionSwallowed(t *testing.T) {
	dir := t.TempDir()
	store := NewCacheStateStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache_state_jita.json"), []byte("{not json"), 0o644))

	state := store.Load("jita")
	assert.True(t, state.NextAllowedFetch.IsZero(), "corrupt state must fall back to epoch default")
}
