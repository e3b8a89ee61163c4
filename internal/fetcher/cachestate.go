package fetcher

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"eve-market-hand/internal/models"
)

// CacheStateStore persists the per-market fetch throttle outside the market
// databases, so a process restart does not immediately re-violate the
// upstream cache window. It is purely a throttle: a lost or corrupt file
// only costs one premature fetch, so corruption is swallowed, never fatal.
type CacheStateStore struct {
	dir string
}

func NewCacheStateStore(dir string) *CacheStateStore {
	return &CacheStateStore{dir: dir}
}

func (s *CacheStateStore) path(market string) string {
	return filepath.Join(s.dir, fmt.Sprintf("cache_state_%s.json", market))
}

// Load returns the market's cache state, or an epoch-zero default when the
// file is absent or unreadable.
func (s *CacheStateStore) Load(market string) models.CacheState {
	content, err := os.ReadFile(s.path(market))
	if err != nil {
		return models.CacheState{}
	}
	var state models.CacheState
	if err := json.Unmarshal(content, &state); err != nil {
		log.Printf("[CacheState] corrupt state file for %s, starting fresh: %v", market, err)
		return models.CacheState{}
	}
	return state
}

// Save persists the state with a temp-write-then-rename so a crash between
// pages never leaves a torn file behind.
func (s *CacheStateStore) Save(market string, state models.CacheState) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache state directory: %w", err)
	}
	content, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode cache state: %w", err)
	}
	tmp := s.path(market) + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("failed to write cache state: %w", err)
	}
	if err := os.Rename(tmp, s.path(market)); err != nil {
		return fmt.Errorf("failed to replace cache state: %w", err)
	}
	return nil
}
