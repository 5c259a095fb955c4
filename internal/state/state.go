// Package state tracks, per project, the last modification timestamp
// whose detail blob was durably written to storage. The staleness check
// is an exact string compare: a timestamp that differs in any way, even
// only in formatting, reads as stale and forces a re-sync of that
// project. That is deliberate; the source's timestamps are opaque here.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"tmmirror/internal/storage"
)

// State is the incremental sync watermark map. Safe for concurrent use.
type State struct {
	mu      sync.Mutex
	entries map[string]string
}

// New returns an empty state.
func New() *State {
	return &State{entries: map[string]string{}}
}

// Load reads the state object from the store. A missing object yields
// an empty state; a present but unparsable object is an error.
func Load(ctx context.Context, store storage.ObjectStore) (*State, error) {
	data, err := store.Get(ctx, storage.KeyState)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return New(), nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return &State{entries: entries}, nil
}

// Save writes the full mapping back to the store. Callers invoke this
// exactly once, after all other artifacts of a run are durable.
func (s *State) Save(ctx context.Context, store storage.ObjectStore) error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.entries, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := store.Put(ctx, storage.KeyState, data, storage.ContentTypeJSON); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// IsStale reports whether the project needs a detail re-fetch: true when
// the id is unknown or the stored timestamp differs from lastUpdated.
func (s *State) IsStale(id int, lastUpdated string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.entries[strconv.Itoa(id)]
	if !ok || stored == "" {
		return true
	}
	return stored != lastUpdated
}

// MarkSynced records lastUpdated for the project, overwriting any prior
// value.
func (s *State) MarkSynced(id int, lastUpdated string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strconv.Itoa(id)] = lastUpdated
}

// Len returns the number of tracked projects.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
