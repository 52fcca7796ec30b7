// Package state persists the playback session snapshot between runs:
// queue track IDs, cursor, shuffle flag and last playback position.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// SchemaVersion guards against reading snapshots written by an
// incompatible build. Bump when Record changes shape.
const SchemaVersion = 1

const snapshotFile = "session.json"

// Record is the persisted session snapshot. Only track IDs are stored;
// descriptors are rehydrated from the library cache on startup.
type Record struct {
	SchemaVersion  int      `json:"schemaVersion"`
	TrackIDs       []string `json:"trackIds"`
	Cursor         int      `json:"cursor"`
	Shuffle        bool     `json:"shuffle"`
	PositionMillis int64    `json:"positionMillis"`
	Volume         int      `json:"volume"`
}

// Store reads and writes session snapshots under a directory. Writes go
// through a temp file and rename so a crash mid-write never corrupts the
// previous snapshot.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, snapshotFile)
}

// Save writes the record atomically.
func (s *Store) Save(rec Record) error {
	rec.SchemaVersion = SchemaVersion

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. A missing, unreadable or
// incompatible snapshot yields (nil, nil): startup proceeds with a clean
// session instead of failing.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		log.Warn().Err(err).Str("path", s.Path()).Msg("Session snapshot unreadable, starting clean")
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Str("path", s.Path()).Msg("Session snapshot corrupt, starting clean")
		return nil, nil
	}
	if rec.SchemaVersion != SchemaVersion {
		log.Warn().
			Int("found", rec.SchemaVersion).
			Int("want", SchemaVersion).
			Msg("Session snapshot schema mismatch, starting clean")
		return nil, nil
	}
	if !valid(rec) {
		log.Warn().Msg("Session snapshot failed integrity check, starting clean")
		return nil, nil
	}
	return &rec, nil
}

// valid rejects snapshots whose cursor points outside the stored queue.
func valid(rec Record) bool {
	if rec.Cursor < -1 || rec.Cursor >= len(rec.TrackIDs) {
		return false
	}
	if rec.PositionMillis < 0 {
		return false
	}
	return true
}
