// Package player owns playback state and the single-actor command loop
// that keeps it consistent across the UI, hardware keys and the OS media
// session.
package player

import (
	"context"
	"time"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

// Status is the playback state machine's current state.
type Status string

// Playback states.
const (
	StatusStopped Status = "stopped"
	StatusLoading Status = "loading"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
	StatusError   Status = "error"
)

// Snapshot is an immutable projection of playback state taken after each
// transition. UI and bridge consumers read snapshots, never live state.
type Snapshot struct {
	Status         Status
	PositionMillis int64
	Volume         int
	Shuffle        bool
	AutoAdvance    bool

	// Track is the current track descriptor, nil when none.
	Track *track.Descriptor

	// Err carries the last user-visible error message while Status is
	// StatusError, empty otherwise.
	Err string
}

// StreamHandle is a resolved, possibly time-limited stream locator.
type StreamHandle struct {
	URL       string
	ExpiresAt time.Time
}

// Expired reports whether the handle's expiry hint has passed.
func (h StreamHandle) Expired(now time.Time) bool {
	return !h.ExpiresAt.IsZero() && now.After(h.ExpiresAt)
}

// Resolver turns a track descriptor into a playable stream handle.
// Implementations bound their own wait; the controller treats any error
// as a reported, non-retried resolution failure.
type Resolver interface {
	Resolve(ctx context.Context, t track.Descriptor) (StreamHandle, error)
}

// Listener receives playback snapshots. Listeners are called from the
// controller's actor goroutine and must not block.
type Listener func(Snapshot)
