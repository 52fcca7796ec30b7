package state

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSaveWindow batches rapid session changes into one disk write.
// Position ticks arrive twice a second; without batching every tick
// would hit the disk.
const DefaultSaveWindow = 1 * time.Second

// SnapshotFunc captures the current session as a persistable record.
type SnapshotFunc func() Record

// Saver debounces session writes: repeated triggers within the window
// collapse into one Save once the window elapses quietly.
type Saver struct {
	store    *Store
	snapshot SnapshotFunc
	window   time.Duration

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

// NewSaver creates a debounced saver over the store.
func NewSaver(store *Store, snapshot SnapshotFunc, window time.Duration) *Saver {
	if window <= 0 {
		window = DefaultSaveWindow
	}
	return &Saver{
		store:    store,
		snapshot: snapshot,
		window:   window,
	}
}

// Trigger marks the session dirty. The write happens once the debounce
// window elapses without further triggers.
func (s *Saver) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.pending = true

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.window, s.flush)
}

// flush writes the snapshot if one is pending.
func (s *Saver) flush() {
	s.mu.Lock()
	doSave := s.pending && !s.stopped
	s.pending = false
	s.mu.Unlock()

	if !doSave {
		return
	}
	if err := s.store.Save(s.snapshot()); err != nil {
		log.Error().Err(err).Msg("Session save failed")
	}
}

// Close flushes any pending write and stops the saver.
func (s *Saver) Close() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	doSave := s.pending
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if doSave {
		if err := s.store.Save(s.snapshot()); err != nil {
			log.Error().Err(err).Msg("Final session save failed")
		}
	}
}
