// Package playlist provides the ordered, mutable playback queue with a
// current-track cursor and optional shuffle order.
package playlist

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

// ErrIndexOutOfRange is returned when an operation references an index
// outside the current playlist bounds. It signals a caller contract
// violation and is never sent over any boundary.
var ErrIndexOutOfRange = errors.New("playlist: index out of range")

// NoCursor is the cursor value when no track is selected.
const NoCursor = -1

// Snapshot is an immutable copy of the playlist state handed to listeners
// and to the persistence layer.
type Snapshot struct {
	Entries []track.Descriptor
	Cursor  int
	Shuffle bool
}

// ChangeListener is invoked after every structural mutation.
type ChangeListener func(Snapshot)

// Playlist is an ordered sequence of track descriptors with a cursor.
// Mutations are driven by the playback controller's command actor; the
// internal mutex only protects snapshot reads from other goroutines.
type Playlist struct {
	mu        sync.RWMutex
	entries   []track.Descriptor
	cursor    int
	shuffle   bool
	order     []int // permutation of entry indices, non-nil only when shuffle is on
	listeners []ChangeListener

	// rng is swappable so shuffle tests can be deterministic.
	rng func(n int) int
}

// New creates an empty playlist.
func New() *Playlist {
	return &Playlist{
		cursor: NoCursor,
		rng:    rand.Intn,
	}
}

// OnChange registers a listener invoked after each structural mutation.
// Listeners must be fast; slow consumers should debounce on their side.
func (p *Playlist) OnChange(fn ChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Append adds a track to the end of the playlist.
func (p *Playlist) Append(t track.Descriptor) {
	p.mu.Lock()
	p.entries = append(p.entries, t)
	p.reshuffleLocked()
	p.mu.Unlock()
	p.notify()
}

// AppendAll adds several tracks at once, emitting a single change
// notification.
func (p *Playlist) AppendAll(tracks []track.Descriptor) {
	if len(tracks) == 0 {
		return
	}
	p.mu.Lock()
	p.entries = append(p.entries, tracks...)
	p.reshuffleLocked()
	p.mu.Unlock()
	p.notify()
}

// InsertAt inserts a track before the given index. index == len(entries)
// appends.
func (p *Playlist) InsertAt(index int, t track.Descriptor) error {
	p.mu.Lock()
	if index < 0 || index > len(p.entries) {
		p.mu.Unlock()
		return ErrIndexOutOfRange
	}
	p.entries = append(p.entries, track.Descriptor{})
	copy(p.entries[index+1:], p.entries[index:])
	p.entries[index] = t
	if p.cursor != NoCursor && index <= p.cursor {
		p.cursor++
	}
	p.reshuffleLocked()
	p.mu.Unlock()
	p.notify()
	return nil
}

// RemoveAt removes the track at the given index. If the removed index is
// the cursor, the cursor clamps to the next valid index (or NoCursor when
// the list becomes empty). Removing an index before the cursor decrements
// the cursor so it keeps pointing at the same logical track.
func (p *Playlist) RemoveAt(index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.entries) {
		p.mu.Unlock()
		return ErrIndexOutOfRange
	}
	p.entries = append(p.entries[:index], p.entries[index+1:]...)

	switch {
	case len(p.entries) == 0:
		p.cursor = NoCursor
	case index < p.cursor:
		p.cursor--
	case index == p.cursor && p.cursor >= len(p.entries):
		p.cursor = len(p.entries) - 1
	}
	p.reshuffleLocked()
	p.mu.Unlock()
	p.notify()
	return nil
}

// Clear removes all entries and resets the cursor.
func (p *Playlist) Clear() {
	p.mu.Lock()
	p.entries = nil
	p.cursor = NoCursor
	p.order = nil
	p.mu.Unlock()
	p.notify()
}

// SetShuffle toggles shuffle mode. Enabling generates a fresh permutation
// with the current track, if any, placed first so toggling never skips it.
// Disabling keeps the cursor on the same track (the cursor is always an
// entries index).
func (p *Playlist) SetShuffle(enabled bool) {
	p.mu.Lock()
	p.shuffle = enabled
	if enabled {
		p.order = p.permutationLocked()
	} else {
		p.order = nil
	}
	p.mu.Unlock()
	p.notify()
}

// SetCursor points the cursor at the given entry index.
func (p *Playlist) SetCursor(index int) error {
	p.mu.Lock()
	if index < 0 || index >= len(p.entries) {
		p.mu.Unlock()
		return ErrIndexOutOfRange
	}
	p.cursor = index
	p.mu.Unlock()
	p.notify()
	return nil
}

// Next advances the cursor along the playback order and returns the new
// current track. At the end of the order the cursor wraps to NoCursor and
// ok is false: the playlist is exhausted, playback should stop.
func (p *Playlist) Next() (t track.Descriptor, ok bool) {
	p.mu.Lock()
	defer func() {
		p.mu.Unlock()
		p.notify()
	}()

	if len(p.entries) == 0 {
		p.cursor = NoCursor
		return track.Descriptor{}, false
	}

	seq := p.sequenceLocked()
	pos := p.positionInLocked(seq)
	if pos == len(seq)-1 {
		p.cursor = NoCursor
		return track.Descriptor{}, false
	}
	p.cursor = seq[pos+1]
	return p.entries[p.cursor], true
}

// Previous retreats the cursor along the playback order. At the start of
// the order the cursor stays put and the current track is returned again.
func (p *Playlist) Previous() (t track.Descriptor, ok bool) {
	p.mu.Lock()
	defer func() {
		p.mu.Unlock()
		p.notify()
	}()

	if len(p.entries) == 0 {
		p.cursor = NoCursor
		return track.Descriptor{}, false
	}

	seq := p.sequenceLocked()
	pos := p.positionInLocked(seq)
	if pos > 0 {
		p.cursor = seq[pos-1]
	} else {
		p.cursor = seq[0]
	}
	return p.entries[p.cursor], true
}

// Current returns the track under the cursor.
func (p *Playlist) Current() (track.Descriptor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cursor == NoCursor || p.cursor >= len(p.entries) {
		return track.Descriptor{}, false
	}
	return p.entries[p.cursor], true
}

// Cursor returns the current cursor index, or NoCursor.
func (p *Playlist) Cursor() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cursor
}

// Len returns the number of entries.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// ShuffleEnabled reports whether shuffle mode is on.
func (p *Playlist) ShuffleEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shuffle
}

// Snapshot returns an immutable copy of the playlist state.
func (p *Playlist) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries := make([]track.Descriptor, len(p.entries))
	copy(entries, p.entries)
	return Snapshot{Entries: entries, Cursor: p.cursor, Shuffle: p.shuffle}
}

// Order returns a copy of the shuffle order, nil when shuffle is off.
// Exposed for tests asserting the permutation invariant.
func (p *Playlist) Order() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.order == nil {
		return nil
	}
	out := make([]int, len(p.order))
	copy(out, p.order)
	return out
}

// sequenceLocked returns the active playback order: the shuffle
// permutation when present, otherwise the identity order.
func (p *Playlist) sequenceLocked() []int {
	if p.shuffle && p.order != nil {
		return p.order
	}
	seq := make([]int, len(p.entries))
	for i := range seq {
		seq[i] = i
	}
	return seq
}

// positionInLocked returns the cursor's position inside seq, or -1 when
// no track is selected (walking then starts at the head).
func (p *Playlist) positionInLocked(seq []int) int {
	if p.cursor == NoCursor {
		return -1
	}
	for i, idx := range seq {
		if idx == p.cursor {
			return i
		}
	}
	// Cursor not found means the order is stale; treat as unselected.
	log.Warn().Int("cursor", p.cursor).Msg("Cursor missing from playback order")
	return -1
}

// reshuffleLocked regenerates the shuffle order after an entries change.
func (p *Playlist) reshuffleLocked() {
	if p.shuffle {
		p.order = p.permutationLocked()
	}
}

// permutationLocked builds a random permutation of all entry indices with
// the current cursor entry, if any, placed first.
func (p *Playlist) permutationLocked() []int {
	n := len(p.entries)
	if n == 0 {
		return []int{}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Fisher-Yates.
	for i := n - 1; i > 0; i-- {
		j := p.rng(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	if p.cursor != NoCursor {
		for i, idx := range order {
			if idx == p.cursor {
				order[0], order[i] = order[i], order[0]
				break
			}
		}
	}
	return order
}

// notify calls registered listeners with a fresh snapshot.
func (p *Playlist) notify() {
	p.mu.RLock()
	listeners := make([]ChangeListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}
	snap := p.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}
