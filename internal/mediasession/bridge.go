package mediasession

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/player"
)

// positionUpdateInterval rate-limits position pushes to the OS. Snapshot
// ticks arrive twice a second; the shell only needs one.
const positionUpdateInterval = time.Second

// Transport is the slice of the playback controller the bridge drives.
type Transport interface {
	Play()
	Pause()
	Toggle()
	Stop()
	Next()
	Previous()
	Seek(positionMillis int64)
	SetShuffle(enabled bool)
}

// Bridge wires playback snapshots to the OS media session and OS
// commands back to the controller. Commands re-enter the controller's
// own queue, so OS keys and UI clicks serialize identically.
type Bridge struct {
	session   Session
	transport Transport

	mu           sync.Mutex
	lastTrackID  string
	lastState    TransportState
	lastShuffle  bool
	lastPosition time.Time
	started      bool
}

// NewBridge connects a session and a transport. Call Attach to start
// forwarding.
func NewBridge(session Session, transport Transport) *Bridge {
	return &Bridge{session: session, transport: transport, lastState: -1}
}

// Attach registers the bridge on both sides. The controller side is a
// snapshot listener; register it via Controller.OnSnapshot.
func (b *Bridge) Attach() player.Listener {
	b.session.SetCommandHandler(b.onCommand)
	return b.onSnapshot
}

// onSnapshot forwards state changes to the OS, deduplicating metadata
// and throttling position-only updates.
func (b *Bridge) onSnapshot(snap player.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trackID := ""
	if snap.Track != nil {
		trackID = snap.Track.ID
	}

	if trackID != b.lastTrackID {
		b.lastTrackID = trackID
		if snap.Track != nil {
			meta := Metadata{
				TrackID:  snap.Track.ID,
				Title:    snap.Track.Title,
				Artist:   snap.Track.Artist,
				Album:    snap.Track.Album,
				Duration: time.Duration(snap.Track.DurationMillis) * time.Millisecond,
				ArtURL:   snap.Track.ArtworkRef,
			}
			if err := b.session.UpdateMetadata(meta); err != nil {
				log.Warn().Err(err).Msg("Media session metadata update failed")
			}
		}
	}

	if snap.Shuffle != b.lastShuffle || !b.started {
		b.lastShuffle = snap.Shuffle
		if err := b.session.UpdateShuffle(snap.Shuffle); err != nil {
			log.Warn().Err(err).Msg("Media session shuffle update failed")
		}
	}

	state := transportStateOf(snap.Status)
	position := time.Duration(snap.PositionMillis) * time.Millisecond

	stateChanged := state != b.lastState
	now := time.Now()
	if !stateChanged && now.Sub(b.lastPosition) < positionUpdateInterval {
		return
	}
	b.lastState = state
	b.lastPosition = now
	b.started = true

	if err := b.session.UpdateTransport(state, position); err != nil {
		log.Warn().Err(err).Msg("Media session transport update failed")
	}
}

// onCommand maps OS commands onto controller commands.
func (b *Bridge) onCommand(cmd Command, data CommandData) {
	switch cmd {
	case CmdPlay:
		b.transport.Play()
	case CmdPause:
		b.transport.Pause()
	case CmdPlayPause:
		b.transport.Toggle()
	case CmdStop:
		b.transport.Stop()
	case CmdNext:
		b.transport.Next()
	case CmdPrevious:
		b.transport.Previous()
	case CmdSeek:
		b.transport.Seek(data.Position.Milliseconds())
	case CmdSetShuffle:
		b.transport.SetShuffle(data.Shuffle)
	}
}

// transportStateOf collapses the playback state machine onto the three
// states media sessions understand.
func transportStateOf(status player.Status) TransportState {
	switch status {
	case player.StatusPlaying, player.StatusLoading:
		return TransportPlaying
	case player.StatusPaused:
		return TransportPaused
	default:
		return TransportStopped
	}
}
