package mediasession

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog/log"
)

const (
	busName         = "org.mpris.MediaPlayer2.plexplayer"
	objectPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootInterface   = "org.mpris.MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
)

// MPRIS exposes the player on the D-Bus session bus so desktop shells
// and hardware media keys can see and control playback.
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties

	mu      sync.RWMutex
	handler CommandHandler
}

var _ Session = (*MPRIS)(nil)

// NewMPRIS connects to the session bus and claims the player name.
// Callers fall back to NoOp when this fails (no bus, headless box).
func NewMPRIS() (*MPRIS, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}

	m := &MPRIS{conn: conn}

	if err := conn.Export(&mprisRoot{}, objectPath, rootInterface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("export root: %w", err)
	}
	if err := conn.Export(&mprisPlayer{session: m}, objectPath, playerInterface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("export player: %w", err)
	}

	props, err := prop.Export(conn, objectPath, m.initialProps())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("export properties: %w", err)
	}
	m.props = props

	reply, err := conn.RequestName(busName, dbus.NameFlagReplaceExisting)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already owned", busName)
	}

	log.Info().Str("name", busName).Msg("MPRIS media session registered")
	return m, nil
}

func (m *MPRIS) initialProps() prop.Map {
	return prop.Map{
		rootInterface: {
			"Identity":            {Value: "Plex Music Player", Emit: prop.EmitTrue},
			"CanQuit":             {Value: false, Emit: prop.EmitTrue},
			"CanRaise":            {Value: false, Emit: prop.EmitTrue},
			"HasTrackList":        {Value: false, Emit: prop.EmitTrue},
			"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitTrue},
			"SupportedMimeTypes":  {Value: []string{}, Emit: prop.EmitTrue},
		},
		playerInterface: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
			"Metadata":       {Value: map[string]dbus.Variant{}, Emit: prop.EmitTrue},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"Shuffle":        {Value: false, Emit: prop.EmitTrue, Writable: true, Callback: m.onShuffleWrite},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"MinimumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"MaximumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"CanGoNext":      {Value: true, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: true, Emit: prop.EmitTrue},
			"CanPlay":        {Value: true, Emit: prop.EmitTrue},
			"CanPause":       {Value: true, Emit: prop.EmitTrue},
			"CanSeek":        {Value: true, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitTrue},
		},
	}
}

// onShuffleWrite handles desktop shells toggling shuffle via the
// writable MPRIS property.
func (m *MPRIS) onShuffleWrite(c *prop.Change) *dbus.Error {
	enabled, ok := c.Value.(bool)
	if !ok {
		return prop.ErrInvalidArg
	}
	m.dispatch(CmdSetShuffle, CommandData{Shuffle: enabled})
	return nil
}

// UpdateMetadata publishes the now-playing track.
func (m *MPRIS) UpdateMetadata(meta Metadata) error {
	md := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackObjectPath(meta.TrackID)),
		"mpris:length":  dbus.MakeVariant(meta.Duration.Microseconds()),
		"xesam:title":   dbus.MakeVariant(meta.Title),
		"xesam:artist":  dbus.MakeVariant([]string{meta.Artist}),
		"xesam:album":   dbus.MakeVariant(meta.Album),
	}
	if meta.ArtURL != "" {
		md["mpris:artUrl"] = dbus.MakeVariant(meta.ArtURL)
	}
	if err := m.props.Set(playerInterface, "Metadata", dbus.MakeVariant(md)); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

// UpdateTransport publishes playback status and position.
func (m *MPRIS) UpdateTransport(state TransportState, position time.Duration) error {
	if err := m.props.Set(playerInterface, "PlaybackStatus", dbus.MakeVariant(state.String())); err != nil {
		return fmt.Errorf("set playback status: %w", err)
	}
	// Position does not emit change signals per the MPRIS spec; shells
	// poll it.
	if err := m.props.Set(playerInterface, "Position", dbus.MakeVariant(position.Microseconds())); err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	return nil
}

// UpdateShuffle publishes the shuffle flag.
func (m *MPRIS) UpdateShuffle(enabled bool) error {
	if err := m.props.Set(playerInterface, "Shuffle", dbus.MakeVariant(enabled)); err != nil {
		return fmt.Errorf("set shuffle: %w", err)
	}
	return nil
}

// SetCommandHandler registers the inbound command sink.
func (m *MPRIS) SetCommandHandler(handler CommandHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Close releases the bus name and connection.
func (m *MPRIS) Close() error {
	if _, err := m.conn.ReleaseName(busName); err != nil {
		log.Debug().Err(err).Msg("Releasing MPRIS bus name")
	}
	return m.conn.Close()
}

func (m *MPRIS) dispatch(cmd Command, data CommandData) {
	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()

	if handler == nil {
		return
	}
	log.Debug().Str("cmd", cmd.String()).Msg("Media session command")
	handler(cmd, data)
}

// trackObjectPath builds a valid D-Bus object path for a track ID.
func trackObjectPath(id string) dbus.ObjectPath {
	if id == "" {
		return dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
	}
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return dbus.ObjectPath("/com/plexplayer/track/" + string(out))
}

// mprisRoot implements the org.mpris.MediaPlayer2 methods. The player
// has no window to raise and outlives any one client, so both are no-ops.
type mprisRoot struct{}

func (r *mprisRoot) Raise() *dbus.Error { return nil }
func (r *mprisRoot) Quit() *dbus.Error  { return nil }

// mprisPlayer implements org.mpris.MediaPlayer2.Player method calls by
// forwarding them as session commands.
type mprisPlayer struct {
	session *MPRIS
}

func (p *mprisPlayer) Play() *dbus.Error {
	p.session.dispatch(CmdPlay, CommandData{})
	return nil
}

func (p *mprisPlayer) Pause() *dbus.Error {
	p.session.dispatch(CmdPause, CommandData{})
	return nil
}

func (p *mprisPlayer) PlayPause() *dbus.Error {
	p.session.dispatch(CmdPlayPause, CommandData{})
	return nil
}

func (p *mprisPlayer) Stop() *dbus.Error {
	p.session.dispatch(CmdStop, CommandData{})
	return nil
}

func (p *mprisPlayer) Next() *dbus.Error {
	p.session.dispatch(CmdNext, CommandData{})
	return nil
}

func (p *mprisPlayer) Previous() *dbus.Error {
	p.session.dispatch(CmdPrevious, CommandData{})
	return nil
}

// Seek receives a relative offset in microseconds.
func (p *mprisPlayer) Seek(offset int64) *dbus.Error {
	current, err := p.session.props.Get(playerInterface, "Position")
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	micros, _ := current.Value().(int64)
	target := time.Duration(micros+offset) * time.Microsecond
	if target < 0 {
		target = 0
	}
	p.session.dispatch(CmdSeek, CommandData{Position: target})
	return nil
}

// SetPosition receives an absolute position in microseconds.
func (p *mprisPlayer) SetPosition(_ dbus.ObjectPath, position int64) *dbus.Error {
	p.session.dispatch(CmdSeek, CommandData{Position: time.Duration(position) * time.Microsecond})
	return nil
}

func (p *mprisPlayer) OpenUri(_ string) *dbus.Error {
	// Remote streams are resolved through the library, not raw URIs.
	return nil
}
