// Package mediasession integrates playback with OS media controls:
// metadata and transport state flow out, hardware key commands flow in.
package mediasession

import "time"

// TransportState is the playback state as the OS sees it.
type TransportState int

const (
	TransportStopped TransportState = iota
	TransportPlaying
	TransportPaused
)

// String returns the MPRIS playback status name.
func (s TransportState) String() string {
	switch s {
	case TransportPlaying:
		return "Playing"
	case TransportPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// Metadata is the now-playing information shown by the OS.
type Metadata struct {
	TrackID  string
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
	ArtURL   string
}

// Command is a transport command originating from the OS.
type Command int

const (
	CmdPlay Command = iota
	CmdPause
	CmdPlayPause
	CmdStop
	CmdNext
	CmdPrevious
	CmdSeek
	CmdSetShuffle
)

// String returns the command name for logs.
func (c Command) String() string {
	switch c {
	case CmdPlay:
		return "Play"
	case CmdPause:
		return "Pause"
	case CmdPlayPause:
		return "PlayPause"
	case CmdStop:
		return "Stop"
	case CmdNext:
		return "Next"
	case CmdPrevious:
		return "Previous"
	case CmdSeek:
		return "Seek"
	case CmdSetShuffle:
		return "SetShuffle"
	default:
		return "Unknown"
	}
}

// CommandData carries a command's argument: the seek target for CmdSeek,
// the shuffle flag for CmdSetShuffle.
type CommandData struct {
	Position time.Duration
	Shuffle  bool
}

// CommandHandler receives OS transport commands. Handlers are invoked
// from the session's own goroutine and must not block.
type CommandHandler func(cmd Command, data CommandData)

// Session is the OS media session surface. Implementations exist per
// platform; NoOp covers everything else.
type Session interface {
	UpdateMetadata(meta Metadata) error
	UpdateTransport(state TransportState, position time.Duration) error
	UpdateShuffle(enabled bool) error
	SetCommandHandler(handler CommandHandler)
	Close() error
}
