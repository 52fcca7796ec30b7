// Package audio defines the output port contract the playback controller
// drives. Implementations live in internal/infra/output; the controller
// depends only on this interface and on the exact ordering of its events.
package audio

import (
	"context"
	"fmt"
)

// EventType identifies an asynchronous output event.
type EventType int

const (
	// EventReady fires once a loaded stream is decoded far enough to play.
	EventReady EventType = iota
	// EventPositionTick reports playback progress, roughly twice a second.
	EventPositionTick
	// EventTrackEnded fires when the stream finishes naturally.
	EventTrackEnded
	// EventDeviceError reports an unrecoverable output failure.
	EventDeviceError
)

// String returns the event name for logs.
func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventPositionTick:
		return "positionTick"
	case EventTrackEnded:
		return "trackEnded"
	case EventDeviceError:
		return "deviceError"
	default:
		return "unknown"
	}
}

// Event is delivered on the port's event channel from a device-owned
// goroutine. Consumers must marshal events into their own serialization
// domain instead of mutating shared state from the handler.
type Event struct {
	Type           EventType
	PositionMillis int64
	Err            error
}

// DeviceError wraps a local playback failure. It is recoverable at the
// application level: the controller stops and awaits user action.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Port abstracts local decode and playback of a resolved stream.
//
// Load replaces any current stream; EventReady follows on success. Play,
// Pause, Seek and SetVolume act on the loaded stream. Events delivers
// asynchronous device events until Close.
type Port interface {
	Load(ctx context.Context, streamURL string) error
	Play() error
	Pause() error
	Seek(positionMillis int64) error
	SetVolume(percent int) error
	Stop() error
	Events() <-chan Event
	Close() error
}
