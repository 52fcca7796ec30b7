// Package output implements the audio output port: a local speaker
// backend decoding streams in-process and an MPD backend delegating
// playback to a music player daemon.
package output

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/audio"
)

// positionInterval is how often the speaker reports playback progress.
const positionInterval = 500 * time.Millisecond

// speakerBufferLen is the speaker's internal buffer duration.
const speakerBufferLen = time.Second / 10

// Speaker plays resolved streams through the local audio device. Streams
// are spooled to a temp file first because decoders need seekable input.
type Speaker struct {
	httpClient *http.Client
	events     chan audio.Event
	stop       chan struct{}
	closeOnce  sync.Once

	mu          sync.Mutex
	streamer    beep.StreamSeekCloser
	ctrl        *beep.Ctrl
	volume      *effects.Volume
	sampleRate  beep.SampleRate
	spoolPath   string
	initialized bool
	playing     bool
}

var _ audio.Port = (*Speaker)(nil)

// NewSpeaker creates a speaker output. Close releases the device.
func NewSpeaker() *Speaker {
	s := &Speaker{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		events:     make(chan audio.Event, 16),
		stop:       make(chan struct{}),
	}
	go s.trackPosition()
	return s
}

// Load fetches and decodes the stream, leaving it paused at the start.
// EventReady follows once the stream is playable.
func (s *Speaker) Load(ctx context.Context, streamURL string) error {
	if err := s.Stop(); err != nil {
		return err
	}

	path, err := s.spool(ctx, streamURL)
	if err != nil {
		return &audio.DeviceError{Op: "fetch", Err: err}
	}

	file, err := os.Open(path)
	if err != nil {
		os.Remove(path)
		return &audio.DeviceError{Op: "open", Err: err}
	}

	streamer, format, err := decode(file, streamURL)
	if err != nil {
		file.Close()
		os.Remove(path)
		return &audio.DeviceError{Op: "decode", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBufferLen)); err != nil {
			streamer.Close()
			os.Remove(path)
			return &audio.DeviceError{Op: "speaker init", Err: err}
		}
		s.initialized = true
		s.sampleRate = format.SampleRate
	}

	s.streamer = streamer
	s.spoolPath = path
	s.ctrl = &beep.Ctrl{Streamer: beep.Resample(4, format.SampleRate, s.sampleRate, streamer), Paused: true}
	s.volume = &effects.Volume{
		Streamer: s.ctrl,
		Base:     2,
		Volume:   0,
	}
	s.playing = true

	speaker.Play(beep.Seq(s.volume, beep.Callback(s.onStreamEnd)))

	s.emit(audio.Event{Type: audio.EventReady})
	return nil
}

// onStreamEnd runs on the speaker goroutine when the stream drains.
func (s *Speaker) onStreamEnd() {
	s.mu.Lock()
	ended := s.playing
	s.playing = false
	s.mu.Unlock()
	if ended {
		s.emit(audio.Event{Type: audio.EventTrackEnded})
	}
}

// Play unpauses the loaded stream.
func (s *Speaker) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return &audio.DeviceError{Op: "play", Err: errNoStream}
	}
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Pause suspends the loaded stream.
func (s *Speaker) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return &audio.DeviceError{Op: "pause", Err: errNoStream}
	}
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Seek repositions the loaded stream.
func (s *Speaker) Seek(positionMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamer == nil {
		return &audio.DeviceError{Op: "seek", Err: errNoStream}
	}
	target := s.sampleRate.N(time.Duration(positionMillis) * time.Millisecond)
	speaker.Lock()
	err := s.streamer.Seek(target)
	speaker.Unlock()
	if err != nil {
		return &audio.DeviceError{Op: "seek", Err: err}
	}
	return nil
}

// SetVolume maps percent onto the exponential volume scale, muting at 0.
func (s *Speaker) SetVolume(percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.volume == nil {
		return &audio.DeviceError{Op: "volume", Err: errNoStream}
	}
	speaker.Lock()
	s.volume.Silent = percent <= 0
	s.volume.Volume = float64(percent)/50.0 - 2.0
	speaker.Unlock()
	return nil
}

// Stop clears the device and discards the loaded stream.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		speaker.Clear()
	}
	s.playing = false
	if s.streamer != nil {
		s.streamer.Close()
		s.streamer = nil
	}
	s.ctrl = nil
	s.volume = nil
	if s.spoolPath != "" {
		os.Remove(s.spoolPath)
		s.spoolPath = ""
	}
	return nil
}

// Events delivers device events until Close.
func (s *Speaker) Events() <-chan audio.Event {
	return s.events
}

// Close stops playback and releases the event stream.
func (s *Speaker) Close() error {
	err := s.Stop()
	s.closeOnce.Do(func() {
		close(s.stop)
		close(s.events)
	})
	return err
}

// trackPosition reports progress while a stream plays.
func (s *Speaker) trackPosition() {
	ticker := time.NewTicker(positionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			var millis int64
			tick := false
			if s.playing && s.streamer != nil && s.ctrl != nil && !s.ctrl.Paused {
				speaker.Lock()
				pos := s.streamer.Position()
				speaker.Unlock()
				millis = s.sampleRate.D(pos).Milliseconds()
				tick = true
			}
			s.mu.Unlock()
			if tick {
				s.emit(audio.Event{Type: audio.EventPositionTick, PositionMillis: millis})
			}
		}
	}
}

// emit never blocks the speaker or ticker goroutines; the controller
// drains fast and a dropped tick is harmless.
func (s *Speaker) emit(ev audio.Event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	default:
		log.Debug().Str("event", ev.Type.String()).Msg("Dropping audio event, consumer slow")
	}
}

// spool downloads the stream to a temp file so decoders can seek.
func (s *Speaker) spool(ctx context.Context, streamURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stream fetch: unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "plexplayer-stream-*"+streamExt(streamURL))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// streamExt extracts the media extension from a stream URL.
func streamExt(streamURL string) string {
	u, err := url.Parse(streamURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(filepath.Ext(u.Path))
}

// decode picks a decoder by the stream's extension, defaulting to MP3.
func decode(r io.ReadSeekCloser, streamURL string) (beep.StreamSeekCloser, beep.Format, error) {
	switch streamExt(streamURL) {
	case ".flac":
		return flac.Decode(r)
	case ".wav":
		return wav.Decode(r)
	case ".ogg":
		return vorbis.Decode(r)
	default:
		return mp3.Decode(r)
	}
}
