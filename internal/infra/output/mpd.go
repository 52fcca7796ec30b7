package output

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/audio"
)

// MPD delegates playback to a music player daemon, which handles the
// HTTP fetch and decode itself. Useful on headless boxes where the
// daemon owns the audio device.
type MPD struct {
	host     string
	port     int
	password string

	mu      sync.RWMutex
	client  *mpd.Client
	watcher *mpd.Watcher

	events    chan audio.Event
	stop      chan struct{}
	closeOnce sync.Once

	// loaded and stopping are watcher bookkeeping: a "player" event with
	// state stop only means track-ended when we did not stop on purpose.
	stateMu  sync.Mutex
	loaded   bool
	stopping bool
}

var _ audio.Port = (*MPD)(nil)

// NewMPD connects to the daemon and starts watching playback state.
func NewMPD(host string, port int, password string) (*MPD, error) {
	m := &MPD{
		host:     host,
		port:     port,
		password: password,
		events:   make(chan audio.Event, 16),
		stop:     make(chan struct{}),
	}
	if err := m.Connect(); err != nil {
		return nil, err
	}
	if err := m.watch(); err != nil {
		m.Close()
		return nil, err
	}
	go m.trackPosition()
	return m, nil
}

// Connect establishes the control connection.
func (m *MPD) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked()
}

func (m *MPD) connectLocked() error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}
	if m.password != "" {
		if err := client.Command("password %s", m.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	m.client = client
	return nil
}

// ensureConnected pings and reconnects on a dead connection.
func (m *MPD) ensureConnected() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return m.connectLocked()
	}
	if err := m.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		m.client.Close()
		m.client = nil
		return m.connectLocked()
	}
	return nil
}

// Load replaces the daemon's queue with the stream URL. The daemon
// fetches lazily, so the stream is ready as soon as the queue is set.
func (m *MPD) Load(_ context.Context, streamURL string) error {
	if err := m.ensureConnected(); err != nil {
		return &audio.DeviceError{Op: "connect", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	m.setLoaded(false)
	if err := m.client.Clear(); err != nil {
		return &audio.DeviceError{Op: "clear", Err: err}
	}
	if err := m.client.Add(streamURL); err != nil {
		return &audio.DeviceError{Op: "load", Err: err}
	}
	m.setLoaded(true)

	m.emit(audio.Event{Type: audio.EventReady})
	return nil
}

// Play starts or resumes the loaded stream.
func (m *MPD) Play() error {
	if err := m.ensureConnected(); err != nil {
		return &audio.DeviceError{Op: "connect", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	status, err := m.client.Status()
	if err != nil {
		return &audio.DeviceError{Op: "status", Err: err}
	}
	if status["state"] == "pause" {
		if err := m.client.Pause(false); err != nil {
			return &audio.DeviceError{Op: "resume", Err: err}
		}
		return nil
	}
	if err := m.client.Play(0); err != nil {
		return &audio.DeviceError{Op: "play", Err: err}
	}
	return nil
}

// Pause suspends playback.
func (m *MPD) Pause() error {
	if err := m.ensureConnected(); err != nil {
		return &audio.DeviceError{Op: "connect", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.client.Pause(true); err != nil {
		return &audio.DeviceError{Op: "pause", Err: err}
	}
	return nil
}

// Seek repositions within the current stream.
func (m *MPD) Seek(positionMillis int64) error {
	if err := m.ensureConnected(); err != nil {
		return &audio.DeviceError{Op: "connect", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seconds := time.Duration(positionMillis) * time.Millisecond
	if err := m.client.SeekCur(seconds, false); err != nil {
		return &audio.DeviceError{Op: "seek", Err: err}
	}
	return nil
}

// SetVolume sets the daemon mixer volume.
func (m *MPD) SetVolume(percent int) error {
	if err := m.ensureConnected(); err != nil {
		return &audio.DeviceError{Op: "connect", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.client.SetVolume(percent); err != nil {
		return &audio.DeviceError{Op: "volume", Err: err}
	}
	return nil
}

// Stop halts playback and clears the daemon queue.
func (m *MPD) Stop() error {
	if err := m.ensureConnected(); err != nil {
		return &audio.DeviceError{Op: "connect", Err: err}
	}

	m.stateMu.Lock()
	m.stopping = true
	m.loaded = false
	m.stateMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.client.Stop(); err != nil {
		return &audio.DeviceError{Op: "stop", Err: err}
	}
	if err := m.client.Clear(); err != nil {
		return &audio.DeviceError{Op: "clear", Err: err}
	}
	return nil
}

// Events delivers device events until Close.
func (m *MPD) Events() <-chan audio.Event {
	return m.events
}

// Close tears down the watcher and control connection.
func (m *MPD) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		close(m.events)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		m.watcher.Close()
		m.watcher = nil
	}
	if m.client != nil {
		err := m.client.Close()
		m.client = nil
		return err
	}
	return nil
}

func (m *MPD) setLoaded(loaded bool) {
	m.stateMu.Lock()
	m.loaded = loaded
	m.stopping = false
	m.stateMu.Unlock()
}

// watch subscribes to daemon player events. A transition to state stop
// while a stream is loaded and no stop was requested means the track
// drained.
func (m *MPD) watch() error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	watcher, err := mpd.NewWatcher("tcp", addr, m.password, "player")
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-m.stop:
				return
			case _, ok := <-watcher.Event:
				if !ok {
					return
				}
				m.onPlayerChange()
			case err := <-watcher.Error:
				log.Error().Err(err).Msg("MPD watcher error")
				time.Sleep(time.Second)
			}
		}
	}()
	return nil
}

func (m *MPD) onPlayerChange() {
	status, err := m.status()
	if err != nil {
		m.emit(audio.Event{Type: audio.EventDeviceError, Err: &audio.DeviceError{Op: "status", Err: err}})
		return
	}
	if status["state"] != "stop" {
		return
	}

	m.stateMu.Lock()
	ended := m.loaded && !m.stopping
	m.loaded = false
	m.stateMu.Unlock()

	if ended {
		m.emit(audio.Event{Type: audio.EventTrackEnded})
	}
}

// trackPosition polls elapsed time while the daemon plays.
func (m *MPD) trackPosition() {
	ticker := time.NewTicker(positionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			status, err := m.status()
			if err != nil || status["state"] != "play" {
				continue
			}
			elapsed, err := strconv.ParseFloat(status["elapsed"], 64)
			if err != nil {
				continue
			}
			m.emit(audio.Event{
				Type:           audio.EventPositionTick,
				PositionMillis: int64(elapsed * 1000),
			})
		}
	}
}

func (m *MPD) status() (mpd.Attrs, error) {
	if err := m.ensureConnected(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client.Status()
}

func (m *MPD) emit(ev audio.Event) {
	select {
	case m.events <- ev:
	case <-m.stop:
	default:
		log.Debug().Str("event", ev.Type.String()).Msg("Dropping MPD event, consumer slow")
	}
}
