// Package socketio provides the Socket.io server UI clients connect to.
package socketio

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/player"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/playlist"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

// DefaultBroadcastWindow batches rapid state changes before pushing them
// to clients.
const DefaultBroadcastWindow = 300 * time.Millisecond

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	ctrl      *player.Controller
	deviceID  string
	debouncer *BroadcastDebouncer

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates a Socket.io server driving the playback controller.
func NewServer(ctrl *player.Controller) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:       server,
		ctrl:     ctrl,
		deviceID: uuid.NewString(),
		clients:  make(map[string]*socket.Socket),
	}
	s.debouncer = NewBroadcastDebouncer(DefaultBroadcastWindow, s.BroadcastState, s.BroadcastQueue)

	s.setupHandlers()

	return s, nil
}

// NotifyState schedules a debounced state broadcast. Wire it to the
// controller's snapshot listener.
func (s *Server) NotifyState() {
	s.debouncer.TriggerState()
}

// NotifyQueue schedules a debounced queue broadcast. Wire it to the
// playlist's change listener.
func (s *Server) NotifyQueue() {
	s.debouncer.TriggerQueue()
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())

		log.Info().Str("id", clientID).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.pushState(client)
			s.pushQueue(client)
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		// Player control events
		client.On("getState", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getState")
			s.pushState(client)
		})

		client.On("play", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("play")

			index := -1 // Default: resume or start at cursor
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if v, ok := m["value"].(float64); ok {
						index = int(v)
					}
				}
			}

			if index < 0 {
				s.ctrl.Play()
				return
			}
			if err := s.ctrl.PlayIndex(index); err != nil {
				log.Error().Err(err).Int("index", index).Msg("Play failed")
			}
		})

		client.On("pause", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("pause")
			s.ctrl.Pause()
		})

		client.On("toggle", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("toggle")
			s.ctrl.Toggle()
		})

		client.On("stop", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("stop")
			s.ctrl.Stop()
		})

		client.On("next", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("next")
			s.ctrl.Next()
		})

		client.On("prev", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("prev")
			s.ctrl.Previous()
		})

		client.On("seek", func(args ...any) {
			if len(args) > 0 {
				if pos, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("pos", pos).Msg("seek")
					// Clients send seconds, the controller wants millis.
					s.ctrl.Seek(int64(pos * 1000))
				}
			}
		})

		client.On("volume", func(args ...any) {
			if len(args) > 0 {
				if vol, ok := args[0].(float64); ok {
					log.Debug().Str("id", clientID).Float64("vol", vol).Msg("volume")
					s.ctrl.SetVolume(int(vol))
				}
			}
		})

		client.On("setRandom", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("setRandom")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if v, ok := m["value"].(bool); ok {
						s.ctrl.SetShuffle(v)
					}
				}
			}
		})

		client.On("setAutoAdvance", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("setAutoAdvance")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if v, ok := m["value"].(bool); ok {
						s.ctrl.SetAutoAdvance(v)
					}
				}
			}
		})

		// Queue events
		client.On("getQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getQueue")
			s.pushQueue(client)
		})

		client.On("addToQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("addToQueue")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if t, ok := trackFromPayload(m); ok {
						s.ctrl.Append(t)
						return
					}
				}
			}
			log.Warn().Str("id", clientID).Msg("addToQueue with invalid track payload")
		})

		client.On("removeFromQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("removeFromQueue")
			if len(args) > 0 {
				if m, ok := args[0].(map[string]interface{}); ok {
					if v, ok := m["value"].(float64); ok {
						if err := s.ctrl.RemoveAt(int(v)); err != nil {
							log.Error().Err(err).Int("index", int(v)).Msg("RemoveFromQueue failed")
						}
					}
				}
			}
		})

		client.On("clearQueue", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("clearQueue")
			s.ctrl.Clear()
		})
	})
}

// trackFromPayload builds a descriptor from a client-sent queue entry.
func trackFromPayload(m map[string]interface{}) (track.Descriptor, bool) {
	t := track.Descriptor{}
	if id, ok := m["id"].(string); ok {
		t.ID = id
	}
	if title, ok := m["title"].(string); ok {
		t.Title = title
	}
	if artist, ok := m["artist"].(string); ok {
		t.Artist = artist
	}
	if album, ok := m["album"].(string); ok {
		t.Album = album
	}
	if year, ok := m["year"].(float64); ok {
		t.Year = int(year)
	}
	if duration, ok := m["duration"].(float64); ok {
		t.DurationMillis = int64(duration)
	}
	if art, ok := m["albumart"].(string); ok {
		t.ArtworkRef = art
	}
	if partKey, ok := m["partKey"].(string); ok {
		t.PartKey = partKey
	}
	return t, t.Valid()
}

// statePayload projects a playback snapshot into the wire shape.
func (s *Server) statePayload(snap player.Snapshot) map[string]interface{} {
	payload := map[string]interface{}{
		"device":      s.deviceID,
		"status":      string(snap.Status),
		"position":    snap.PositionMillis,
		"volume":      snap.Volume,
		"random":      snap.Shuffle,
		"autoAdvance": snap.AutoAdvance,
	}
	if snap.Err != "" {
		payload["error"] = snap.Err
	}
	if snap.Track != nil {
		payload["trackId"] = snap.Track.ID
		payload["title"] = snap.Track.Title
		payload["artist"] = snap.Track.Artist
		payload["album"] = snap.Track.Album
		payload["duration"] = snap.Track.DurationMillis
		payload["albumart"] = snap.Track.ArtworkRef
	}
	return payload
}

// queuePayload projects the playlist into the wire shape.
func (s *Server) queuePayload(snap playlist.Snapshot) map[string]interface{} {
	entries := make([]map[string]interface{}, len(snap.Entries))
	for i, t := range snap.Entries {
		entries[i] = map[string]interface{}{
			"index":    i,
			"id":       t.ID,
			"title":    t.Title,
			"artist":   t.Artist,
			"album":    t.Album,
			"duration": t.DurationMillis,
			"albumart": t.ArtworkRef,
		}
	}
	return map[string]interface{}{
		"queue":  entries,
		"cursor": snap.Cursor,
		"random": snap.Shuffle,
	}
}

// pushState sends current state to a client.
func (s *Server) pushState(client *socket.Socket) {
	client.Emit("pushState", s.statePayload(s.ctrl.Snapshot()))
}

// pushQueue sends the current queue to a client.
func (s *Server) pushQueue(client *socket.Socket) {
	client.Emit("pushQueue", s.queuePayload(s.ctrl.Queue().Snapshot()))
}

// BroadcastState sends state to all connected clients.
func (s *Server) BroadcastState() {
	s.io.Emit("pushState", s.statePayload(s.ctrl.Snapshot()))
}

// BroadcastQueue sends the queue to all connected clients.
func (s *Server) BroadcastQueue() {
	s.io.Emit("pushQueue", s.queuePayload(s.ctrl.Queue().Snapshot()))
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops broadcasts and closes the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
