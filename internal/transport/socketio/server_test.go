package socketio

import (
	"testing"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/player"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/playlist"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

func TestStatePayload(t *testing.T) {
	s := &Server{deviceID: "test-device"}

	snap := player.Snapshot{
		Status:         player.StatusPlaying,
		PositionMillis: 42500,
		Volume:         80,
		Shuffle:        true,
		AutoAdvance:    true,
		Track: &track.Descriptor{
			ID:             "101",
			Title:          "So What",
			Artist:         "Miles Davis",
			Album:          "Kind of Blue",
			DurationMillis: 562000,
			ArtworkRef:     "/thumb/101",
		},
	}

	payload := s.statePayload(snap)

	if payload["status"] != "playing" {
		t.Errorf("status = %v, want playing", payload["status"])
	}
	if payload["position"] != int64(42500) {
		t.Errorf("position = %v, want 42500", payload["position"])
	}
	if payload["random"] != true {
		t.Errorf("random = %v, want true", payload["random"])
	}
	if payload["title"] != "So What" || payload["artist"] != "Miles Davis" {
		t.Errorf("track fields = %v / %v", payload["title"], payload["artist"])
	}
	if payload["device"] != "test-device" {
		t.Errorf("device = %v, want test-device", payload["device"])
	}
	if _, present := payload["error"]; present {
		t.Error("error field present without an error")
	}
}

func TestStatePayloadStopped(t *testing.T) {
	s := &Server{deviceID: "test-device"}

	payload := s.statePayload(player.Snapshot{Status: player.StatusStopped, Volume: 100})

	if payload["status"] != "stopped" {
		t.Errorf("status = %v, want stopped", payload["status"])
	}
	if _, present := payload["title"]; present {
		t.Error("title present with no track")
	}
}

func TestStatePayloadCarriesError(t *testing.T) {
	s := &Server{deviceID: "test-device"}

	payload := s.statePayload(player.Snapshot{Status: player.StatusError, Err: "stream source offline"})

	if payload["error"] != "stream source offline" {
		t.Errorf("error = %v, want the failure message", payload["error"])
	}
}

func TestQueuePayload(t *testing.T) {
	s := &Server{deviceID: "test-device"}

	snap := playlist.Snapshot{
		Entries: []track.Descriptor{
			{ID: "101", Title: "So What", Artist: "Miles Davis", DurationMillis: 562000},
			{ID: "102", Title: "Freddie Freeloader", Artist: "Miles Davis", DurationMillis: 589000},
		},
		Cursor:  1,
		Shuffle: true,
	}

	payload := s.queuePayload(snap)

	entries, ok := payload["queue"].([]map[string]interface{})
	if !ok {
		t.Fatalf("queue type = %T", payload["queue"])
	}
	if len(entries) != 2 {
		t.Fatalf("queue length = %d, want 2", len(entries))
	}
	if entries[1]["id"] != "102" || entries[1]["index"] != 1 {
		t.Errorf("entry 1 = %v", entries[1])
	}
	if payload["cursor"] != 1 {
		t.Errorf("cursor = %v, want 1", payload["cursor"])
	}
	if payload["random"] != true {
		t.Errorf("random = %v, want true", payload["random"])
	}
}

func TestTrackFromPayload(t *testing.T) {
	m := map[string]interface{}{
		"id":       "101",
		"title":    "So What",
		"artist":   "Miles Davis",
		"album":    "Kind of Blue",
		"year":     float64(1959),
		"duration": float64(562000),
		"albumart": "/thumb/101",
		"partKey":  "/parts/101",
	}

	got, ok := trackFromPayload(m)
	if !ok {
		t.Fatal("trackFromPayload rejected a valid payload")
	}
	want := track.Descriptor{
		ID:             "101",
		Title:          "So What",
		Artist:         "Miles Davis",
		Album:          "Kind of Blue",
		Year:           1959,
		DurationMillis: 562000,
		ArtworkRef:     "/thumb/101",
		PartKey:        "/parts/101",
	}
	if got != want {
		t.Errorf("track = %+v, want %+v", got, want)
	}
}

func TestTrackFromPayloadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]interface{}
	}{
		{name: "missing id", m: map[string]interface{}{"title": "x", "duration": float64(1000)}},
		{name: "missing duration", m: map[string]interface{}{"id": "101", "title": "x"}},
		{name: "empty", m: map[string]interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := trackFromPayload(tt.m); ok {
				t.Error("trackFromPayload accepted an invalid payload")
			}
		})
	}
}
