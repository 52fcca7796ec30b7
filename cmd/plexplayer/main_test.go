package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/audio"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/player"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/playlist"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
	"github.com/mrartanis/PlexMusicPlayer/internal/infra/cache"
	"github.com/mrartanis/PlexMusicPlayer/internal/infra/state"
)

// nullPort is an audio output that accepts everything and emits nothing.
type nullPort struct {
	events chan audio.Event
}

func newNullPort() *nullPort {
	return &nullPort{events: make(chan audio.Event, 1)}
}

func (p *nullPort) Load(context.Context, string) error { return nil }
func (p *nullPort) Play() error                        { return nil }
func (p *nullPort) Pause() error                       { return nil }
func (p *nullPort) Seek(int64) error                   { return nil }
func (p *nullPort) SetVolume(int) error                { return nil }
func (p *nullPort) Stop() error                        { return nil }
func (p *nullPort) Events() <-chan audio.Event         { return p.events }
func (p *nullPort) Close() error                       { return nil }

type staticResolver struct{}

func (staticResolver) Resolve(_ context.Context, t track.Descriptor) (player.StreamHandle, error) {
	return player.StreamHandle{URL: "stream://" + t.ID}, nil
}

func restoreFixture(t *testing.T, rec state.Record) (*player.Controller, bool) {
	t.Helper()
	dir := t.TempDir()

	db := cache.NewDB(filepath.Join(dir, "library.db"))
	if err := db.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	dao := cache.NewDAO(db)

	tracks := []track.Descriptor{
		{ID: "101", Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", DurationMillis: 562000},
		{ID: "102", Title: "Freddie Freeloader", Artist: "Miles Davis", Album: "Kind of Blue", DurationMillis: 589000},
	}
	if err := dao.UpsertTracks(tracks); err != nil {
		t.Fatalf("UpsertTracks: %v", err)
	}

	store := state.NewStore(dir)
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	queue := playlist.New()
	ctrl := player.New(queue, staticResolver{}, newNullPort())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ctrl.Start(ctx)

	return ctrl, restoreSession(ctrl, queue, store, dao)
}

func TestRestoreSessionAppliesPersistedState(t *testing.T) {
	ctrl, ok := restoreFixture(t, state.Record{
		TrackIDs:       []string{"101", "102"},
		Cursor:         1,
		PositionMillis: 42000,
		Volume:         55,
	})
	if !ok {
		t.Fatal("restoreSession = false, want true")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := ctrl.Snapshot()
		if snap.Status == player.StatusPaused && snap.Volume == 55 {
			if snap.Track == nil || snap.Track.ID != "102" {
				t.Fatalf("restored track = %+v, want 102", snap.Track)
			}
			if snap.PositionMillis != 42000 {
				t.Fatalf("restored position = %d, want 42000", snap.PositionMillis)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("restored snapshot never settled, last %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// A muted session must restart muted, not at the default volume.
func TestRestoreSessionKeepsZeroVolume(t *testing.T) {
	ctrl, ok := restoreFixture(t, state.Record{
		TrackIDs: []string{"101", "102"},
		Cursor:   0,
		Volume:   0,
	})
	if !ok {
		t.Fatal("restoreSession = false, want true")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if snap := ctrl.Snapshot(); snap.Volume == 0 && snap.Status == player.StatusPaused {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("volume = %d, want restored 0", ctrl.Snapshot().Volume)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
