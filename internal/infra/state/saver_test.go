package state

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSaverCollapsesRapidTriggers(t *testing.T) {
	var saves atomic.Int32
	store := NewStore(t.TempDir())
	saver := NewSaver(store, func() Record {
		saves.Add(1)
		return Record{TrackIDs: []string{"1"}, Cursor: 0}
	}, 50*time.Millisecond)
	defer saver.Close()

	for i := 0; i < 10; i++ {
		saver.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := saves.Load(); got != 1 {
		t.Errorf("saves = %d, want 1 after rapid triggers", got)
	}
}

func TestSaverSeparateWindows(t *testing.T) {
	var saves atomic.Int32
	store := NewStore(t.TempDir())
	saver := NewSaver(store, func() Record {
		saves.Add(1)
		return Record{}
	}, 30*time.Millisecond)
	defer saver.Close()

	saver.Trigger()
	time.Sleep(100 * time.Millisecond)
	saver.Trigger()
	time.Sleep(100 * time.Millisecond)

	if got := saves.Load(); got != 2 {
		t.Errorf("saves = %d, want 2 for separated triggers", got)
	}
}

func TestSaverCloseFlushesPendingWrite(t *testing.T) {
	var saves atomic.Int32
	store := NewStore(t.TempDir())
	saver := NewSaver(store, func() Record {
		saves.Add(1)
		return Record{TrackIDs: []string{"1"}, Cursor: 0}
	}, 10*time.Second)

	saver.Trigger()
	saver.Close()

	if got := saves.Load(); got != 1 {
		t.Errorf("saves = %d, want 1 flushed on close", got)
	}

	// The flushed write is on disk.
	rec, err := store.Load()
	if err != nil || rec == nil {
		t.Fatalf("Load() = %v, %v, want flushed record", rec, err)
	}
}

func TestSaverNoTriggerAfterClose(t *testing.T) {
	var saves atomic.Int32
	store := NewStore(t.TempDir())
	saver := NewSaver(store, func() Record {
		saves.Add(1)
		return Record{}
	}, 20*time.Millisecond)

	saver.Close()
	saver.Trigger()
	time.Sleep(80 * time.Millisecond)

	if got := saves.Load(); got != 0 {
		t.Errorf("saves = %d, want 0 after close", got)
	}
}
