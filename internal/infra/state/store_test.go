package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	store := NewStore(t.TempDir())

	rec := Record{
		TrackIDs:       []string{"101", "102", "103"},
		Cursor:         1,
		Shuffle:        true,
		PositionMillis: 42500,
		Volume:         80,
	}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil {
		t.Fatal("Load() = nil, want record")
	}
	if got.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", got.SchemaVersion, SchemaVersion)
	}
	if len(got.TrackIDs) != 3 || got.TrackIDs[1] != "102" {
		t.Errorf("TrackIDs = %v", got.TrackIDs)
	}
	if got.Cursor != 1 || !got.Shuffle || got.PositionMillis != 42500 || got.Volume != 80 {
		t.Errorf("record = %+v, want original values", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil for missing snapshot", got)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil for corrupt snapshot", got)
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := os.WriteFile(store.Path(), []byte(`{"schemaVersion": 99, "trackIds": ["1"], "cursor": 0}`), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil for schema mismatch", got)
	}
}

func TestLoadRejectsInvalidCursor(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Save(Record{TrackIDs: []string{"1"}, Cursor: 5}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() = %+v, want nil for out-of-range cursor", got)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := store.Save(Record{TrackIDs: []string{"1"}, Cursor: 0}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}
