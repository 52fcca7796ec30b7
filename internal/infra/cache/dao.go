package cache

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

// DAO provides data access operations for the track cache.
type DAO struct {
	db *DB
}

// NewDAO creates a new DAO instance.
func NewDAO(db *DB) *DAO {
	return &DAO{db: db}
}

// UpsertTracks replaces or inserts the given tracks in one transaction.
func (dao *DAO) UpsertTracks(tracks []track.Descriptor) error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}
	if len(tracks) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO tracks (id, title, artist, album, year, duration_ms, artwork_ref, part_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, artist = excluded.artist, album = excluded.album,
			year = excluded.year, duration_ms = excluded.duration_ms,
			artwork_ref = excluded.artwork_ref, part_key = excluded.part_key,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		if _, err := stmt.Exec(t.ID, t.Title, t.Artist, t.Album, t.Year, t.DurationMillis, t.ArtworkRef, t.PartKey); err != nil {
			return fmt.Errorf("upsert track %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	log.Debug().Int("tracks", len(tracks)).Msg("Track cache updated")
	return nil
}

// TracksByIDs returns descriptors for the given IDs in the given order.
// IDs missing from the cache are skipped; the caller compares lengths to
// detect a stale session.
func (dao *DAO) TracksByIDs(ids []string) ([]track.Descriptor, error) {
	db := dao.db.DB()
	if db == nil {
		return nil, fmt.Errorf("database not open")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.Query(`
		SELECT id, title, artist, album, year, duration_ms, artwork_ref, part_key
		FROM tracks WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]track.Descriptor, len(ids))
	for rows.Next() {
		var t track.Descriptor
		var album, artworkRef, partKey sql.NullString
		var year sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &album, &year, &t.DurationMillis, &artworkRef, &partKey); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		t.Album = album.String
		t.Year = int(year.Int64)
		t.ArtworkRef = artworkRef.String
		t.PartKey = partKey.String
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}

	out := make([]track.Descriptor, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// TrackCount returns the number of cached tracks.
func (dao *DAO) TrackCount() (int, error) {
	db := dao.db.DB()
	if db == nil {
		return 0, fmt.Errorf("database not open")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return count, nil
}

// Clear removes all cached tracks.
func (dao *DAO) Clear() error {
	db := dao.db.DB()
	if db == nil {
		return fmt.Errorf("database not open")
	}
	if _, err := db.Exec(`DELETE FROM tracks`); err != nil {
		return fmt.Errorf("clear tracks: %w", err)
	}
	return nil
}
