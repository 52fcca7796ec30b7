// Package track defines the immutable descriptor for a playable library item.
package track

import "fmt"

// Descriptor describes one playable track from the remote library.
// Descriptors are value objects: they are created when library data is
// fetched and never mutated afterwards.
type Descriptor struct {
	// ID is the stable library identifier (the Plex rating key).
	ID string

	Title  string
	Artist string
	Album  string
	Year   int

	// DurationMillis is the track length in milliseconds, always > 0 for
	// a playable track.
	DurationMillis int64

	// ArtworkRef is an opaque artwork locator (thumb URL path). May be empty.
	ArtworkRef string

	// PartKey is the opaque media part key used to build a stream URL.
	// Resolved lazily by the stream resolver; the resulting URL may expire.
	PartKey string
}

// Valid reports whether the descriptor carries the minimum data needed
// for playback.
func (d Descriptor) Valid() bool {
	return d.ID != "" && d.DurationMillis > 0
}

// String returns a short human-readable form used in logs.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s - %s (%s)", d.Artist, d.Title, d.ID)
}
