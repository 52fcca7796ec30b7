package plex

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/player"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

// Resolver adapts the library client to the playback controller's
// resolver contract. On an auth failure it refreshes the token and
// retries exactly once; every other failure is reported as-is.
type Resolver struct {
	client *Client
}

// NewResolver wraps a client.
func NewResolver(c *Client) *Resolver {
	return &Resolver{client: c}
}

var _ player.Resolver = (*Resolver)(nil)

// Resolve turns a track descriptor into a playable stream handle.
func (r *Resolver) Resolve(ctx context.Context, t track.Descriptor) (player.StreamHandle, error) {
	stream, err := r.client.ResolveStream(ctx, t)
	if errors.Is(err, ErrUnauthorized) {
		log.Info().Str("track", t.ID).Msg("Token rejected, refreshing and retrying once")
		if refreshErr := r.client.RefreshToken(ctx); refreshErr != nil {
			return player.StreamHandle{}, &ResolutionError{Kind: ResolutionAuth, Track: t.ID, Cause: refreshErr}
		}
		stream, err = r.client.ResolveStream(ctx, t)
	}
	if err != nil {
		return player.StreamHandle{}, &ResolutionError{Kind: classify(err), Track: t.ID, Cause: err}
	}
	return player.StreamHandle{URL: stream.URL, ExpiresAt: stream.ExpiresAt}, nil
}
