// Package plex provides the client for the remote Plex library: listing
// tracks, resolving playable stream URLs and refreshing expired auth
// tokens.
package plex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

const (
	// DefaultTimeout for library HTTP requests.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the player to the server.
	DefaultUserAgent = "PlexMusicPlayer/1.0 (https://github.com/mrartanis/PlexMusicPlayer)"

	// DefaultStreamTTL is the expiry hint attached to resolved stream
	// URLs when the server does not provide one. Tokens embedded in the
	// URL outlive a single track, so this only guards very long pauses
	// between resolution and playback start.
	DefaultStreamTTL = 15 * time.Minute

	// trackType is the Plex metadata type filter for audio tracks.
	trackType = 10
)

// Sentinel errors distinguishing server responses.
var (
	// ErrUnauthorized means the auth token was rejected or has expired.
	ErrUnauthorized = errors.New("plex: unauthorized")

	// ErrNotFound means the requested media does not exist on the server.
	ErrNotFound = errors.New("plex: media not found")
)

// Stream is a resolved, time-limited stream locator.
type Stream struct {
	URL       string
	ExpiresAt time.Time
}

// Client talks to a Plex media server.
type Client struct {
	baseURL    string
	authURL    string
	userAgent  string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthURL overrides the token refresh endpoint (useful for testing).
func WithAuthURL(u string) Option {
	return func(c *Client) { c.authURL = u }
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for the given server URL and auth token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		authURL:   baseURL + "/auth/refresh",
		userAgent: DefaultUserAgent,
		token:     token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current auth token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// mediaContainer mirrors the subset of the Plex JSON envelope we read.
type mediaContainer struct {
	MediaContainer struct {
		Metadata []trackMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type trackMetadata struct {
	RatingKey        string `json:"ratingKey"`
	Title            string `json:"title"`
	GrandparentTitle string `json:"grandparentTitle"`
	ParentTitle      string `json:"parentTitle"`
	ParentYear       int    `json:"parentYear"`
	Year             int    `json:"year"`
	Duration         int64  `json:"duration"`
	Thumb            string `json:"thumb"`
	Media            []struct {
		Part []struct {
			Key string `json:"key"`
		} `json:"Part"`
	} `json:"Media"`
}

func (m trackMetadata) descriptor() track.Descriptor {
	d := track.Descriptor{
		ID:             m.RatingKey,
		Title:          m.Title,
		Artist:         m.GrandparentTitle,
		Album:          m.ParentTitle,
		Year:           m.Year,
		DurationMillis: m.Duration,
		ArtworkRef:     m.Thumb,
	}
	if d.Year == 0 {
		d.Year = m.ParentYear
	}
	if len(m.Media) > 0 && len(m.Media[0].Part) > 0 {
		d.PartKey = m.Media[0].Part[0].Key
	}
	return d
}

// ListTracks fetches all audio tracks of a library section.
func (c *Client) ListTracks(ctx context.Context, sectionID string) ([]track.Descriptor, error) {
	endpoint := fmt.Sprintf("%s/library/sections/%s/all?type=%d", c.baseURL, url.PathEscape(sectionID), trackType)

	var container mediaContainer
	if err := c.getJSON(ctx, endpoint, &container); err != nil {
		return nil, fmt.Errorf("list tracks for section %s: %w", sectionID, err)
	}

	tracks := make([]track.Descriptor, 0, len(container.MediaContainer.Metadata))
	for _, m := range container.MediaContainer.Metadata {
		d := m.descriptor()
		if !d.Valid() {
			log.Debug().Str("ratingKey", m.RatingKey).Msg("Skipping track without playable metadata")
			continue
		}
		tracks = append(tracks, d)
	}

	log.Info().Str("section", sectionID).Int("tracks", len(tracks)).Msg("Library tracks fetched")
	return tracks, nil
}

// ResolveStream turns a track descriptor into a playable stream URL with
// an expiry hint. The token travels in the URL, so a refreshed token
// requires re-resolution.
func (c *Client) ResolveStream(ctx context.Context, t track.Descriptor) (Stream, error) {
	partKey := t.PartKey
	if partKey == "" {
		meta, err := c.trackByID(ctx, t.ID)
		if err != nil {
			return Stream{}, err
		}
		partKey = meta.descriptor().PartKey
		if partKey == "" {
			return Stream{}, fmt.Errorf("track %s: %w", t.ID, ErrNotFound)
		}
	}

	streamURL := fmt.Sprintf("%s%s?download=1&X-Plex-Token=%s", c.baseURL, partKey, url.QueryEscape(c.Token()))
	return Stream{
		URL:       streamURL,
		ExpiresAt: time.Now().Add(DefaultStreamTTL),
	}, nil
}

// trackByID fetches a single track's metadata.
func (c *Client) trackByID(ctx context.Context, ratingKey string) (trackMetadata, error) {
	endpoint := fmt.Sprintf("%s/library/metadata/%s", c.baseURL, url.PathEscape(ratingKey))

	var container mediaContainer
	if err := c.getJSON(ctx, endpoint, &container); err != nil {
		return trackMetadata{}, fmt.Errorf("track %s: %w", ratingKey, err)
	}
	if len(container.MediaContainer.Metadata) == 0 {
		return trackMetadata{}, fmt.Errorf("track %s: %w", ratingKey, ErrNotFound)
	}
	return container.MediaContainer.Metadata[0], nil
}

// RefreshToken exchanges the current (expired) token for a fresh one.
// Called at most once per resolution attempt by the resolver.
func (c *Client) RefreshToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("refresh token: %w", ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("refresh token: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AuthToken == "" {
		return fmt.Errorf("refresh token: empty token in response")
	}

	c.mu.Lock()
	c.token = body.AuthToken
	c.mu.Unlock()

	log.Info().Msg("Auth token refreshed")
	return nil
}

// getJSON performs an authenticated GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Plex-Token", c.Token())
}
