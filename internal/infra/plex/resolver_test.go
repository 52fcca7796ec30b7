package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

// testTrack returns a descriptor without a part key so resolution always
// goes through the metadata endpoint.
func testTrack(id string) track.Descriptor {
	return track.Descriptor{ID: id, Title: "So What", Artist: "Miles Davis", DurationMillis: 562000}
}

// TestResolverRefreshesTokenOnce verifies the auth retry path: a 401 on
// resolution triggers exactly one token refresh followed by one retry.
func TestResolverRefreshesTokenOnce(t *testing.T) {
	var metadataCalls, refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/library/metadata/101", func(w http.ResponseWriter, r *http.Request) {
		metadataCalls.Add(1)
		if r.Header.Get("X-Plex-Token") != "fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"MediaContainer":{"Metadata":[{"ratingKey":"101","title":"So What","grandparentTitle":"Miles Davis","duration":562000,"Media":[{"Part":[{"key":"/library/parts/1001/file.flac"}]}]}]}}`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"authToken": "fresh"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "stale", WithAuthURL(srv.URL+"/auth/refresh"))
	resolver := NewResolver(client)

	handle, err := resolver.Resolve(context.Background(), testTrack("101"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if handle.URL == "" {
		t.Error("got empty stream URL")
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if got := metadataCalls.Load(); got != 2 {
		t.Errorf("metadata calls = %d, want 2 (initial + retry)", got)
	}
}

// TestResolverAuthFailureAfterRefresh verifies there is no second retry
// when the refreshed token is also rejected.
func TestResolverAuthFailureAfterRefresh(t *testing.T) {
	var metadataCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/library/metadata/101", func(w http.ResponseWriter, r *http.Request) {
		metadataCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"authToken": "still-bad"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(srv.URL, "stale", WithAuthURL(srv.URL+"/auth/refresh"))
	resolver := NewResolver(client)

	_, err := resolver.Resolve(context.Background(), testTrack("101"))
	if err == nil {
		t.Fatal("Resolve() succeeded, want auth error")
	}

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error type = %T, want *ResolutionError", err)
	}
	if resErr.Kind != ResolutionAuth {
		t.Errorf("Kind = %s, want %s", resErr.Kind, ResolutionAuth)
	}
	if got := metadataCalls.Load(); got != 2 {
		t.Errorf("metadata calls = %d, want 2 (one retry, no more)", got)
	}
}

func TestResolverNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resolver := NewResolver(NewClient(srv.URL, "tok"))
	_, err := resolver.Resolve(context.Background(), testTrack("404"))

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("error type = %T, want *ResolutionError", err)
	}
	if resErr.Kind != ResolutionNotFound {
		t.Errorf("Kind = %s, want %s", resErr.Kind, ResolutionNotFound)
	}
}
