// Package main is the entry point for the Plex music player.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/audio"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/player"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/playlist"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
	"github.com/mrartanis/PlexMusicPlayer/internal/infra/cache"
	"github.com/mrartanis/PlexMusicPlayer/internal/infra/output"
	"github.com/mrartanis/PlexMusicPlayer/internal/infra/plex"
	"github.com/mrartanis/PlexMusicPlayer/internal/infra/state"
	"github.com/mrartanis/PlexMusicPlayer/internal/mediasession"
	"github.com/mrartanis/PlexMusicPlayer/internal/transport/socketio"
	"github.com/mrartanis/PlexMusicPlayer/internal/version"
)

func main() {
	// Command line flags
	port := flag.String("port", "3005", "HTTP server port")
	serverURL := flag.String("server", "", "Plex server URL (overrides saved credentials)")
	token := flag.String("token", "", "Plex auth token (overrides saved credentials)")
	section := flag.String("section", "", "Plex music library section ID")
	dataDir := flag.String("data-dir", "", "Directory for credentials, session and cache (default: user config dir)")
	outputKind := flag.String("output", "speaker", "Audio output backend: speaker or mpd")
	mpdHost := flag.String("mpd-host", "localhost", "MPD host (output=mpd)")
	mpdPort := flag.Int("mpd-port", 6600, "MPD port (output=mpd)")
	mpdPassword := flag.String("mpd-password", "", "MPD password (output=mpd)")
	noMediaKeys := flag.Bool("no-media-keys", false, "Disable OS media session integration")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	versionInfo := version.GetInfo()
	log.Info().Msgf("%s starting", versionInfo.String())

	dir := *dataDir
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot determine config directory")
		}
		dir = filepath.Join(configDir, "plexplayer")
	}

	// Credentials: saved file, overridden by flags
	credsPath := filepath.Join(dir, "credentials.json")
	creds, err := plex.LoadCredentials(credsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal().Err(err).Msg("Failed to load credentials")
		}
		creds = &plex.Credentials{}
	}
	if *serverURL != "" {
		creds.ServerURL = *serverURL
	}
	if *token != "" {
		creds.Token = *token
	}
	if *section != "" {
		creds.SectionID = *section
	}
	if creds.ServerURL == "" || creds.Token == "" {
		log.Fatal().Msg("Plex server URL and token required (flags or saved credentials)")
	}
	if err := plex.SaveCredentials(credsPath, creds); err != nil {
		log.Warn().Err(err).Msg("Failed to save credentials")
	}

	log.Info().
		Str("port", *port).
		Str("server", creds.ServerURL).
		Str("section", creds.SectionID).
		Str("output", *outputKind).
		Msg("Configuration")

	// Library cache
	db := cache.NewDB(filepath.Join(dir, "library.db"))
	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open library cache")
	}
	defer db.Close()
	dao := cache.NewDAO(db)

	// Plex client and resolver
	client := plex.NewClient(creds.ServerURL, creds.Token)
	resolver := plex.NewResolver(client)

	// Audio output
	var out audio.Port
	switch *outputKind {
	case "speaker":
		out = output.NewSpeaker()
	case "mpd":
		mpdOut, err := output.NewMPD(*mpdHost, *mpdPort, *mpdPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MPD")
		}
		out = mpdOut
	default:
		log.Fatal().Str("output", *outputKind).Msg("Unknown output backend")
	}
	defer out.Close()

	// Playback controller
	queue := playlist.New()
	ctrl := player.New(queue, resolver, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)

	// Refresh the library in the background; the cache covers startup.
	library := fetchLibrary(ctx, client, dao, creds.SectionID)

	// Session persistence
	store := state.NewStore(dir)
	saver := state.NewSaver(store, func() state.Record {
		return sessionRecord(ctrl, queue)
	}, state.DefaultSaveWindow)
	defer saver.Close()

	restored := restoreSession(ctrl, queue, store, dao)
	if !restored && len(library) > 0 {
		ctrl.AppendAll(library)
	}

	// OS media session
	var session mediasession.Session
	if *noMediaKeys {
		session = mediasession.NewNoOp()
	} else {
		mpris, err := mediasession.NewMPRIS()
		if err != nil {
			log.Warn().Err(err).Msg("Media session unavailable, continuing without")
			session = mediasession.NewNoOp()
		} else {
			session = mpris
		}
	}
	defer session.Close()
	bridge := mediasession.NewBridge(session, ctrl)
	ctrl.OnSnapshot(bridge.Attach())

	// Socket.io server
	socketServer, err := socketio.NewServer(ctrl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	defer socketServer.Close()

	ctrl.OnSnapshot(func(player.Snapshot) {
		socketServer.NotifyState()
		saver.Trigger()
	})
	queue.OnChange(func(playlist.Snapshot) {
		socketServer.NotifyQueue()
		saver.Trigger()
	})

	// HTTP server
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", socketServer)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(version.GetInfo())
	})

	httpServer := &http.Server{
		Addr:    ":" + *port,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown")
	}

	// Persist the refreshed token for the next run.
	if client.Token() != creds.Token {
		creds.Token = client.Token()
		if err := plex.SaveCredentials(credsPath, creds); err != nil {
			log.Warn().Err(err).Msg("Failed to save refreshed token")
		}
	}

	cancel()
	select {
	case <-ctrl.Done():
	case <-time.After(2 * time.Second):
		log.Warn().Msg("Controller did not stop in time")
	}
}

// fetchLibrary pulls the library section and refreshes the cache.
// Failures are non-fatal; the player runs from the cache.
func fetchLibrary(ctx context.Context, client *plex.Client, dao *cache.DAO, sectionID string) []track.Descriptor {
	if sectionID == "" {
		log.Info().Msg("No library section configured, skipping library fetch")
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	tracks, err := client.ListTracks(fetchCtx, sectionID)
	if err != nil {
		log.Warn().Err(err).Msg("Library fetch failed, using cached metadata")
		return nil
	}
	if err := dao.UpsertTracks(tracks); err != nil {
		log.Warn().Err(err).Msg("Library cache update failed")
	}
	return tracks
}

// restoreSession rehydrates the persisted queue and position. Returns
// false when there is nothing usable to restore.
func restoreSession(ctrl *player.Controller, queue *playlist.Playlist, store *state.Store, dao *cache.DAO) bool {
	rec, err := store.Load()
	if err != nil || rec == nil || len(rec.TrackIDs) == 0 {
		return false
	}

	tracks, err := dao.TracksByIDs(rec.TrackIDs)
	if err != nil {
		log.Warn().Err(err).Msg("Session rehydration failed")
		return false
	}
	if len(tracks) != len(rec.TrackIDs) {
		log.Warn().
			Int("stored", len(rec.TrackIDs)).
			Int("found", len(tracks)).
			Msg("Persisted queue references unknown tracks, starting clean")
		return false
	}

	// Fill the playlist directly so the cursor is valid before the
	// restore command reaches the controller.
	queue.AppendAll(tracks)
	queue.SetShuffle(rec.Shuffle)
	ctrl.SetVolume(rec.Volume)
	if rec.Cursor >= 0 {
		if err := queue.SetCursor(rec.Cursor); err == nil {
			ctrl.Restore(rec.PositionMillis)
		}
	}

	log.Info().
		Int("tracks", len(tracks)).
		Int("cursor", rec.Cursor).
		Int64("position", rec.PositionMillis).
		Msg("Session restored")
	return true
}

// sessionRecord captures the current session for persistence.
func sessionRecord(ctrl *player.Controller, queue *playlist.Playlist) state.Record {
	qs := queue.Snapshot()
	ps := ctrl.Snapshot()

	ids := make([]string, len(qs.Entries))
	for i, t := range qs.Entries {
		ids[i] = t.ID
	}
	return state.Record{
		TrackIDs:       ids,
		Cursor:         qs.Cursor,
		Shuffle:        qs.Shuffle,
		PositionMillis: ps.PositionMillis,
		Volume:         ps.Volume,
	}
}
