package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mrartanis/PlexMusicPlayer/internal/domain/audio"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/playlist"
	"github.com/mrartanis/PlexMusicPlayer/internal/domain/track"
)

// DefaultResolveTimeout bounds how long a stream resolution may take
// before it fails instead of hanging the loading state.
const DefaultResolveTimeout = 10 * time.Second

type cmdKind int

const (
	cmdPlay cmdKind = iota
	cmdPlayIndex
	cmdPause
	cmdResume
	cmdToggle
	cmdStop
	cmdNext
	cmdPrevious
	cmdSeek
	cmdSetVolume
	cmdSetShuffle
	cmdSetAutoAdvance
	cmdRestore
	cmdAppend
	cmdAppendAll
	cmdInsertAt
	cmdRemoveAt
	cmdClear
)

type command struct {
	kind   cmdKind
	index  int
	millis int64
	value  int
	flag   bool
	trk    track.Descriptor
	trks   []track.Descriptor
	reply  chan error
}

// resolveResult carries an asynchronous resolution outcome back into the
// actor loop together with the generation it belongs to.
type resolveResult struct {
	gen    uint64
	trk    track.Descriptor
	handle StreamHandle
	err    error
}

// Controller is the playback state machine. All commands - from the UI
// transport, the OS media session bridge and hardware keys - funnel into
// one queue processed by a single goroutine, so interleavings can never
// produce two in-flight loads or races between a pause and a concurrently
// firing track-ended event.
type Controller struct {
	queue    *playlist.Playlist
	resolver Resolver
	out      audio.Port

	cmds    chan command
	results chan resolveResult

	resolveTimeout time.Duration

	// Actor-owned state. Only the run goroutine touches these.
	status      Status
	position    int64
	volume      int
	autoAdvance bool
	current     *track.Descriptor
	lastErr     string

	// gen tags the in-flight resolution; loadedGen records which
	// generation's stream the output currently holds. A ready event only
	// counts when both match, so neither a stale resolution nor a stale
	// ready can complete a newer command's load.
	gen       uint64
	loadedGen uint64

	// streamLoaded distinguishes a paused loaded stream from a restored
	// session that has not touched the output yet.
	streamLoaded bool

	// pendingPause latches a pause that arrived mid-load; the track
	// finishes loading but stays paused.
	pendingPause bool

	// restoreMillis is the primed resume offset of a restored session;
	// pendingSeekMillis is the offset applied to the current load once
	// the output reports ready.
	restoreMillis     int64
	pendingSeekMillis int64

	mu        sync.RWMutex
	last      Snapshot
	listeners []Listener

	ctx  context.Context
	done chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithResolveTimeout overrides the stream resolution ceiling.
func WithResolveTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.resolveTimeout = d
	}
}

// New creates a controller over the given playlist, resolver and output
// port. Call Start before issuing commands.
func New(queue *playlist.Playlist, resolver Resolver, out audio.Port, opts ...Option) *Controller {
	c := &Controller{
		queue:          queue,
		resolver:       resolver,
		out:            out,
		cmds:           make(chan command, 16),
		results:        make(chan resolveResult, 1),
		resolveTimeout: DefaultResolveTimeout,
		status:         StatusStopped,
		volume:         100,
		autoAdvance:    true,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.last = c.buildSnapshot()
	return c
}

// Start launches the command actor. It returns immediately; the actor
// runs until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	c.ctx = ctx
	go c.run(ctx)
}

// Done is closed when the actor has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// OnSnapshot registers a listener invoked after every state transition.
func (c *Controller) OnSnapshot(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Snapshot returns the most recently emitted playback snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Queue returns the playlist the controller drives.
func (c *Controller) Queue() *playlist.Playlist {
	return c.queue
}

// Play resumes paused playback or starts playing the track under the
// cursor (or the head of the playback order when nothing is selected).
func (c *Controller) Play() { c.send(command{kind: cmdPlay}) }

// PlayIndex moves the cursor to the given playlist index and starts
// playback there. Fails fast with playlist.ErrIndexOutOfRange.
func (c *Controller) PlayIndex(index int) error {
	return c.sendWait(command{kind: cmdPlayIndex, index: index})
}

// Pause suspends playback. No-op unless currently playing.
func (c *Controller) Pause() { c.send(command{kind: cmdPause}) }

// Resume continues paused playback.
func (c *Controller) Resume() { c.send(command{kind: cmdResume}) }

// Toggle flips between playing and paused, starting playback when
// stopped.
func (c *Controller) Toggle() { c.send(command{kind: cmdToggle}) }

// Stop halts playback and resets the position.
func (c *Controller) Stop() { c.send(command{kind: cmdStop}) }

// Next advances the playlist cursor and plays the new current track, or
// stops when the playlist is exhausted.
func (c *Controller) Next() { c.send(command{kind: cmdNext}) }

// Previous retreats the playlist cursor and plays the new current track.
func (c *Controller) Previous() { c.send(command{kind: cmdPrevious}) }

// Seek repositions playback. Valid while playing or paused; the target is
// clamped to the track duration.
func (c *Controller) Seek(positionMillis int64) {
	c.send(command{kind: cmdSeek, millis: positionMillis})
}

// SetVolume sets the output volume, clamped to [0,100]. Device rejection
// is logged, never fatal.
func (c *Controller) SetVolume(percent int) {
	c.send(command{kind: cmdSetVolume, value: percent})
}

// SetShuffle toggles playlist shuffle mode.
func (c *Controller) SetShuffle(enabled bool) {
	c.send(command{kind: cmdSetShuffle, flag: enabled})
}

// SetAutoAdvance controls whether a finished track starts the next one.
func (c *Controller) SetAutoAdvance(enabled bool) {
	c.send(command{kind: cmdSetAutoAdvance, flag: enabled})
}

// Restore primes the controller with a persisted position: the current
// cursor track becomes the current track and the first subsequent play
// starts from the given offset.
func (c *Controller) Restore(positionMillis int64) {
	c.send(command{kind: cmdRestore, millis: positionMillis})
}

// Append adds a track to the end of the queue.
func (c *Controller) Append(t track.Descriptor) {
	c.send(command{kind: cmdAppend, trk: t})
}

// AppendAll adds several tracks to the end of the queue.
func (c *Controller) AppendAll(tracks []track.Descriptor) {
	c.send(command{kind: cmdAppendAll, trks: tracks})
}

// InsertAt inserts a track before the given queue index.
func (c *Controller) InsertAt(index int, t track.Descriptor) error {
	return c.sendWait(command{kind: cmdInsertAt, index: index, trk: t})
}

// RemoveAt removes the track at the given queue index. Removing the
// currently playing entry stops playback.
func (c *Controller) RemoveAt(index int) error {
	return c.sendWait(command{kind: cmdRemoveAt, index: index})
}

// Clear empties the queue and stops playback.
func (c *Controller) Clear() { c.send(command{kind: cmdClear}) }

func (c *Controller) send(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	}
}

func (c *Controller) sendWait(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return context.Canceled
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return context.Canceled
	}
}

// run is the actor loop: one command or event at a time, to completion.
func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			if err := c.out.Stop(); err != nil {
				log.Debug().Err(err).Msg("Output stop on shutdown")
			}
			return
		case cmd := <-c.cmds:
			c.handleCommand(cmd)
		case res := <-c.results:
			c.applyResolution(res)
		case ev, ok := <-c.out.Events():
			if !ok {
				log.Warn().Msg("Audio output event channel closed")
				return
			}
			c.handleOutputEvent(ev)
		}
	}
}

func (c *Controller) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdPlay:
		c.play()
	case cmdPlayIndex:
		err := c.queue.SetCursor(cmd.index)
		cmd.reply <- err
		if err != nil {
			return
		}
		if t, ok := c.queue.Current(); ok {
			c.startTrack(t)
		}
	case cmdPause:
		c.pause()
	case cmdResume:
		c.resume()
	case cmdToggle:
		switch c.status {
		case StatusPlaying:
			c.pause()
		case StatusLoading:
			c.pendingPause = !c.pendingPause
		default:
			c.play()
		}
	case cmdStop:
		c.stopPlayback()
	case cmdNext:
		c.advance()
	case cmdPrevious:
		if t, ok := c.queue.Previous(); ok {
			c.startTrack(t)
		} else {
			c.stopPlayback()
		}
	case cmdSeek:
		c.seek(cmd.millis)
	case cmdSetVolume:
		c.setVolume(cmd.value)
	case cmdSetShuffle:
		c.queue.SetShuffle(cmd.flag)
		c.emit()
	case cmdSetAutoAdvance:
		c.autoAdvance = cmd.flag
		c.emit()
	case cmdRestore:
		if t, ok := c.queue.Current(); ok {
			cur := t
			c.current = &cur
			c.restoreMillis = clampMillis(cmd.millis, t.DurationMillis)
			c.position = c.restoreMillis
			c.streamLoaded = false
			// Paused-at-position: the first resume loads the track and
			// seeks to the primed offset.
			c.setStatus(StatusPaused)
		}
	case cmdAppend:
		c.queue.Append(cmd.trk)
	case cmdAppendAll:
		c.queue.AppendAll(cmd.trks)
	case cmdInsertAt:
		cmd.reply <- c.queue.InsertAt(cmd.index, cmd.trk)
	case cmdRemoveAt:
		removingCurrent := cmd.index == c.queue.Cursor() && c.busy()
		err := c.queue.RemoveAt(cmd.index)
		cmd.reply <- err
		if err == nil && removingCurrent {
			c.current = nil
			c.stopPlayback()
		}
	case cmdClear:
		c.queue.Clear()
		c.current = nil
		c.stopPlayback()
	}
}

// busy reports whether a track is loaded or being loaded.
func (c *Controller) busy() bool {
	switch c.status {
	case StatusPlaying, StatusPaused, StatusLoading:
		return true
	}
	return false
}

func (c *Controller) play() {
	switch c.status {
	case StatusPlaying:
		return
	case StatusLoading:
		c.pendingPause = false
		return
	case StatusPaused:
		c.resume()
		return
	}
	t, ok := c.queue.Current()
	if !ok {
		// Nothing selected: start from the head of the playback order.
		t, ok = c.queue.Next()
	}
	if !ok {
		log.Debug().Msg("Play with empty playlist")
		return
	}
	c.startTrack(t)
}

// startTrack begins the Loading transition for t and kicks off an
// asynchronous resolution tagged with a fresh generation. A newer
// play/next/previous bumps the generation so a late result is discarded
// at apply time.
func (c *Controller) startTrack(t track.Descriptor) {
	c.startTrackAt(t, 0)
}

// startTrackAt starts t with a seek to offsetMillis applied once the
// output reports ready. Used by restored sessions resuming mid-track.
func (c *Controller) startTrackAt(t track.Descriptor, offsetMillis int64) {
	c.gen++
	gen := c.gen
	cur := t
	c.current = &cur
	c.position = offsetMillis
	c.pendingSeekMillis = offsetMillis
	c.pendingPause = false
	c.streamLoaded = false
	c.lastErr = ""
	c.setStatus(StatusLoading)

	ctx, cancel := context.WithTimeout(c.ctx, c.resolveTimeout)
	go func() {
		defer cancel()
		handle, err := c.resolver.Resolve(ctx, cur)
		select {
		case c.results <- resolveResult{gen: gen, trk: cur, handle: handle, err: err}:
		case <-c.ctx.Done():
		}
	}()
}

func (c *Controller) applyResolution(res resolveResult) {
	if res.gen != c.gen {
		log.Debug().
			Uint64("gen", res.gen).
			Uint64("current", c.gen).
			Str("track", res.trk.String()).
			Msg("Discarding stale stream resolution")
		return
	}
	if res.err != nil {
		log.Error().Err(res.err).Str("track", res.trk.String()).Msg("Stream resolution failed")
		c.fail(res.err)
		return
	}
	if res.handle.Expired(time.Now()) {
		log.Warn().Str("track", res.trk.String()).Msg("Resolved stream already expired")
	}
	if err := c.out.Load(c.ctx, res.handle.URL); err != nil {
		log.Error().Err(err).Str("track", res.trk.String()).Msg("Audio output load failed")
		c.fail(err)
		return
	}
	c.loadedGen = res.gen
	c.streamLoaded = true
	// Playing starts once the output signals ready.
}

func (c *Controller) handleOutputEvent(ev audio.Event) {
	switch ev.Type {
	case audio.EventReady:
		if c.status != StatusLoading {
			// A load the user already superseded; the output was or will
			// be stopped by the newer command.
			return
		}
		if c.loadedGen != c.gen {
			// Ready from a stream an older command loaded while the
			// current track is still resolving.
			log.Debug().
				Uint64("loaded", c.loadedGen).
				Uint64("current", c.gen).
				Msg("Discarding stale ready event")
			if err := c.out.Stop(); err != nil {
				log.Debug().Err(err).Msg("Output stop after stale ready")
			}
			return
		}
		if c.pendingSeekMillis > 0 {
			if err := c.out.Seek(c.pendingSeekMillis); err != nil {
				log.Warn().Err(err).Msg("Restoring persisted position failed")
			} else {
				c.position = c.pendingSeekMillis
			}
			c.pendingSeekMillis = 0
		}
		if err := c.out.SetVolume(c.volume); err != nil {
			log.Warn().Err(err).Int("volume", c.volume).Msg("Applying volume failed")
		}
		if c.pendingPause {
			// A pause arrived while the track was loading; it stays
			// queued on the output, paused.
			c.pendingPause = false
			c.setStatus(StatusPaused)
			return
		}
		if err := c.out.Play(); err != nil {
			c.fail(err)
			return
		}
		c.setStatus(StatusPlaying)

	case audio.EventPositionTick:
		if c.status == StatusPlaying {
			c.position = ev.PositionMillis
			c.emit()
		}

	case audio.EventTrackEnded:
		if c.status != StatusPlaying && c.status != StatusLoading {
			return
		}
		c.setStatus(StatusEnded)
		if c.autoAdvance {
			c.advance()
		} else {
			c.stopPlayback()
		}

	case audio.EventDeviceError:
		log.Error().Err(ev.Err).Msg("Audio device error")
		c.fail(ev.Err)
	}
}

// advance moves to the next track or stops when the playlist is
// exhausted.
func (c *Controller) advance() {
	if t, ok := c.queue.Next(); ok {
		c.startTrack(t)
		return
	}
	c.current = nil
	c.stopPlayback()
}

func (c *Controller) pause() {
	if c.status == StatusLoading {
		// Finish the load paused instead of letting the ready event
		// start playback the user already suspended.
		c.pendingPause = true
		return
	}
	if c.status != StatusPlaying {
		return
	}
	if err := c.out.Pause(); err != nil {
		log.Warn().Err(err).Msg("Output pause failed")
	}
	c.setStatus(StatusPaused)
}

func (c *Controller) resume() {
	if c.status != StatusPaused {
		return
	}
	if !c.streamLoaded {
		// Restored session: nothing has been loaded yet, so start the
		// current track at the primed offset.
		if c.current != nil {
			offset := c.restoreMillis
			c.restoreMillis = 0
			c.startTrackAt(*c.current, offset)
		}
		return
	}
	if err := c.out.Play(); err != nil {
		c.fail(err)
		return
	}
	c.setStatus(StatusPlaying)
}

func (c *Controller) seek(millis int64) {
	if c.status != StatusPlaying && c.status != StatusPaused {
		return
	}
	var duration int64
	if c.current != nil {
		duration = c.current.DurationMillis
	}
	target := clampMillis(millis, duration)
	if c.status == StatusPaused && !c.streamLoaded {
		// Restored session: retarget the primed resume offset.
		c.restoreMillis = target
		c.position = target
		c.emit()
		return
	}
	if err := c.out.Seek(target); err != nil {
		log.Warn().Err(err).Int64("target", target).Msg("Seek failed")
		return
	}
	c.position = target
	c.emit()
}

func (c *Controller) setVolume(percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	if err := c.out.SetVolume(percent); err != nil {
		// Local state still updates; the device rejecting volume is not
		// fatal.
		log.Warn().Err(err).Int("volume", percent).Msg("Device rejected volume")
	}
	c.volume = percent
	c.emit()
}

func (c *Controller) stopPlayback() {
	// Invalidate any in-flight resolution.
	c.gen++
	if err := c.out.Stop(); err != nil {
		log.Debug().Err(err).Msg("Output stop")
	}
	c.streamLoaded = false
	c.pendingPause = false
	c.restoreMillis = 0
	c.pendingSeekMillis = 0
	c.position = 0
	c.setStatus(StatusStopped)
}

// fail surfaces an unrecoverable playback error: Error is emitted for the
// UI, then the controller settles in Stopped without retrying the same
// track.
func (c *Controller) fail(err error) {
	c.gen++
	c.lastErr = err.Error()
	c.setStatus(StatusError)
	if stopErr := c.out.Stop(); stopErr != nil {
		log.Debug().Err(stopErr).Msg("Output stop after failure")
	}
	c.streamLoaded = false
	c.pendingPause = false
	c.restoreMillis = 0
	c.pendingSeekMillis = 0
	c.position = 0
	c.lastErr = ""
	c.setStatus(StatusStopped)
}

func (c *Controller) setStatus(s Status) {
	c.status = s
	if s == StatusStopped {
		c.position = 0
	}
	c.emit()
}

// emit publishes a fresh snapshot to all listeners.
func (c *Controller) emit() {
	snap := c.buildSnapshot()

	c.mu.Lock()
	c.last = snap
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) buildSnapshot() Snapshot {
	snap := Snapshot{
		Status:         c.status,
		PositionMillis: c.position,
		Volume:         c.volume,
		Shuffle:        c.queue != nil && c.queue.ShuffleEnabled(),
		AutoAdvance:    c.autoAdvance,
		Err:            c.lastErr,
	}
	if c.current != nil {
		cur := *c.current
		snap.Track = &cur
	}
	return snap
}

func clampMillis(millis, duration int64) int64 {
	if millis < 0 {
		return 0
	}
	if duration > 0 && millis >= duration {
		return duration - 1
	}
	return millis
}
