// Package controller keeps segment playback in step between the local
// playback clock and the broadcast hub.
//
// A Controller owns the session state and mirrors every change to the
// injected Callbacks. PlayPause, Next and Prev are no-ops while the hub is
// not connected. Every transition bumps a session version; a start or pause
// whose command completes after the session has moved past that version is
// discarded instead of applied.
package controller

//go:generate mockgen -destination=sender_mock_test.go -package=controller . CommandSender

import (
	"context"
	"log/slog"
	"sync"

	"speech-presenter/internal/clock"
	"speech-presenter/internal/performance"
	"speech-presenter/internal/remote"
)

// CommandSender delivers an opcode to the hub.
type CommandSender interface {
	SendCommand(ctx context.Context, command string) error
}

// Callbacks receive session changes. Nil funcs are skipped. They may run on
// the clock goroutine and must not call PlayPause, Next, Prev or
// SetConnected synchronously.
type Callbacks struct {
	StreamingStatus     func(playing bool)
	CurrentSpeechID     func(id int)
	CurrentPlaybackTime func(seconds int)
}

// Observer is told about sends, ticks and play state, e.g. for metrics.
type Observer interface {
	CommandSent(kind string, err error)
	IncClockTicks()
	SetPlaying(playing bool)
}

// State is the playback state of a session.
type State int

const (
	StateIdle State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

// Session is a copy of the controller's session fields.
type Session struct {
	PerformanceID       int                   `json:"performance_id"`
	Segments            []performance.Segment `json:"segments"`
	CurrentSpeechIndex  int                   `json:"current_speech_index"`
	CurrentSpeechID     int                   `json:"current_speech_id"`
	IsPlaying           bool                  `json:"is_playing"`
	CurrentPlaybackTime int                   `json:"current_playback_time"`
	MaxDuration         int                   `json:"max_duration"`
	ConnectingStatus    bool                  `json:"connected"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithCallbacks sets the session change callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) { c.cb = cb }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver sets the observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.obs = o }
}

// WithConnected sets the initial connection status.
func WithConnected(connected bool) Option {
	return func(c *Controller) { c.sess.ConnectingStatus = connected }
}

// Controller implements play/pause and segment navigation.
type Controller struct {
	ctx    context.Context
	clock  *clock.Clock
	sender CommandSender
	cb     Callbacks
	obs    Observer
	log    *slog.Logger

	// clockMu orders version checks with the clock calls that follow them.
	// It is never held across a send.
	clockMu sync.Mutex

	mu      sync.Mutex
	sess    Session
	version uint64
	pending int // start commands in flight
}

// New creates an idle controller positioned on the first segment of p. ctx
// is used for commands the controller issues on its own, such as the pause
// sent when a segment runs out.
func New(ctx context.Context, p *performance.Performance, clk *clock.Clock, sender CommandSender, opts ...Option) *Controller {
	c := &Controller{
		ctx:    ctx,
		clock:  clk,
		sender: sender,
		log:    slog.Default(),
		sess: Session{
			PerformanceID: p.ID,
			Segments:      append([]performance.Segment(nil), p.Segments...),
		},
	}
	if first, ok := p.Segment(0); ok {
		c.sess.CurrentSpeechID = first.ID
		c.sess.MaxDuration = first.Duration
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "controller")
	return c
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	s.Segments = append([]performance.Segment(nil), c.sess.Segments...)
	return s
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.IsPlaying {
		return StatePlaying
	}
	return StateIdle
}

// SetConnected records the hub connection status. Losing the connection
// while playing stops playback locally without sending a command.
func (c *Controller) SetConnected(connected bool) {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()

	c.mu.Lock()
	if c.sess.ConnectingStatus == connected {
		c.mu.Unlock()
		return
	}
	c.sess.ConnectingStatus = connected
	stopping := !connected && c.sess.IsPlaying
	if !connected {
		c.version++
		c.sess.IsPlaying = false
	}
	c.mu.Unlock()

	c.log.Info("hub connection status changed", "connected", connected)
	if stopping {
		c.notifyPlaying(false)
		c.clock.Reset(c.onTick)
	}
}

// PlayPause starts the current segment when idle and pauses when playing.
func (c *Controller) PlayPause(ctx context.Context) {
	c.mu.Lock()
	if !c.sess.ConnectingStatus || len(c.sess.Segments) == 0 {
		c.mu.Unlock()
		return
	}
	if c.sess.IsPlaying {
		c.mu.Unlock()
		c.pause(ctx)
		return
	}
	c.version++
	v := c.version
	c.pending++
	cmd := remote.StartCommand(c.sess.PerformanceID, c.sess.CurrentSpeechID)
	c.mu.Unlock()

	err := c.send(ctx, cmd)
	if c.start(v) && err == nil {
		c.resync(ctx)
	}
}

// Next moves to the following segment. No-op on the last one.
func (c *Controller) Next(ctx context.Context) {
	c.step(ctx, 1)
}

// Prev moves to the preceding segment. No-op on the first one.
func (c *Controller) Prev(ctx context.Context) {
	c.step(ctx, -1)
}

func (c *Controller) step(ctx context.Context, delta int) {
	c.clockMu.Lock()

	c.mu.Lock()
	target := c.sess.CurrentSpeechIndex + delta
	if !c.sess.ConnectingStatus || target < 0 || target >= len(c.sess.Segments) {
		c.mu.Unlock()
		c.clockMu.Unlock()
		return
	}
	seg := c.sess.Segments[target]
	c.sess.CurrentSpeechIndex = target
	c.sess.CurrentSpeechID = seg.ID
	c.sess.MaxDuration = seg.Duration
	c.version++
	v := c.version
	playing := c.sess.IsPlaying
	if playing {
		c.pending++
	}
	cmd := remote.StartCommand(c.sess.PerformanceID, seg.ID)
	c.mu.Unlock()

	if c.cb.CurrentSpeechID != nil {
		c.cb.CurrentSpeechID(seg.ID)
	}
	c.clock.Reset(c.onTick)
	c.clockMu.Unlock()

	c.log.Debug("segment changed", "index", target, "speech_id", seg.ID, "playing", playing)

	if !playing {
		return
	}
	err := c.send(ctx, cmd)
	if c.start(v) && err == nil {
		c.resync(ctx)
	}
}

// start marks the session playing and arms the clock for the current
// segment, unless the session moved on while the start command was in
// flight. It reports whether the discarded start left the hub playing while
// the session is idle with no other start in flight.
func (c *Controller) start(v uint64) (needsPause bool) {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()

	c.mu.Lock()
	c.pending--
	if c.version != v || !c.sess.ConnectingStatus {
		needsPause = c.pending == 0 && !c.sess.IsPlaying && c.sess.ConnectingStatus
		c.mu.Unlock()
		c.log.Debug("discarding stale start", "version", v)
		return needsPause
	}
	changed := !c.sess.IsPlaying
	c.sess.IsPlaying = true
	total := c.sess.MaxDuration
	c.mu.Unlock()

	if changed {
		c.notifyPlaying(true)
	}
	c.clock.Play(c.onTick, c.completion(v), total)
	return false
}

// resync pauses the hub after a discarded start it has already accepted.
func (c *Controller) resync(ctx context.Context) {
	c.log.Info("pausing hub after discarded start")
	c.send(ctx, remote.PauseCommand)
}

func (c *Controller) pause(ctx context.Context) {
	c.mu.Lock()
	c.version++
	v := c.version
	c.mu.Unlock()

	c.send(ctx, remote.PauseCommand)
	c.stop(v)
}

// stop marks the session idle and resets the clock, unless a newer
// transition happened while the pause command was in flight.
func (c *Controller) stop(v uint64) {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()

	c.mu.Lock()
	if c.version != v {
		c.mu.Unlock()
		c.log.Debug("discarding stale pause", "version", v)
		return
	}
	changed := c.sess.IsPlaying
	c.sess.IsPlaying = false
	c.mu.Unlock()

	if changed {
		c.notifyPlaying(false)
	}
	c.clock.Reset(c.onTick)
}

func (c *Controller) completion(v uint64) func() {
	return func() {
		c.mu.Lock()
		current := c.version == v && c.sess.IsPlaying
		c.mu.Unlock()

		if !current {
			return
		}
		c.log.Info("segment finished")
		c.pause(c.ctx)
	}
}

func (c *Controller) onTick(elapsed int) {
	c.mu.Lock()
	c.sess.CurrentPlaybackTime = elapsed
	c.mu.Unlock()

	if elapsed > 0 && c.obs != nil {
		c.obs.IncClockTicks()
	}
	if c.cb.CurrentPlaybackTime != nil {
		c.cb.CurrentPlaybackTime(elapsed)
	}
}

// send delivers cmd and logs a failure. Callers apply the local transition
// that follows either way.
func (c *Controller) send(ctx context.Context, cmd remote.Command) error {
	err := c.sender.SendCommand(ctx, cmd.String())
	if c.obs != nil {
		c.obs.CommandSent(cmd.Kind(), err)
	}
	if err != nil {
		c.log.Warn("command not delivered", "command", cmd.String(), "error", err)
		return err
	}
	c.log.Debug("command sent", "command", cmd.String())
	return nil
}

func (c *Controller) notifyPlaying(playing bool) {
	if c.obs != nil {
		c.obs.SetPlaying(playing)
	}
	if c.cb.StreamingStatus != nil {
		c.cb.StreamingStatus(playing)
	}
}
