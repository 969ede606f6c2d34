// Package clock provides the elapsed-time ticker that drives segment playback.
// A Clock counts whole periods (one second by default) up to a total and
// reports each step through callbacks. At most one ticking timer exists per
// Clock at any time.
package clock

import (
	"sync"
	"time"
)

// DefaultInterval is the length of one counted period.
const DefaultInterval = time.Second

// Ticker is the recurring tick source used by Clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Acker is implemented by tickers that want to know when a received tick has
// been applied. Ack is called after the counter step and onTick, before
// onComplete.
type Acker interface {
	Ack()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Option configures a Clock.
type Option func(*Clock)

// WithInterval sets the period length. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTicker replaces the tick source.
func WithTicker(fn TickerFunc) Option {
	return func(c *Clock) {
		if fn != nil {
			c.newTicker = fn
		}
	}
}

// Clock is a single elapsed-time counter.
type Clock struct {
	interval  time.Duration
	newTicker TickerFunc

	mu      sync.Mutex
	ticker  Ticker // nil when no timer exists
	stop    chan struct{}
	gen     uint64
	paused  bool
	elapsed int
	total   int
}

// New creates an idle Clock.
func New(opts ...Option) *Clock {
	c := &Clock{
		interval:  DefaultInterval,
		newTicker: NewTimeTicker,
		paused:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Play starts counting towards total. Every period onTick receives the new
// elapsed value; once elapsed has reached total, each further period calls
// onComplete instead until the owner calls Reset.
//
// Play is a no-op while a timer already exists. onTick runs with the clock
// locked and must not call back into the Clock; onComplete may.
func (c *Clock) Play(onTick func(elapsed int), onComplete func(), total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker != nil {
		return
	}

	c.paused = false
	c.total = total
	c.gen++
	c.stop = make(chan struct{})
	c.ticker = c.newTicker(c.interval)

	go c.run(c.gen, c.ticker, c.stop, onTick, onComplete)
}

// Pause stops the counter from advancing. The timer is kept so Continue does
// not need to re-arm it. No-op without a timer.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker != nil {
		c.paused = true
	}
}

// Continue resumes counting from the current elapsed value. No-op without a
// timer.
func (c *Clock) Continue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker != nil {
		c.paused = false
	}
}

// Reset stops the timer, zeroes the counter and reports 0 through onTick.
// Afterwards the Clock is idle and a new Play starts a fresh timer. No-op
// without a timer.
func (c *Clock) Reset(onTick func(elapsed int)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker == nil {
		return
	}

	c.paused = true
	c.elapsed = 0
	if onTick != nil {
		onTick(c.elapsed)
	}

	c.ticker.Stop()
	close(c.stop)
	c.ticker = nil
	c.stop = nil
	c.gen++
}

// Elapsed returns the current counter value.
func (c *Clock) Elapsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Running reports whether a timer exists.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticker != nil
}

// Paused reports whether the counter is held.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Clock) run(gen uint64, t Ticker, stop <-chan struct{}, onTick func(int), onComplete func()) {
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C():
			complete, alive := c.tick(gen, onTick)
			if a, ok := t.(Acker); ok {
				a.Ack()
			}
			if !alive {
				return
			}
			if complete && onComplete != nil {
				onComplete()
			}
		}
	}
}

// tick advances one period for the timer of generation gen. It reports
// whether the total has been reached and whether the timer is still current.
func (c *Clock) tick(gen uint64, onTick func(int)) (complete, alive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.ticker == nil {
		return false, false
	}

	if !c.paused && c.elapsed < c.total {
		c.elapsed++
		if onTick != nil {
			onTick(c.elapsed)
		}
		return false, true
	}

	return c.elapsed >= c.total, true
}
