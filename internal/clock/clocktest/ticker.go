// Package clocktest provides a manually driven tick source for clock tests.
package clocktest

import (
	"errors"
	"sync"
	"time"

	"speech-presenter/internal/clock"
)

// ErrNoTicker is returned by Tick when no live ticker exists.
var ErrNoTicker = errors.New("no live ticker")

// Source hands out tickers that only fire when Tick is called.
type Source struct {
	mu      sync.Mutex
	tickers []*Ticker
}

// NewSource creates an empty Source.
func NewSource() *Source {
	return &Source{}
}

// New satisfies clock.TickerFunc.
func (s *Source) New(time.Duration) clock.Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Ticker{
		ch:   make(chan time.Time),
		ack:  make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.tickers = append(s.tickers, t)
	return t
}

// Created returns how many tickers were handed out.
func (s *Source) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickers)
}

// Live returns how many tickers have not been stopped.
func (s *Source) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tickers {
		if !t.Stopped() {
			n++
		}
	}
	return n
}

// Tick fires the newest live ticker once and waits until the clock has
// applied it: the counter has stepped and onTick has returned. onComplete
// may still be running when Tick returns.
func (s *Source) Tick(timeout time.Duration) error {
	s.mu.Lock()
	var current *Ticker
	for i := len(s.tickers) - 1; i >= 0; i-- {
		if !s.tickers[i].Stopped() {
			current = s.tickers[i]
			break
		}
	}
	s.mu.Unlock()

	if current == nil {
		return ErrNoTicker
	}

	deadline := time.After(timeout)
	select {
	case current.ch <- time.Now():
	case <-current.done:
		return ErrNoTicker
	case <-deadline:
		return errors.New("tick not consumed")
	}

	select {
	case <-current.ack:
		return nil
	case <-deadline:
		return errors.New("tick not applied")
	}
}

// Ticker is a clock.Ticker driven by Source.Tick.
type Ticker struct {
	ch   chan time.Time
	ack  chan struct{}
	done chan struct{}
	once sync.Once
}

func (t *Ticker) C() <-chan time.Time { return t.ch }

// Ack satisfies clock.Acker.
func (t *Ticker) Ack() {
	select {
	case t.ack <- struct{}{}:
	default:
	}
}

func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Stopped reports whether Stop was called.
func (t *Ticker) Stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
