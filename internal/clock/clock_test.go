package clock_test

import (
	"sync"
	"testing"
	"time"

	"speech-presenter/internal/clock"
	"speech-presenter/internal/clock/clocktest"
)

const tickTimeout = time.Second

type recorder struct {
	mu        sync.Mutex
	ticks     []int
	completed int
	tickCh    chan int
	doneCh    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		tickCh: make(chan int, 64),
		doneCh: make(chan struct{}, 64),
	}
}

func (r *recorder) onTick(elapsed int) {
	r.mu.Lock()
	r.ticks = append(r.ticks, elapsed)
	r.mu.Unlock()
	r.tickCh <- elapsed
}

func (r *recorder) onComplete() {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
	r.doneCh <- struct{}{}
}

func (r *recorder) snapshot() ([]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...), r.completed
}

func waitTick(t *testing.T, r *recorder) int {
	t.Helper()
	select {
	case v := <-r.tickCh:
		return v
	case <-time.After(tickTimeout):
		t.Fatal("timed out waiting for tick")
		return 0
	}
}

func waitDone(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.doneCh:
	case <-time.After(tickTimeout):
		t.Fatal("timed out waiting for completion")
	}
}

func newManualClock() (*clock.Clock, *clocktest.Source) {
	src := clocktest.NewSource()
	return clock.New(clock.WithTicker(src.New)), src
}

func TestClock_PlayTicksUpToTotal(t *testing.T) {
	c, src := newManualClock()
	r := newRecorder()

	c.Play(r.onTick, r.onComplete, 3)

	for want := 1; want <= 3; want++ {
		if err := src.Tick(tickTimeout); err != nil {
			t.Fatalf("tick %d: %v", want, err)
		}
		if got := waitTick(t, r); got != want {
			t.Errorf("expected tick %d, got %d", want, got)
		}
	}

	if err := src.Tick(tickTimeout); err != nil {
		t.Fatalf("completion tick: %v", err)
	}
	waitDone(t, r)

	if c.Elapsed() != 3 {
		t.Errorf("expected elapsed 3, got %d", c.Elapsed())
	}
}

func TestClock_TickAppliedWhenTickReturns(t *testing.T) {
	c, src := newManualClock()

	var mu sync.Mutex
	var seen []int
	c.Play(func(v int) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	}, nil, 5)

	for want := 1; want <= 3; want++ {
		if err := src.Tick(tickTimeout); err != nil {
			t.Fatal(err)
		}
		if c.Elapsed() != want {
			t.Errorf("expected elapsed %d right after tick, got %d", want, c.Elapsed())
		}
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n != want {
			t.Errorf("expected %d onTick calls, got %d", want, n)
		}
	}
}

func TestClock_DoublePlayIsNoop(t *testing.T) {
	c, src := newManualClock()
	r := newRecorder()

	c.Play(r.onTick, r.onComplete, 5)
	c.Play(r.onTick, r.onComplete, 5)

	if src.Created() != 1 {
		t.Fatalf("expected 1 ticker, got %d", src.Created())
	}

	for i := 0; i < 5; i++ {
		if err := src.Tick(tickTimeout); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		waitTick(t, r)
	}

	ticks, _ := r.snapshot()
	if len(ticks) != 5 {
		t.Fatalf("expected 5 ticks, got %d", len(ticks))
	}
	for i, v := range ticks {
		if v != i+1 {
			t.Errorf("ticks[%d] = %d, expected %d", i, v, i+1)
		}
	}
}

func TestClock_DoublePlayRealTime(t *testing.T) {
	c := clock.New(clock.WithInterval(5 * time.Millisecond))
	r := newRecorder()

	c.Play(r.onTick, r.onComplete, 5)
	c.Play(r.onTick, r.onComplete, 5)

	waitDone(t, r)
	c.Reset(nil)

	ticks, _ := r.snapshot()
	if len(ticks) != 5 {
		t.Fatalf("expected 5 ticks, got %v", ticks)
	}
	for i, v := range ticks {
		if v != i+1 {
			t.Errorf("ticks[%d] = %d, expected %d", i, v, i+1)
		}
	}
}

func TestClock_PauseHoldsCounter(t *testing.T) {
	c, src := newManualClock()
	r := newRecorder()

	c.Play(r.onTick, r.onComplete, 10)
	if err := src.Tick(tickTimeout); err != nil {
		t.Fatal(err)
	}
	waitTick(t, r)

	c.Pause()
	if !c.Paused() {
		t.Error("expected clock to be paused")
	}
	for i := 0; i < 3; i++ {
		if err := src.Tick(tickTimeout); err != nil {
			t.Fatal(err)
		}
	}
	if c.Elapsed() != 1 {
		t.Errorf("expected elapsed 1 while paused, got %d", c.Elapsed())
	}
	if !c.Running() {
		t.Error("expected timer to be kept while paused")
	}

	c.Continue()
	if err := src.Tick(tickTimeout); err != nil {
		t.Fatal(err)
	}
	if got := waitTick(t, r); got != 2 {
		t.Errorf("expected tick 2 after continue, got %d", got)
	}
	if src.Created() != 1 {
		t.Errorf("expected continue to reuse the timer, got %d tickers", src.Created())
	}
}

func TestClock_ResetZeroesAndIdles(t *testing.T) {
	c, src := newManualClock()
	r := newRecorder()

	c.Play(r.onTick, r.onComplete, 10)
	for i := 0; i < 2; i++ {
		if err := src.Tick(tickTimeout); err != nil {
			t.Fatal(err)
		}
		waitTick(t, r)
	}

	var flushed []int
	c.Reset(func(v int) { flushed = append(flushed, v) })

	if len(flushed) != 1 || flushed[0] != 0 {
		t.Errorf("expected reset to report 0 once, got %v", flushed)
	}
	if c.Elapsed() != 0 {
		t.Errorf("expected elapsed 0, got %d", c.Elapsed())
	}
	if c.Running() {
		t.Error("expected clock to be idle after reset")
	}
	if src.Live() != 0 {
		t.Errorf("expected no live tickers, got %d", src.Live())
	}

	c.Play(r.onTick, r.onComplete, 10)
	if src.Created() != 2 {
		t.Errorf("expected play after reset to arm a new timer, got %d", src.Created())
	}
	if err := src.Tick(tickTimeout); err != nil {
		t.Fatal(err)
	}
	if got := waitTick(t, r); got != 1 {
		t.Errorf("expected fresh cycle to start at 1, got %d", got)
	}
}

func TestClock_NoopsWithoutTimer(t *testing.T) {
	c, src := newManualClock()

	called := false
	c.Pause()
	c.Continue()
	c.Reset(func(int) { called = true })

	if called {
		t.Error("expected reset without timer not to report")
	}
	if c.Running() {
		t.Error("expected clock to stay idle")
	}
	if src.Created() != 0 {
		t.Errorf("expected no tickers, got %d", src.Created())
	}
}

func TestClock_CompletionRepeatsUntilReset(t *testing.T) {
	c, src := newManualClock()
	r := newRecorder()

	c.Play(r.onTick, r.onComplete, 1)
	if err := src.Tick(tickTimeout); err != nil {
		t.Fatal(err)
	}
	waitTick(t, r)

	for i := 0; i < 2; i++ {
		if err := src.Tick(tickTimeout); err != nil {
			t.Fatal(err)
		}
		waitDone(t, r)
	}

	c.Reset(nil)
	if err := src.Tick(tickTimeout); err != clocktest.ErrNoTicker {
		t.Errorf("expected no live ticker after reset, got %v", err)
	}

	_, completed := r.snapshot()
	if completed != 2 {
		t.Errorf("expected 2 completions, got %d", completed)
	}
}

func TestClock_ResetFromCompletion(t *testing.T) {
	c, src := newManualClock()
	r := newRecorder()

	done := make(chan struct{})
	c.Play(r.onTick, func() {
		c.Reset(nil)
		close(done)
	}, 1)

	for i := 0; i < 2; i++ {
		if err := src.Tick(tickTimeout); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(tickTimeout):
		t.Fatal("completion did not run")
	}

	if c.Running() {
		t.Error("expected reset from completion to idle the clock")
	}
}

func TestClock_AtMostOneLiveTimer(t *testing.T) {
	c, src := newManualClock()

	ops := []func(){
		func() { c.Play(nil, nil, 3) },
		func() { c.Play(nil, nil, 3) },
		c.Pause,
		func() { c.Play(nil, nil, 3) },
		c.Continue,
		func() { c.Reset(nil) },
		func() { c.Reset(nil) },
		func() { c.Play(nil, nil, 3) },
		c.Pause,
		func() { c.Reset(nil) },
		func() { c.Play(nil, nil, 3) },
		func() { c.Play(nil, nil, 3) },
	}

	for i, op := range ops {
		op()
		if live := src.Live(); live > 1 {
			t.Fatalf("after op %d: expected at most 1 live timer, got %d", i, live)
		}
	}
}
