package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"speech-presenter/internal/controller"
	"speech-presenter/internal/performance"
)

// Store mirrors the controller's session for the API and the feed. It is fed
// through controller callbacks and hub events and never drives playback.
type Store struct {
	perf *performance.Performance

	mu        sync.Mutex
	status    Status
	nextID    int
	listeners map[int]func(Event)
}

// NewStore creates a store for p, positioned on its first segment, with a
// fresh session id.
func NewStore(p *performance.Performance) *Store {
	s := &Store{
		perf:      p,
		listeners: make(map[int]func(Event)),
		status: Status{
			SessionID:     uuid.NewString(),
			PerformanceID: p.ID,
		},
	}
	if first, ok := p.Segment(0); ok {
		s.status.CurrentSpeechID = first.ID
		s.status.MaxDuration = first.Duration
	}
	return s
}

// Callbacks returns controller callbacks that update the store.
func (s *Store) Callbacks() controller.Callbacks {
	return controller.Callbacks{
		StreamingStatus: func(playing bool) {
			s.update(func(st *Status) { st.IsPlaying = playing })
		},
		CurrentSpeechID: func(id int) {
			s.update(func(st *Status) {
				st.CurrentSpeechID = id
				if i := s.perf.IndexOf(id); i >= 0 {
					st.CurrentSpeechIndex = i
					st.MaxDuration = s.perf.Segments[i].Duration
				}
			})
		},
		CurrentPlaybackTime: func(seconds int) {
			s.update(func(st *Status) { st.CurrentPlaybackTime = seconds })
		},
	}
}

// SetConnected records the hub connection status.
func (s *Store) SetConnected(connected bool) {
	s.update(func(st *Status) {
		st.Connected = connected
		if !connected {
			st.IsPlaying = false
		}
	})
}

// UpdateCount records an updateCount payload and publishes it. The payload
// is kept as display text; its leading integer, if any, becomes the count.
// The returned error reports a payload without a count, which is still
// published with the previous count.
func (s *Store) UpdateCount(payload string) (int, error) {
	text := strings.TrimSpace(payload)
	n, err := leadingCount(text)

	s.mu.Lock()
	s.status.Audience.Text = text
	if err == nil {
		s.status.Audience.Count = n
	}
	a := s.status.Audience
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	ev := NewAudienceEvent(a)
	for _, fn := range listeners {
		fn(ev)
	}
	return a.Count, err
}

func leadingCount(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, errors.New("empty audience count")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid audience count %q: %w", text, err)
	}
	return n, nil
}

// Status returns a copy of the current status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe registers fn for every store event. fn must not block.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) update(fn func(*Status)) {
	s.mu.Lock()
	before := s.status
	fn(&s.status)
	after := s.status
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	if before == after {
		return
	}
	ev := NewSnapshotEvent(after)
	for _, l := range listeners {
		l(ev)
	}
}

func (s *Store) snapshotListeners() []func(Event) {
	out := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
