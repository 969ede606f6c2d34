package server

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestStore_NewStore(t *testing.T) {
	store := NewStore(testPerformance())
	s := store.Status()

	if s.SessionID == "" {
		t.Error("expected session id")
	}
	if s.CurrentSpeechID != 1 || s.CurrentSpeechIndex != 0 || s.MaxDuration != 5 {
		t.Errorf("expected first segment, got %+v", s)
	}

	other := NewStore(testPerformance())
	if other.Status().SessionID == s.SessionID {
		t.Error("expected distinct session ids")
	}
}

func TestStore_Callbacks(t *testing.T) {
	store := NewStore(testPerformance())

	var events []Event
	store.Subscribe(func(ev Event) { events = append(events, ev) })

	cb := store.Callbacks()
	cb.CurrentSpeechID(3)
	cb.StreamingStatus(true)
	cb.CurrentPlaybackTime(2)

	s := store.Status()
	if s.CurrentSpeechID != 3 || s.CurrentSpeechIndex != 2 || s.MaxDuration != 3 {
		t.Errorf("unexpected segment fields: %+v", s)
	}
	if !s.IsPlaying || s.CurrentPlaybackTime != 2 {
		t.Errorf("unexpected playback fields: %+v", s)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	last := events[2]
	if last.Type != EventSnapshot || last.Status == nil || last.Status.CurrentPlaybackTime != 2 {
		t.Errorf("unexpected last event: %+v", last)
	}
}

func TestStore_NoEventWithoutChange(t *testing.T) {
	store := NewStore(testPerformance())

	count := 0
	store.Subscribe(func(Event) { count++ })

	cb := store.Callbacks()
	cb.CurrentPlaybackTime(0)
	cb.StreamingStatus(false)

	if count != 0 {
		t.Errorf("expected no events, got %d", count)
	}
}

func TestStore_SetConnected(t *testing.T) {
	store := NewStore(testPerformance())
	store.SetConnected(true)
	store.Callbacks().StreamingStatus(true)

	store.SetConnected(false)
	s := store.Status()
	if s.Connected || s.IsPlaying {
		t.Errorf("expected disconnected and idle, got %+v", s)
	}
}

func TestStore_UpdateCount(t *testing.T) {
	store := NewStore(testPerformance())

	var got []Event
	unsubscribe := store.Subscribe(func(ev Event) { got = append(got, ev) })

	n, err := store.UpdateCount(" 12 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 || store.Status().Audience.Count != 12 {
		t.Errorf("expected audience 12, got %+v", store.Status().Audience)
	}
	if len(got) != 1 || got[0].Type != EventAudience || got[0].Audience == nil || got[0].Audience.Count != 12 {
		t.Errorf("unexpected events: %+v", got)
	}

	n, err = store.UpdateCount("0 listeners")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := store.Status().Audience
	if n != 0 || a.Count != 0 || a.Text != "0 listeners" {
		t.Errorf("expected count 0 with display text, got %+v", a)
	}

	if _, err := store.UpdateCount("many"); err == nil {
		t.Error("expected error for payload without a count")
	}
	a = store.Status().Audience
	if a.Count != 0 || a.Text != "many" {
		t.Errorf("expected previous count with new text, got %+v", a)
	}
	if len(got) != 3 {
		t.Errorf("expected every payload published, got %d events", len(got))
	}

	unsubscribe()
	store.UpdateCount("13")
	if len(got) != 3 {
		t.Errorf("expected no events after unsubscribe, got %d", len(got))
	}
}

func TestAudienceEvent_ZeroCountEncoded(t *testing.T) {
	data, err := json.Marshal(NewAudienceEvent(Audience{Count: 0, Text: "0"}))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]map[string]any
	json.Unmarshal(data, &decoded)
	count, ok := decoded["audience"]["count"]
	if !ok {
		t.Fatalf("expected count in %s", data)
	}
	if count != float64(0) {
		t.Errorf("expected count 0, got %v", count)
	}

	snapshot, _ := json.Marshal(NewSnapshotEvent(Status{}))
	var top map[string]any
	json.Unmarshal(snapshot, &top)
	if _, ok := top["audience"]; ok {
		t.Errorf("expected no top-level audience on snapshot event: %s", snapshot)
	}
}
