// Package server exposes the presenter over HTTP: the gin control API, the
// session status store and the websocket event feed for UIs.
package server

// EventType identifies the type of event pushed on the feed.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventAudience EventType = "audience"
)

// Audience is the last audience update pushed by the hub. Text is the
// payload as received, for display. Count is the number it starts with and
// keeps its previous value when a payload carries none.
type Audience struct {
	Count int    `json:"count"`
	Text  string `json:"text"`
}

// Status is the presenter state as seen by UIs.
type Status struct {
	SessionID           string   `json:"session_id"`
	PerformanceID       int      `json:"performance_id"`
	CurrentSpeechIndex  int      `json:"current_speech_index"`
	CurrentSpeechID     int      `json:"current_speech_id"`
	IsPlaying           bool     `json:"is_playing"`
	CurrentPlaybackTime int      `json:"current_playback_time"`
	MaxDuration         int      `json:"max_duration"`
	Connected           bool     `json:"connected"`
	Audience            Audience `json:"audience"`
}

// Event is a message sent to feed clients.
type Event struct {
	Type     EventType `json:"type"`
	Status   *Status   `json:"status,omitempty"`
	Audience *Audience `json:"audience,omitempty"`
}

// NewSnapshotEvent creates a snapshot event.
func NewSnapshotEvent(s Status) Event {
	return Event{
		Type:   EventSnapshot,
		Status: &s,
	}
}

// NewAudienceEvent creates an audience event.
func NewAudienceEvent(a Audience) Event {
	return Event{
		Type:     EventAudience,
		Audience: &a,
	}
}
