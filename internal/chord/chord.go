// Package chord turns raw key events into edge-triggered navigation actions.
//
// Only Ctrl, ArrowRight and ArrowLeft are tracked. Ctrl+ArrowRight fires
// ActionNext and Ctrl+ArrowLeft fires ActionPrev. After a chord fires, further
// firing is suppressed until a key is released, so operating-system key
// repeat does not trigger the action again.
package chord

import (
	"errors"
	"strings"
	"sync"
)

// ErrUnknownKey is returned for keys outside the tracked set.
var ErrUnknownKey = errors.New("unknown key")

// Key is one of the tracked keys.
type Key int

const (
	KeyCtrl Key = iota
	KeyArrowRight
	KeyArrowLeft

	numKeys
)

func (k Key) String() string {
	switch k {
	case KeyCtrl:
		return "Control"
	case KeyArrowRight:
		return "ArrowRight"
	case KeyArrowLeft:
		return "ArrowLeft"
	default:
		return "unknown"
	}
}

// ParseKey maps a KeyboardEvent.key name to a Key. Matching ignores case and
// surrounding spaces; "ctrl" is accepted as an alias for "control".
func ParseKey(name string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "control", "ctrl":
		return KeyCtrl, nil
	case "arrowright":
		return KeyArrowRight, nil
	case "arrowleft":
		return KeyArrowLeft, nil
	default:
		return 0, ErrUnknownKey
	}
}

// EventType is the direction of a key event.
type EventType int

const (
	KeyDown EventType = iota
	KeyUp
)

// ParseEventType accepts "keydown" and "keyup".
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "keydown":
		return KeyDown, nil
	case "keyup":
		return KeyUp, nil
	default:
		return 0, errors.New("unknown event type")
	}
}

// Action is what a key event resolved to.
type Action int

const (
	ActionNone Action = iota
	ActionNext
	ActionPrev
)

func (a Action) String() string {
	switch a {
	case ActionNext:
		return "next"
	case ActionPrev:
		return "prev"
	default:
		return "none"
	}
}

// Detector tracks pressed keys and resolves chords. Safe for concurrent use.
type Detector struct {
	mu         sync.Mutex
	pressed    [numKeys]bool
	suppressed bool
}

// NewDetector creates a Detector with all keys released.
func NewDetector() *Detector {
	return &Detector{}
}

// Handle records one key event and returns the action it fires, if any.
func (d *Detector) Handle(key Key, typ EventType) Action {
	if key < 0 || key >= numKeys {
		return d.release(typ)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pressed[key] = typ == KeyDown

	switch {
	case d.held(KeyCtrl, KeyArrowRight) && !d.suppressed:
		d.suppressed = true
		return ActionNext
	case d.held(KeyCtrl, KeyArrowLeft) && !d.suppressed:
		d.suppressed = true
		return ActionPrev
	case typ == KeyUp:
		d.suppressed = false
	}
	return ActionNone
}

// HandleName parses name and records the event. Unknown keys never touch the
// pressed state; their key-up still lifts suppression. The returned error is
// ErrUnknownKey for such keys.
func (d *Detector) HandleName(name string, typ EventType) (Action, error) {
	key, err := ParseKey(name)
	if err != nil {
		d.release(typ)
		return ActionNone, err
	}
	return d.Handle(key, typ), nil
}

// Pressed reports whether key is currently held.
func (d *Detector) Pressed(key Key) bool {
	if key < 0 || key >= numKeys {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pressed[key]
}

func (d *Detector) release(typ EventType) Action {
	if typ == KeyUp {
		d.mu.Lock()
		d.suppressed = false
		d.mu.Unlock()
	}
	return ActionNone
}

func (d *Detector) held(keys ...Key) bool {
	for _, k := range keys {
		if !d.pressed[k] {
			return false
		}
	}
	return true
}
