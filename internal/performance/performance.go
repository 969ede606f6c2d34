// Package performance describes a presentation script and loads it from
// files or a backend API.
package performance

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid performance")
	// ErrNoLoader is returned when no registered loader handles a location.
	ErrNoLoader = errors.New("no loader for location")
)

// Segment is one timed unit of the presentation. Duration is in seconds.
type Segment struct {
	ID       int    `json:"id" yaml:"id" validate:"required"`
	Text     string `json:"text" yaml:"text"`
	Duration int    `json:"duration" yaml:"duration" validate:"gt=0"`
}

// Performance is an ordered list of segments presented together.
type Performance struct {
	ID       int       `json:"performanceId" yaml:"performanceId" validate:"required"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
	Segments []Segment `json:"speeches" yaml:"speeches" validate:"required,min=1,dive"`
}

// Len returns the number of segments.
func (p *Performance) Len() int {
	return len(p.Segments)
}

// Segment returns the segment at index i.
func (p *Performance) Segment(i int) (Segment, bool) {
	if i < 0 || i >= len(p.Segments) {
		return Segment{}, false
	}
	return p.Segments[i], true
}

// IndexOf returns the index of the segment with the given id, or -1.
func (p *Performance) IndexOf(id int) int {
	for i, s := range p.Segments {
		if s.ID == id {
			return i
		}
	}
	return -1
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that segment ids are unique.
func (p *Performance) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	seen := make(map[int]struct{}, len(p.Segments))
	for _, s := range p.Segments {
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("%w: duplicate speech id %d", ErrInvalid, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
