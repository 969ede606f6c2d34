package remote

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is an opcode broadcast through the hub. It is either
// "<performanceId>_<speechId>" (start that segment from zero) or "Pause".
type Command string

// PauseCommand stops playback on every listener.
const PauseCommand Command = "Pause"

// StartCommand builds the opcode that starts speechID of performanceID.
func StartCommand(performanceID, speechID int) Command {
	return Command(strconv.Itoa(performanceID) + "_" + strconv.Itoa(speechID))
}

// ParseCommand validates s against the opcode grammar.
func ParseCommand(s string) (Command, error) {
	c := Command(s)
	if c == PauseCommand {
		return c, nil
	}
	if _, _, ok := c.Start(); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
	return c, nil
}

// Start splits a start opcode into its ids.
func (c Command) Start() (performanceID, speechID int, ok bool) {
	perf, speech, found := strings.Cut(string(c), "_")
	if !found {
		return 0, 0, false
	}
	p, err := strconv.Atoi(perf)
	if err != nil {
		return 0, 0, false
	}
	s, err := strconv.Atoi(speech)
	if err != nil {
		return 0, 0, false
	}
	return p, s, true
}

// Kind returns "pause", "start" or "unknown". Used as a metrics label.
func (c Command) Kind() string {
	if c == PauseCommand {
		return "pause"
	}
	if _, _, ok := c.Start(); ok {
		return "start"
	}
	return "unknown"
}

func (c Command) String() string { return string(c) }
