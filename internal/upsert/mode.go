package upsert

import (
	"fmt"
	"strings"
)

// Mode decides what happens when an incoming row hits the conflict target.
type Mode int

const (
	// ModeSkip leaves the stored row untouched (ON CONFLICT DO NOTHING).
	ModeSkip Mode = iota
	// ModeUpdateIfDifferent overwrites the stored row with the incoming one,
	// but only when at least one written column differs.
	ModeUpdateIfDifferent
)

// String returns the config/CLI spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSkip:
		return "skip"
	case ModeUpdateIfDifferent:
		return "update"
	default:
		return "unknown"
	}
}

// ParseMode parses the config/CLI spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "skip", "nothing", "ignore":
		return ModeSkip, nil
	case "update", "update_if_different", "":
		return ModeUpdateIfDifferent, nil
	default:
		return 0, fmt.Errorf("unknown conflict mode %q (expected skip or update)", s)
	}
}
