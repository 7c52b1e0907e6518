package domain

import (
	"fmt"
	"strings"
)

// JoinMode selects what happens to records outside every zone.
type JoinMode int

const (
	// JoinInner drops records outside every zone.
	JoinInner JoinMode = iota
	// JoinLeft keeps them under the unassigned label.
	JoinLeft
)

// DefaultUnassignedLabel is the zone label given to unmatched records in JoinLeft mode.
const DefaultUnassignedLabel = "unassigned"

// ParseJoinMode accepts "inner", "left" and its alias "outer".
func ParseJoinMode(s string) (JoinMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inner":
		return JoinInner, nil
	case "left", "outer":
		return JoinLeft, nil
	default:
		return 0, fmt.Errorf("%w: unknown join mode %q", ErrConfiguration, s)
	}
}

func (m JoinMode) String() string {
	switch m {
	case JoinInner:
		return "inner"
	case JoinLeft:
		return "left"
	default:
		return fmt.Sprintf("JoinMode(%d)", int(m))
	}
}

// Alignment selects where the first 7-day window starts.
type Alignment int

const (
	// AlignRolling starts the first window on the first date of the data.
	AlignRolling Alignment = iota
	// AlignSunday starts it on the first Sunday on or after that date.
	AlignSunday
)

// ParseAlignment accepts "rolling-from-start" and "calendar-sunday" plus the
// short forms "rolling" and "sunday".
func ParseAlignment(s string) (Alignment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rolling", "rolling-from-start":
		return AlignRolling, nil
	case "sunday", "calendar-sunday":
		return AlignSunday, nil
	default:
		return 0, fmt.Errorf("%w: unknown alignment %q", ErrConfiguration, s)
	}
}

func (a Alignment) String() string {
	switch a {
	case AlignRolling:
		return "rolling-from-start"
	case AlignSunday:
		return "calendar-sunday"
	default:
		return fmt.Sprintf("Alignment(%d)", int(a))
	}
}

// JoinOptions configures the spatial join.
type JoinOptions struct {
	Mode            JoinMode
	UnassignedLabel string // defaults to DefaultUnassignedLabel
}

func (o JoinOptions) unassignedLabel() string {
	if o.UnassignedLabel == "" {
		return DefaultUnassignedLabel
	}
	return o.UnassignedLabel
}

// Options configures one aggregation run.
type Options struct {
	Categories []string
	Join       JoinOptions
	Alignment  Alignment
}

// ValidateCategories rejects empty and repeated category codes. Codes that
// match no record are valid and produce all-zero columns.
func ValidateCategories(categories []string) error {
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if c == "" {
			return fmt.Errorf("%w: empty category code", ErrConfiguration)
		}
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: category %q requested twice", ErrConfiguration, c)
		}
		seen[c] = struct{}{}
	}
	return nil
}

// ParseCategories splits a comma-separated category list, trimming blanks
// around each code. An empty string yields an empty list.
func ParseCategories(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
