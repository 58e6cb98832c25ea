package spa

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel values the host uses for a state it cannot report.
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// Missing reports if the state carries no usable value at all.
func Missing(s EntityState, ok bool) bool {
	return !ok || s.Value == "" || s.Value == StateUnknown || s.Value == StateUnavailable
}

// Number parses the state as a finite number.
func Number(s EntityState, ok bool) (float64, bool) {
	if Missing(s, ok) {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Read extracts a numeric reading for the entity from the snapshot.
// The second return is false if the entity is absent, unknown, unavailable or not a finite number.
func Read(snap Snapshot, id string) (float64, bool) {
	s, ok := snap[id]
	return Number(s, ok)
}

// Accepted set temperature targets. The display reads up to 199, a target past it
// still runs and ends limit-exceeded. MaxTarget is boiling.
const (
	MinTarget = 0
	MaxTarget = 212
)

// ErrTargetRange is returned for targets that can't be a set temperature.
var ErrTargetRange = errors.New("target out of range")

// CheckTarget rejects non finite targets and those outside MinTarget..MaxTarget.
func CheckTarget(target float64) error {
	if math.IsNaN(target) || math.IsInf(target, 0) || target < MinTarget || target > MaxTarget {
		return fmt.Errorf("%w: %v", ErrTargetRange, target)
	}
	return nil
}

// Round rounds to the nearest whole unit, halves rounding up.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Placeholder shown for a state without a value.
const Placeholder = "—"

// Format renders a state for display: a number rounded to one decimal with its unit,
// the raw text for non numeric states, or the placeholder when missing.
func Format(s EntityState, ok bool) string {
	if Missing(s, ok) {
		return Placeholder
	}
	n, num := Number(s, ok)
	if !num {
		return s.Value
	}
	return strconv.FormatFloat(math.Floor(n*10+0.5)/10, 'f', -1, 64) + s.Unit
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeName turns a device name into the form used inside entity ids.
// "ESP32 Spa" becomes "esp32_spa".
func NormalizeName(name string) string {
	n := nonAlnum.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(n, "_")
}
