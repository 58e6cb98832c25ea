package spa

import (
	"fmt"
	"time"
)

// EntityState is a single host managed data point as last reported by the host.
type EntityState struct {
	ID    string // entity id, ex: sensor.spa_set_temp
	Value string // raw state string from the host
	Unit  string // optional unit of measurement
}

// Snapshot is a point in time copy of entity states keyed by entity id.
type Snapshot map[string]EntityState

// Action is a request to the host to perform a named service on a named entity.
type Action struct {
	Domain   string
	Service  string
	EntityID string
}

func (a Action) String() string {
	return a.Domain + "." + a.Service + "(" + a.EntityID + ")"
}

// Press returns the action that presses the given button entity.
func Press(entityID string) Action {
	return Action{Domain: "button", Service: "press", EntityID: entityID}
}

// TurnOn returns the action that runs a script entity.
func TurnOn(entityID string) Action {
	return Action{Domain: "script", Service: "turn_on", EntityID: entityID}
}

// InvocationError is returned when the host failed to perform an action.
type InvocationError struct {
	Action Action
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoking %s: %v", e.Action, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Defaults for a convergence run.
const (
	DefaultMaxRounds   = 6
	DefaultPressDelay  = 280 * time.Millisecond
	DefaultSettleDelay = 500 * time.Millisecond
	// DefaultMaxPresses caps the presses of one round. The panel's whole set range is 24 steps.
	DefaultMaxPresses = 30
)

// Request describes how to drive the current entity to a target value.
type Request struct {
	Target      float64
	Current     string // entity id holding the value being driven
	Increment   Action
	Decrement   Action
	PressDelay  time.Duration // wait between two presses
	SettleDelay time.Duration // wait after a round before re-reading
	MaxRounds   int
	MaxPresses  int // presses per round, a larger difference is split over rounds
}

// WithDefaults fills any unset limits of the request.
func (r Request) WithDefaults() Request {
	if r.MaxRounds <= 0 {
		r.MaxRounds = DefaultMaxRounds
	}
	if r.PressDelay <= 0 {
		r.PressDelay = DefaultPressDelay
	}
	if r.SettleDelay <= 0 {
		r.SettleDelay = DefaultSettleDelay
	}
	if r.MaxPresses <= 0 {
		r.MaxPresses = DefaultMaxPresses
	}
	return r
}

// Outcome is the terminal state of a convergence run.
type Outcome byte

// Enum of convergence outcomes
const (
	Reached Outcome = iota
	Unreadable
	LimitExceeded
)

func (o Outcome) String() string {
	switch o {
	case Reached:
		return "reached"
	case Unreadable:
		return "unreadable"
	case LimitExceeded:
		return "limit-exceeded"
	}
	return "unknown"
}

// MarshalText lets outcomes serialize by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the summary of a finished convergence run.
type Result struct {
	RunID    string
	Outcome  Outcome
	Target   int     // rounded target
	Last     float64 // last reading, only meaningful if Readable
	Readable bool
	Rounds   int // rounds that pressed or checked
	Presses  int // press invocations attempted
	Failures int // press invocations that failed
	Duration time.Duration
}

// Message is the text shown to the user for the result. Empty when the target was reached.
func (r Result) Message() string {
	switch r.Outcome {
	case Unreadable:
		return "Unable to read the current set temperature"
	case LimitExceeded:
		if r.Readable {
			return fmt.Sprintf("Set temperature stuck at %d, wanted %d after %d attempts", Round(r.Last), r.Target, r.Rounds)
		}
		return fmt.Sprintf("Set temperature did not reach %d after %d attempts", r.Target, r.Rounds)
	}
	return ""
}
