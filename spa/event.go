package spa

import (
	"sync"
	"time"
)

// Event is something that happened to the spa. Used to show recent history.
type Event struct {
	Time    time.Time
	Kind    string // "reading", "press", "converge"
	Entity  string
	Value   string
	Outcome string `json:",omitempty"`
	Message string `json:",omitempty"`
}

// History keeps the most recent events in memory.
type History struct {
	mu     sync.Mutex
	max    int
	events []Event
}

// NewHistory creates a history holding at most max events.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 1
	}
	return &History{max: max, events: make([]Event, 0, max)}
}

// Add appends an event, dropping the oldest when full.
func (h *History) Add(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.Lock()
	if len(h.events) == h.max {
		copy(h.events, h.events[1:])
		h.events = h.events[:h.max-1]
	}
	h.events = append(h.events, e)
	h.mu.Unlock()
}

// Events returns a copy of the stored events, oldest first.
func (h *History) Events() []Event {
	h.mu.Lock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	h.mu.Unlock()
	return out
}
