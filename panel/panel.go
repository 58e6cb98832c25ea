// Package panel presses the spa's top side buttons directly through GPIO pins
// wired across the button contacts.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
	"gitlab.com/lologarithm/spa/spa"
)

// DefaultPressTime is how long a button is held down.
const DefaultPressTime = 200 * time.Millisecond

var (
	// ErrUnknownButton is returned for actions on entities that have no pin.
	ErrUnknownButton = errors.New("no pin for button")
	// ErrStopped is returned for presses after Stop.
	ErrStopped = errors.New("buttons stopped")
)

// Output is a pin that can be driven high and low.
type Output interface {
	High()
	Low()
}

// Buttons maps button entity ids to output pins. It implements climate.Invoker so the
// controller can run against the panel without a home automation host.
type Buttons struct {
	mu        sync.Mutex // one button held at a time
	stopped   bool
	pins      map[string]Output
	pressTime time.Duration
}

// New creates buttons for the given entity id to pin mapping.
func New(pins map[string]Output, pressTime time.Duration) *Buttons {
	if pressTime <= 0 {
		pressTime = DefaultPressTime
	}
	return &Buttons{pins: pins, pressTime: pressTime}
}

// Open sets up output pins for the entity id to BCM pin number mapping.
// The GPIO memory must already be open with rpio.Open and stay open until Stop returns.
func Open(pins map[string]int, pressTime time.Duration) *Buttons {
	outs := make(map[string]Output, len(pins))
	for id, n := range pins {
		p := rpio.Pin(n)
		p.Output()
		p.Low()
		outs[id] = p
	}
	return New(outs, pressTime)
}

// Logged creates buttons that only log presses, for running without GPIO access.
func Logged(ids []string, pressTime time.Duration) *Buttons {
	outs := make(map[string]Output, len(ids))
	for _, id := range ids {
		outs[id] = logPin(id)
	}
	return New(outs, pressTime)
}

// Stop waits for a press in progress to finish and fails any later ones,
// so the pins can be released.
func (b *Buttons) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
}

// Invoke holds the pin for the action's entity high for the press time.
// Only button presses and switch toggles are supported.
func (b *Buttons) Invoke(ctx context.Context, a spa.Action) error {
	pin, ok := b.pins[a.EntityID]
	if !ok {
		return &spa.InvocationError{Action: a, Err: ErrUnknownButton}
	}
	if a.Service != "press" && a.Service != "toggle" {
		return &spa.InvocationError{Action: a, Err: fmt.Errorf("unsupported service %q", a.Service)}
	}
	if err := ctx.Err(); err != nil {
		return &spa.InvocationError{Action: a, Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return &spa.InvocationError{Action: a, Err: ErrStopped}
	}
	pin.High()
	time.Sleep(b.pressTime)
	pin.Low()
	return nil
}

type logPin string

func (l logPin) High() { log.Printf("Fake press of %s", string(l)) }
func (l logPin) Low()  {}
