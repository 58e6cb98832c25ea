// Package climate drives the spa set temperature to a target by pressing the
// panel's warm and cool buttons and checking the result.
package climate

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"gitlab.com/lologarithm/spa/spa"
	"golang.org/x/sync/semaphore"
)

// States provides the latest host state snapshot.
type States interface {
	Snapshot() spa.Snapshot
}

// Refresher is implemented by state sources that can be asked to resync with the host.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Invoker performs a single action on the host.
// A failed invocation returns a *spa.InvocationError.
type Invoker interface {
	Invoke(ctx context.Context, a spa.Action) error
}

// Hooks are optional callbacks for watching the controller.
type Hooks struct {
	OnBusy   func(busy bool)
	OnPress  func(a spa.Action, err error)
	OnResult func(r spa.Result)
}

// Controller runs convergence and single press operations, one at a time.
type Controller struct {
	states  States
	invoker Invoker
	req     spa.Request
	hooks   Hooks

	busy    *semaphore.Weighted
	running atomic.Bool // mirrors the busy permit for readers
	sleep   func(ctx context.Context, d time.Duration)
}

// NewController creates a controller driving req.Current with req's actions.
// Target in req is ignored, it is given per ConvergeTo call.
func NewController(states States, invoker Invoker, req spa.Request, hooks Hooks) *Controller {
	return &Controller{
		states:  states,
		invoker: invoker,
		req:     req.WithDefaults(),
		hooks:   hooks,
		busy:    semaphore.NewWeighted(1),
		sleep:   sleep,
	}
}

// Request returns the controller's request settings.
func (c *Controller) Request() spa.Request {
	return c.req
}

// Busy reports if an operation is in flight.
func (c *Controller) Busy() bool {
	return c.running.Load()
}

func (c *Controller) acquire() bool {
	if !c.busy.TryAcquire(1) {
		return false
	}
	c.running.Store(true)
	if c.hooks.OnBusy != nil {
		c.hooks.OnBusy(true)
	}
	return true
}

func (c *Controller) release() {
	c.running.Store(false)
	c.busy.Release(1)
	if c.hooks.OnBusy != nil {
		c.hooks.OnBusy(false)
	}
}

// ConvergeTo presses warm/cool until the current entity matches the rounded target.
// Returns false without doing anything if the target fails spa.CheckTarget or another
// operation is in flight.
func (c *Controller) ConvergeTo(ctx context.Context, target float64) (spa.Result, bool) {
	if err := spa.CheckTarget(target); err != nil {
		log.Printf("[Error] Ignoring request to set %v: %s", target, err)
		return spa.Result{}, false
	}
	if !c.acquire() {
		log.Printf("Ignoring request to set %.1f, controller busy.", target)
		return spa.Result{}, false
	}
	defer c.release()

	res := c.converge(ctx, target)
	if res.Outcome == spa.Reached {
		log.Printf("[%s] Reached %d after %d rounds (%d presses, %d failed) in %s", res.RunID, res.Target, res.Rounds, res.Presses, res.Failures, res.Duration)
	} else {
		log.Printf("[Error] [%s] Convergence to %d ended %s: %s", res.RunID, res.Target, res.Outcome, res.Message())
	}
	if c.hooks.OnResult != nil {
		c.hooks.OnResult(res)
	}
	return res, true
}

func (c *Controller) converge(ctx context.Context, target float64) spa.Result {
	start := time.Now()
	res := spa.Result{
		RunID:  xid.New().String(),
		Target: spa.Round(target),
	}
	finish := func(o spa.Outcome) spa.Result {
		res.Outcome = o
		res.Duration = time.Since(start)
		return res
	}

	for round := 0; round < c.req.MaxRounds; round++ {
		cur, ok := spa.Read(c.states.Snapshot(), c.req.Current)
		if !ok {
			res.Last, res.Readable = cur, ok
			return finish(spa.Unreadable)
		}
		diff := res.Target - spa.Round(cur)
		if diff == 0 {
			break
		}
		res.Rounds++

		action := c.req.Increment
		if diff < 0 {
			action = c.req.Decrement
			diff = -diff
		}
		if diff > c.req.MaxPresses {
			log.Printf("[%s] Round %d: %d presses needed, capping at %d", res.RunID, res.Rounds, diff, c.req.MaxPresses)
			diff = c.req.MaxPresses
		}
		log.Printf("[%s] Round %d: current %.1f, target %d, pressing %s %d times", res.RunID, res.Rounds, cur, res.Target, action.EntityID, diff)
		for i := 0; i < diff; i++ {
			if i > 0 {
				c.sleep(ctx, c.req.PressDelay)
			}
			if ctx.Err() != nil {
				break
			}
			res.Presses++
			if err := c.invoke(ctx, action); err != nil {
				res.Failures++
			}
		}
		c.sleep(ctx, c.req.SettleDelay)
		if ctx.Err() != nil {
			log.Printf("[%s] Stopping early: %v", res.RunID, ctx.Err())
			break
		}
	}

	// Reached or out of rounds, the final read decides either way.
	cur, ok := spa.Read(c.states.Snapshot(), c.req.Current)
	res.Last, res.Readable = cur, ok
	if !ok || spa.Round(cur) != res.Target {
		return finish(spa.LimitExceeded)
	}
	return finish(spa.Reached)
}

// invoke runs one action, logging and returning any failure.
func (c *Controller) invoke(ctx context.Context, a spa.Action) error {
	err := c.invoker.Invoke(ctx, a)
	if err != nil {
		log.Printf("[Error] Press failed: %v", err)
	}
	if c.hooks.OnPress != nil {
		c.hooks.OnPress(a, err)
	}
	return err
}

// Press invokes a single action while holding the busy guard, then refreshes state.
// Returns false if another operation is in flight.
func (c *Controller) Press(ctx context.Context, a spa.Action) bool {
	if !c.acquire() {
		log.Printf("Ignoring %s, controller busy.", a)
		return false
	}
	defer c.release()

	c.invoke(ctx, a)
	if r, ok := c.states.(Refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			log.Printf("[Error] Failed to refresh state after %s: %s", a, err)
		}
	}
	return true
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
