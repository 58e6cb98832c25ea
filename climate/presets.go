package climate

import (
	"context"

	"gitlab.com/lologarithm/spa/spa"
)

// Preset is a named target temperature, optionally backed by a host script
// that sets the temperature on its own.
type Preset struct {
	Name   string
	Target float64
	Script string // script entity id, ex: script.spa_set_hot
}

// Apply runs the preset script if there is one, otherwise converges to the preset target.
// The returned result is only meaningful for convergence runs.
func (c *Controller) Apply(ctx context.Context, p Preset) (spa.Result, bool) {
	if p.Script != "" {
		return spa.Result{}, c.Press(ctx, spa.TurnOn(p.Script))
	}
	return c.ConvergeTo(ctx, p.Target)
}
