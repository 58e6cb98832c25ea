package main

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"gitlab.com/lologarithm/spa/spa"
)

// Set temperature range of the spa panel.
const (
	MinSetTemp = 80
	MaxSetTemp = 104
)

// fakeSpa is a simulated spa for trying the dashboard without any hardware or host.
// Warm and cool presses move the set temperature and the water slowly follows it.
type fakeSpa struct {
	cfg   Config
	store *spa.Store

	mu       sync.Mutex
	set      int
	measured int
	pump     bool
	light    bool
}

func newFakeSpa(cfg Config, store *spa.Store) *fakeSpa {
	f := &fakeSpa{cfg: cfg, store: store, set: 100, measured: 97}
	f.publish()
	return f
}

func (f *fakeSpa) Snapshot() spa.Snapshot {
	return f.store.Snapshot()
}

// Invoke acts like the panel buttons and the host's preset scripts.
func (f *fakeSpa) Invoke(ctx context.Context, a spa.Action) error {
	f.mu.Lock()
	switch a.EntityID {
	case f.cfg.Buttons.Warm:
		if f.set < MaxSetTemp {
			f.set++
		}
	case f.cfg.Buttons.Cool:
		if f.set > MinSetTemp {
			f.set--
		}
	case f.cfg.Buttons.Pump:
		f.pump = !f.pump
	case f.cfg.Buttons.Lights:
		f.light = !f.light
	case f.cfg.HotScript:
		f.set = spa.Round(f.cfg.HotTemp)
	case f.cfg.ColdScript:
		f.set = spa.Round(f.cfg.ColdTemp)
	default:
		f.mu.Unlock()
		return &spa.InvocationError{Action: a, Err: errUnknownEntity}
	}
	f.mu.Unlock()
	f.publish()
	return nil
}

// run moves the water temperature a degree towards the set temperature every tick.
func (f *fakeSpa) run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		}
		f.mu.Lock()
		switch {
		case f.measured < f.set:
			f.measured++
		case f.measured > f.set:
			f.measured--
		}
		f.mu.Unlock()
		f.publish()
	}
}

func (f *fakeSpa) publish() {
	f.mu.Lock()
	states := []spa.EntityState{
		{ID: f.cfg.SetEntity, Value: strconv.Itoa(f.set), Unit: "°F"},
		{ID: f.cfg.MeasuredEntity, Value: strconv.Itoa(f.measured), Unit: "°F"},
		{ID: f.cfg.HeaterEntity, Value: onoff(f.measured < f.set)},
		{ID: f.cfg.PumpEntity, Value: onoff(f.pump)},
		{ID: f.cfg.LightEntity, Value: onoff(f.light)},
		{ID: f.cfg.ErrorEntity, Value: "0"},
	}
	f.mu.Unlock()
	for _, st := range states {
		f.store.Update(st)
	}
}

func onoff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

var errUnknownEntity = errors.New("entity not simulated")
