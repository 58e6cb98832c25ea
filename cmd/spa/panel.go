package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"gitlab.com/lologarithm/spa/sensor"
	"gitlab.com/lologarithm/spa/spa"
)

// watchDisplay reads the panel display into store until ctx is done.
// refresh is called when the panel should be asked to show the set temperature again.
// The returned channel is closed once the display is no longer being read.
func watchDisplay(ctx context.Context, cfg Config, store *spa.Store, refresh func()) <-chan struct{} {
	frames := make(chan sensor.Frame, 50)
	stop := make(chan struct{})
	done := make(chan struct{})
	sensor.Capture(cfg.Panel.ClockPin, cfg.Panel.DataPin, frames, stop)
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	t := sensor.NewTracker(time.Now())
	go func() {
		defer close(done)
		sensor.Decode(frames, t, func(r sensor.Reading) {
			st := readingState(cfg, r)
			log.Printf("Display: %s = %s", r.Kind, st.Value)
			store.Update(st)
		}, refresh)
	}()
	return done
}

// readingState converts a display reading into the entity it updates.
func readingState(cfg Config, r sensor.Reading) spa.EntityState {
	switch r.Kind {
	case sensor.MeasuredTemp:
		return spa.EntityState{ID: cfg.MeasuredEntity, Value: strconv.Itoa(r.Temp), Unit: "°F"}
	case sensor.SetTemp:
		return spa.EntityState{ID: cfg.SetEntity, Value: strconv.Itoa(r.Temp), Unit: "°F"}
	case sensor.Heater:
		return spa.EntityState{ID: cfg.HeaterEntity, Value: onoff(r.On)}
	case sensor.Pump:
		return spa.EntityState{ID: cfg.PumpEntity, Value: onoff(r.On)}
	}
	return spa.EntityState{ID: cfg.LightEntity, Value: onoff(r.On)}
}
