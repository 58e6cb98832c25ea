package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/lologarithm/spa/climate"
	"gitlab.com/lologarithm/spa/rnet"
	"gitlab.com/lologarithm/spa/spa"
)

// connectHost starts a client that keeps the configured entities in sync until ctx is done.
func connectHost(ctx context.Context, cfg Config) (*rnet.Client, *spa.Store, error) {
	if cfg.HomeAssistant.Token == "" {
		return nil, nil, errors.New("no home assistant token configured, set home_assistant.token or SPA_HOME_ASSISTANT_TOKEN")
	}
	u, err := rnet.WebsocketURL(cfg.HomeAssistant.URL)
	if err != nil {
		return nil, nil, err
	}
	store := spa.NewStore()
	client := rnet.NewClient(u, cfg.HomeAssistant.Token, store, cfg.entities()...)
	go client.Serve(ctx)
	return client, store, nil
}

// waitReadable waits up to timeout for the entity to have a numeric value.
func waitReadable(ctx context.Context, states climate.States, id string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, ok := spa.Read(states.Snapshot(), id); ok {
			return nil
		}
		select {
		case <-tick.C:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", id, ctx.Err())
		}
	}
}
