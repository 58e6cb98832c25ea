// Package rnet talks to the home automation host over its websocket API.
// It keeps a spa.Store in sync with the host's entity states and performs
// service calls for the controller.
package rnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gitlab.com/lologarithm/spa/spa"
)

// Errors returned by the client.
var (
	ErrNotConnected = errors.New("not connected to host")
	ErrAuth         = errors.New("host rejected access token")
)

// HostError is an error reported by the host for a command.
type HostError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *HostError) Error() string {
	return e.Code + ": " + e.Message
}

// hostState is an entity state as the host serializes it.
type hostState struct {
	EntityID   string `json:"entity_id"`
	State      string `json:"state"`
	Attributes struct {
		FriendlyName      string `json:"friendly_name"`
		UnitOfMeasurement string `json:"unit_of_measurement"`
	} `json:"attributes"`
}

func (s hostState) entity() spa.EntityState {
	return spa.EntityState{ID: s.EntityID, Value: s.State, Unit: s.Attributes.UnitOfMeasurement}
}

type hostEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string     `json:"entity_id"`
		NewState *hostState `json:"new_state"`
	} `json:"data"`
}

// inbound is any message received from the host.
type inbound struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *HostError      `json:"error"`
	Event   *hostEvent      `json:"event"`
	Message string          `json:"message"`
}

// Client is a connection to the host. Zero or one connection is live at a time.
type Client struct {
	url   string
	token string
	store *spa.Store
	watch map[string]bool // entity ids to keep, all if empty

	Dialer *websocket.Dialer

	mu      sync.Mutex // guards conn, nextID and pending
	conn    *websocket.Conn
	nextID  int
	pending map[int]chan inbound

	writelock sync.Mutex
}

// NewClient creates a client for the host at url that mirrors states into store.
// If watch is given only those entities are kept.
func NewClient(url, token string, store *spa.Store, watch ...string) *Client {
	c := &Client{
		url:    url,
		token:  token,
		store:  store,
		watch:  map[string]bool{},
		Dialer: websocket.DefaultDialer,
	}
	for _, id := range watch {
		if id != "" {
			c.watch[id] = true
		}
	}
	return c
}

// WebsocketURL turns a host base url like http://homeassistant.local:8123 into its websocket api url.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing host url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported host url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("host url %q has no host", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/api/websocket"
	}
	return u.String(), nil
}

// Snapshot returns the latest known host states.
func (c *Client) Snapshot() spa.Snapshot {
	return c.store.Snapshot()
}

// Connected reports if there is a live, authenticated connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Serve keeps a connection to the host open until ctx is done, reconnecting with backoff.
func (c *Client) Serve(ctx context.Context) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second
	for {
		start := time.Now()
		err := c.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > time.Minute {
			backoff = time.Second
		}
		log.Printf("[Error] Host connection lost: %s. Retrying in %s", err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Run connects and authenticates, loads all states, subscribes to state changes and
// then processes messages until the connection fails or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	conn, _, err := c.Dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing host: %w", err)
	}
	defer conn.Close()
	if err := c.auth(conn); err != nil {
		return err
	}
	log.Printf("Connected to host at %s", c.url)

	c.mu.Lock()
	c.conn = conn
	c.pending = map[int]chan inbound{}
	c.mu.Unlock()
	defer c.disconnect()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(conn) }()

	setup := make(chan error, 1)
	go func() {
		if err := c.Refresh(ctx); err != nil {
			setup <- err
			return
		}
		_, err := c.call(ctx, map[string]any{"type": "subscribe_events", "event_type": "state_changed"})
		setup <- err
	}()

	for {
		select {
		case err := <-setup:
			if err != nil {
				return fmt.Errorf("subscribing to host: %w", err)
			}
			setup = nil
		case err := <-readErr:
			return fmt.Errorf("reading from host: %w", err)
		case <-ctx.Done():
			c.writelock.Lock()
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writelock.Unlock()
			return ctx.Err()
		}
	}
}

func (c *Client) auth(conn *websocket.Conn) error {
	var in inbound
	if err := conn.ReadJSON(&in); err != nil {
		return fmt.Errorf("reading auth request: %w", err)
	}
	if in.Type != "auth_required" {
		return fmt.Errorf("unexpected first message %q", in.Type)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": c.token}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}
	if err := conn.ReadJSON(&in); err != nil {
		return fmt.Errorf("reading auth response: %w", err)
	}
	if in.Type != "auth_ok" {
		return fmt.Errorf("%w: %s", ErrAuth, in.Message)
	}
	return nil
}

// disconnect drops the connection and fails all waiting calls.
func (c *Client) disconnect() {
	c.mu.Lock()
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			return err
		}
		switch in.Type {
		case "result":
			c.mu.Lock()
			ch, ok := c.pending[in.ID]
			delete(c.pending, in.ID)
			c.mu.Unlock()
			if ok {
				ch <- in
			}
		case "event":
			if in.Event != nil && in.Event.EventType == "state_changed" {
				c.stateChanged(in.Event)
			}
		}
	}
}

func (c *Client) stateChanged(ev *hostEvent) {
	id := ev.Data.EntityID
	if len(c.watch) > 0 && !c.watch[id] {
		return
	}
	if ev.Data.NewState == nil {
		c.store.Remove(id)
		return
	}
	st := ev.Data.NewState.entity()
	st.ID = id
	c.store.Update(st)
}

// call sends a command and waits for its result.
func (c *Client) call(ctx context.Context, cmd map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan inbound, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	cmd["id"] = id
	c.writelock.Lock()
	err := conn.WriteJSON(cmd)
	c.writelock.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("sending %v: %w", cmd["type"], err)
	}

	select {
	case in, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if !in.Success {
			if in.Error != nil {
				return nil, in.Error
			}
			return nil, &HostError{Code: "unknown_error", Message: "command failed"}
		}
		return in.Result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Refresh loads all entity states from the host, replacing what the store holds.
func (c *Client) Refresh(ctx context.Context) error {
	raw, err := c.call(ctx, map[string]any{"type": "get_states"})
	if err != nil {
		return err
	}
	var states []hostState
	if err := json.Unmarshal(raw, &states); err != nil {
		return fmt.Errorf("decoding host states: %w", err)
	}
	snap := make(spa.Snapshot, len(states))
	for _, s := range states {
		if len(c.watch) > 0 && !c.watch[s.EntityID] {
			continue
		}
		snap[s.EntityID] = s.entity()
	}
	c.store.Replace(snap)
	return nil
}

// Invoke calls a service on the host for the action's entity.
func (c *Client) Invoke(ctx context.Context, a spa.Action) error {
	_, err := c.call(ctx, map[string]any{
		"type":    "call_service",
		"domain":  a.Domain,
		"service": a.Service,
		"target":  map[string]string{"entity_id": a.EntityID},
	})
	if err != nil {
		return &spa.InvocationError{Action: a, Err: err}
	}
	return nil
}
