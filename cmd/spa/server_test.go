package main

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/lologarithm/spa/sensor"
	"gitlab.com/lologarithm/spa/spa"
)

func testConfig() Config {
	cfg := Config{
		DeviceName: "Tub",
		SetLabel:   "Set",
		HotTemp:    103,
		ColdTemp:   98,
		Converge:   ConvergeConfig{PressDelay: time.Millisecond, SettleDelay: time.Millisecond},
		Users:      map[string]userAccess{"bob": {Name: "bob", Pwd: "pw", Access: AccessRead}},
	}
	cfg.fillEntities()
	return cfg
}

func newTestServer(t *testing.T) (*server, *fakeSpa) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := testConfig()
	store := spa.NewStore()
	f := newFakeSpa(cfg, store)
	return newServer(ctx, cfg, store, f, f), f
}

func TestView(t *testing.T) {
	srv, _ := newTestServer(t)
	v := srv.view()
	assert.Equal(t, "97°F", v.Measured)
	assert.Equal(t, "100°F", v.Set)
	assert.Equal(t, "Set", v.SetLabel)
	assert.True(t, v.Heater)
	assert.False(t, v.Pump)
	assert.Empty(t, v.ErrorCode)
	assert.False(t, v.Busy)

	srv.store.Update(spa.EntityState{ID: srv.cfg.SetEntity, Value: "unavailable"})
	srv.store.Update(spa.EntityState{ID: srv.cfg.ErrorEntity, Value: "OH"})
	v = srv.view()
	assert.Equal(t, spa.Placeholder, v.Set)
	assert.Equal(t, "OH", v.ErrorCode)
}

func TestHandleRequests(t *testing.T) {
	srv, f := newTestServer(t)

	target := 102.6
	srv.handle(Request{SetTemp: &target})
	assert.Equal(t, 103, f.set)

	srv.handle(Request{Preset: "cold"})
	assert.Equal(t, 98, f.set)

	srv.handle(Request{Press: "pump"})
	assert.True(t, f.pump)

	srv.handle(Request{Press: "jets"})
	srv.handle(Request{Preset: "lukewarm"})

	var runs []spa.Event
	for _, e := range srv.history.Events() {
		if e.Kind == "converge" {
			runs = append(runs, e)
		}
	}
	require.Len(t, runs, 2)
	assert.Equal(t, "reached", runs[0].Outcome)
	assert.Equal(t, "98", runs[1].Value)
}

func TestHandleRejectsTarget(t *testing.T) {
	srv, f := newTestServer(t)

	for _, target := range []float64{1e6, -40, 250, math.NaN()} {
		srv.handle(Request{SetTemp: &target})
	}
	assert.Equal(t, 100, f.set)
	assert.Empty(t, srv.history.Events())
	assert.False(t, srv.view().Busy)
}

func TestHandleFailedRunSetsMessage(t *testing.T) {
	srv, f := newTestServer(t)
	f.cfg.Buttons.Warm = "button.disconnected"

	target := 101.0
	srv.handle(Request{SetTemp: &target})
	assert.Equal(t, "Set temperature stuck at 100, wanted 101 after 6 attempts", srv.view().Message)

	select {
	case r := <-srv.results:
		assert.Equal(t, spa.LimitExceeded, r.Outcome)
	default:
		t.Fatal("no result queued for alerting")
	}
	assert.Contains(t, alertBody(spa.Result{Outcome: spa.Unreadable}), "Unable to read the current set temperature")
}

func TestAlertMessage(t *testing.T) {
	r := spa.Result{RunID: "cq3f1", Outcome: spa.LimitExceeded, Target: 103, Last: 99, Readable: true, Rounds: 6}
	assert.Equal(t, "Spa temperature not set to 103 (limit-exceeded)", alertSubject(r))
	body := alertBody(r)
	assert.Contains(t, body, "Set temperature stuck at 99, wanted 103 after 6 attempts")
	assert.Contains(t, body, "Run: cq3f1")
	assert.Contains(t, body, "Outcome: limit-exceeded")
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.router()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.SetBasicAuth("bob", "pw")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, AccessRead, srv.auth(httptest.NewRecorder(), r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.20:5555"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<div id="measured">97°F</div>`)
}

func TestStatsAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.handle(Request{Press: "lights"})

	r := httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.RemoteAddr = "127.0.0.1:5000"
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, r)
	var events []spa.Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&events))
	require.NotEmpty(t, events)
	assert.Equal(t, "press", events[len(events)-1].Kind)
	assert.Equal(t, srv.cfg.Buttons.Lights, events[len(events)-1].Entity)

	w = httptest.NewRecorder()
	srv.router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `spa_presses_total{entity="button.tub_spa_lights",result="ok"} 1`)
}

func TestStream(t *testing.T) {
	srv, f := newTestServer(t)
	go srv.watch(srv.ctx)
	hs := httptest.NewServer(srv.router())
	defer hs.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http")+"/stream", nil)
	require.NoError(t, err)
	defer c.Close()

	var v View
	require.NoError(t, c.ReadJSON(&v))
	assert.Equal(t, "100°F", v.Set)
	assert.False(t, v.Light)

	require.NoError(t, c.WriteJSON(Request{Press: "lights"}))
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !v.Light {
		require.NoError(t, c.ReadJSON(&v))
	}
	f.mu.Lock()
	assert.True(t, f.light)
	f.mu.Unlock()
}

func TestReadingState(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, spa.EntityState{ID: "sensor.tub_spa_set_temp", Value: "102", Unit: "°F"},
		readingState(cfg, sensor.Reading{Kind: sensor.SetTemp, Temp: 102}))
	assert.Equal(t, spa.EntityState{ID: "sensor.tub_spa_measured_temp", Value: "99", Unit: "°F"},
		readingState(cfg, sensor.Reading{Kind: sensor.MeasuredTemp, Temp: 99}))
	assert.Equal(t, spa.EntityState{ID: "binary_sensor.tub_spa_heater", Value: "on"},
		readingState(cfg, sensor.Reading{Kind: sensor.Heater, On: true}))
	assert.Equal(t, spa.EntityState{ID: "binary_sensor.tub_spa_light", Value: "off"},
		readingState(cfg, sensor.Reading{Kind: sensor.Light}))
}
