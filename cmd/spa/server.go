package main

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"gitlab.com/lologarithm/spa/climate"
	"gitlab.com/lologarithm/spa/spa"
)

type userAccess struct {
	Name   string
	Pwd    string
	Access int
}

// Access levels
const (
	AccessNone  int = 0
	AccessRead      = 1
	AccessWrite     = 2
)

// HistorySize is how many recent events /stats keeps.
const HistorySize = 500

// View is everything the dashboard shows. It is pushed to every client on each change.
type View struct {
	Name      string
	Measured  string
	Set       string
	SetLabel  string
	Heater    bool
	Pump      bool
	Light     bool
	ErrorCode string `json:",omitempty"`
	Busy      bool
	Message   string `json:",omitempty"`
	Presets   []string
}

type server struct {
	ctx     context.Context
	cfg     Config
	store   *spa.Store
	states  climate.States
	ctrl    *climate.Controller
	history *spa.History
	metrics *metrics
	results chan spa.Result // finished runs for the alerter

	datalock *sync.RWMutex
	message  string

	clientslock   *sync.Mutex
	clientStreams []*websocket.Conn
}

// newServer creates the dashboard state and the controller driving the spa through invoker.
// states is what the controller reads, store is what the dashboard watches for changes.
func newServer(ctx context.Context, cfg Config, store *spa.Store, states climate.States, invoker climate.Invoker) *server {
	srv := &server{
		ctx:         ctx,
		cfg:         cfg,
		store:       store,
		states:      states,
		history:     spa.NewHistory(HistorySize),
		metrics:     newMetrics(),
		results:     make(chan spa.Result, 5),
		datalock:    &sync.RWMutex{},
		clientslock: &sync.Mutex{},
	}
	srv.ctrl = climate.NewController(states, invoker, cfg.request(), climate.Hooks{
		OnBusy:   srv.busyChanged,
		OnPress:  srv.pressed,
		OnResult: srv.finished,
	})
	return srv
}

func (srv *server) busyChanged(busy bool) {
	srv.metrics.setBusy(busy)
	if busy {
		srv.setMessage("")
		return
	}
	srv.broadcast()
}

func (srv *server) pressed(a spa.Action, err error) {
	srv.metrics.press(a, err)
	e := spa.Event{Kind: "press", Entity: a.EntityID, Value: a.Service}
	if err != nil {
		e.Message = err.Error()
	}
	srv.history.Add(e)
}

func (srv *server) finished(r spa.Result) {
	srv.metrics.result(r)
	srv.history.Add(spa.Event{
		Kind:    "converge",
		Entity:  srv.cfg.SetEntity,
		Value:   spa.Format(spa.EntityState{Value: ftoa(r.Last)}, r.Readable),
		Outcome: r.Outcome.String(),
		Message: r.Message(),
	})
	srv.setMessage(r.Message())
	select {
	case srv.results <- r:
	default:
		log.Printf("[Error] Alert queue full, dropping result of run %s", r.RunID)
	}
}

func (srv *server) setMessage(msg string) {
	srv.datalock.Lock()
	srv.message = msg
	srv.datalock.Unlock()
	srv.broadcast()
}

// view builds the dashboard view from the latest snapshot.
func (srv *server) view() View {
	snap := srv.states.Snapshot()
	get := func(id string) (spa.EntityState, bool) {
		st, ok := snap[id]
		return st, ok
	}
	on := func(id string) bool {
		st, ok := snap[id]
		return ok && strings.EqualFold(st.Value, "on")
	}
	v := View{
		Name:     srv.cfg.DeviceName,
		Measured: spa.Format(get(srv.cfg.MeasuredEntity)),
		Set:      spa.Format(get(srv.cfg.SetEntity)),
		SetLabel: srv.cfg.SetLabel,
		Heater:   on(srv.cfg.HeaterEntity),
		Pump:     on(srv.cfg.PumpEntity),
		Light:    on(srv.cfg.LightEntity),
		Busy:     srv.ctrl.Busy(),
		Presets:  []string{"hot", "cold"},
	}
	if st, ok := get(srv.cfg.ErrorEntity); !spa.Missing(st, ok) && st.Value != "0" && st.Value != "" {
		v.ErrorCode = st.Value
	}
	srv.datalock.RLock()
	v.Message = srv.message
	srv.datalock.RUnlock()
	return v
}

// broadcast pushes the current view to all connected websockets.
// Any socket that is dead will be removed here.
func (srv *server) broadcast() {
	d, err := json.Marshal(srv.view())
	if err != nil {
		log.Printf("[Error] Failed to marshal view to json: %s", err)
		return
	}
	deadstreams := []int{}
	srv.clientslock.Lock()
	for i, cs := range srv.clientStreams {
		cs.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := cs.WriteMessage(websocket.TextMessage, d); err != nil {
			deadstreams = append(deadstreams, i)
		}
	}
	// remove dead streams now
	for i := len(deadstreams) - 1; i > -1; i-- {
		idx := deadstreams[i]
		srv.clientStreams[idx].Close()
		srv.clientStreams = append(srv.clientStreams[:idx], srv.clientStreams[idx+1:]...)
	}
	srv.clientslock.Unlock()
}

// watch records state changes and pushes them to clients until ctx is done.
func (srv *server) watch(ctx context.Context) {
	changes, stop := srv.store.Subscribe(20)
	defer stop()
	for {
		select {
		case st, ok := <-changes:
			if !ok {
				return
			}
			srv.metrics.reading(st)
			srv.history.Add(spa.Event{Kind: "reading", Entity: st.ID, Value: st.Value})
			srv.broadcast()
		case <-ctx.Done():
			return
		}
	}
}

func (srv *server) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", srv.index)
	r.Get("/stream", srv.clientStreamHandler)
	r.Get("/stats", srv.stats)
	r.Method(http.MethodGet, "/metrics", srv.metrics.handler())
	return r
}

var pageTmpl = template.Must(template.New("page").Parse(page))

func (srv *server) index(w http.ResponseWriter, r *http.Request) {
	if srv.auth(w, r) == AccessNone {
		return // Don't let them access
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, srv.view()); err != nil {
		log.Printf("[Error] Failed to render page: %s", err)
	}
}

func (srv *server) stats(w http.ResponseWriter, r *http.Request) {
	if srv.auth(w, r) == AccessNone {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(srv.history.Events())
}

// serve runs the dashboard and alerter until ctx is done.
func (srv *server) serve(ctx context.Context) error {
	go srv.watch(ctx)
	go alerter(srv.cfg.Mailgun, srv.results)

	hs := &http.Server{Addr: srv.cfg.Listen, Handler: srv.router()}
	errs := make(chan error, 1)
	go func() {
		log.Printf("starting webhost on: %s", srv.cfg.Listen)
		errs <- hs.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdown); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	srv.clientslock.Lock()
	for _, cs := range srv.clientStreams {
		cs.Close()
	}
	srv.clientStreams = nil
	srv.clientslock.Unlock()
	log.Printf("Done!")
	return nil
}

// auth allows intra-net access without a password, everyone else needs basic auth.
func (srv *server) auth(w http.ResponseWriter, r *http.Request) int {
	addr := r.RemoteAddr
	if paddr := r.Header.Get("X-Forwarded-For"); paddr != "" {
		addr = paddr
	}

	if !strings.HasPrefix(addr, "192.168.") && !strings.HasPrefix(addr, "127.0.0.1") && !strings.HasPrefix(addr, "[::1]") {
		name, pwd, _ := r.BasicAuth()
		user, ok := srv.cfg.Users[strings.ToLower(name)]
		if !ok || user.Pwd != pwd {
			log.Printf("Unauthed User: %s", addr)
			w.Header().Set("WWW-Authenticate", `Basic realm="Spa"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("NO ACCESS."))
			return AccessNone
		}
		return user.Access
	}
	return AccessWrite
}
