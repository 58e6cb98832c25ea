package main

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"gitlab.com/lologarithm/spa/spa"
)

var upgrader = websocket.Upgrader{} // use default options

// Request is sent from websocket client to server to request change to someting
type Request struct {
	SetTemp *float64 `json:",omitempty"` // converge to this set temperature
	Preset  string   `json:",omitempty"` // "hot" or "cold"
	Press   string   `json:",omitempty"` // "warm", "cool", "pump" or "lights"
}

func (srv *server) clientStreamHandler(w http.ResponseWriter, r *http.Request) {
	access := srv.auth(w, r)
	if access == AccessNone {
		return
	}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("upgrade failure:", err)
		return
	}
	if err := c.WriteJSON(srv.view()); err != nil {
		c.Close()
		return
	}
	srv.clientslock.Lock()
	srv.clientStreams = append(srv.clientStreams, c)
	srv.clientslock.Unlock()

	// websocket reader closure.
	// Handles requests from websocket client.
	go func() {
		for {
			v := Request{}
			if err := c.ReadJSON(&v); err != nil {
				log.Println("Disconnecting user: ", err)
				break
			}
			// Readers can't change anything
			if access != AccessWrite {
				continue
			}
			go srv.handle(v)
		}
		c.Close()
	}()
}

// handle runs a client request. Requests made while the controller is busy are dropped.
func (srv *server) handle(req Request) {
	switch {
	case req.SetTemp != nil:
		log.Printf("Setting spa to %.1f", *req.SetTemp)
		srv.ctrl.ConvergeTo(srv.ctx, *req.SetTemp)
	case req.Preset != "":
		p, ok := srv.cfg.presets()[req.Preset]
		if !ok {
			log.Printf("[Error] Unknown preset %q", req.Preset)
			return
		}
		log.Printf("Applying preset %s", p.Name)
		srv.ctrl.Apply(srv.ctx, p)
	case req.Press != "":
		id, ok := srv.button(req.Press)
		if !ok {
			log.Printf("[Error] Unknown button %q", req.Press)
			return
		}
		srv.ctrl.Press(srv.ctx, spa.Press(id))
	}
}

func (srv *server) button(name string) (string, bool) {
	b := srv.cfg.Buttons
	switch name {
	case "warm":
		return b.Warm, true
	case "cool":
		return b.Cool, true
	case "pump":
		return b.Pump, true
	case "lights":
		return b.Lights, true
	}
	return "", false
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
