// Package subgrp maintains the group of handlers for subscription support
// over web sockets. A client opens one socket, subscribes to any number of
// notification kinds, and receives events until it unsubscribes or
// disconnects. All subscriptions held by a socket are released when it
// closes.
package subgrp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oasislabs/oasis-chain/foundation/chain/pubsub"
	"github.com/oasislabs/oasis-chain/foundation/events"
	"github.com/oasislabs/oasis-chain/foundation/web"
	"go.uber.org/zap"
)

// sinkBuffer is how many undelivered events one socket can hold. A consumer
// that falls further behind loses events rather than stalling the chain.
const sinkBuffer = 64

// Handlers manages the set of subscription endpoints.
type Handlers struct {
	Log  *zap.SugaredLogger
	Hub  *pubsub.Hub
	Evts *events.Events
	WS   websocket.Upgrader
}

// request is one control message from the client.
type request struct {
	Action string        `json:"action"`
	Kind   string        `json:"kind,omitempty"`
	Params pubsub.Params `json:"params,omitempty"`
	ID     string        `json:"id,omitempty"`
}

// response is one message sent to the client. Control acknowledgements and
// events share the socket.
type response struct {
	Type    string        `json:"type"`
	ID      string        `json:"id,omitempty"`
	Removed bool          `json:"removed,omitempty"`
	Error   string        `json:"error,omitempty"`
	Event   *pubsub.Event `json:"event,omitempty"`
}

// Subscriptions handles a web socket speaking the subscription protocol.
func (h Handlers) Subscriptions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	h.Log.Infow("subscription socket open", "traceid", v.TraceID, "remoteaddr", r.RemoteAddr)

	// All writes to the socket funnel through this channel so there is a
	// single writer goroutine.
	out := make(chan response, sinkBuffer)
	done := make(chan struct{})

	// sink delivers hub events into the socket's buffer. Dropping on a full
	// buffer keeps hub delivery from blocking on a slow socket.
	sink := func(event pubsub.Event) error {
		select {
		case out <- response{Type: "event", Event: &event}:
		default:
		}
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return

			case resp := <-out:
				if err := c.WriteJSON(resp); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()

	send := func(resp response) {
		select {
		case out <- resp:
		case <-done:
		}
	}

	// Subscription ids held by this socket, so they can be released on
	// disconnect. Only the read loop below touches this map.
	owned := make(map[string]struct{})

	for {
		var req request
		if err := c.ReadJSON(&req); err != nil {
			break
		}

		switch req.Action {
		case "subscribe":
			id, err := h.Hub.Subscribe(req.Kind, req.Params, sink)
			if err != nil {
				send(response{Type: "error", Error: err.Error()})
				continue
			}
			owned[id] = struct{}{}
			send(response{Type: "subscribed", ID: id})

		case "unsubscribe":
			removed := h.Hub.Unsubscribe(req.ID)
			delete(owned, req.ID)
			send(response{Type: "unsubscribed", ID: req.ID, Removed: removed})

		default:
			send(response{Type: "error", Error: fmt.Sprintf("unknown action %q", req.Action)})
		}
	}

	close(done)
	wg.Wait()

	for id := range owned {
		h.Hub.Unsubscribe(id)
	}

	h.Log.Infow("subscription socket closed", "traceid", v.TraceID, "subscriptions", len(owned))

	return nil
}

// RawEvents handles a web socket that streams the raw node event messages to
// a client.
func (h Handlers) RawEvents(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}
