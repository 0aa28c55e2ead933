package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/whisperengine-ai/whisperengine-sub002/internal/engine"
)

const (
	eventBuffer      = 256
	subscriberBuffer = 64
	writeTimeout     = 10 * time.Second
)

// WebSocketHub streams memory lifecycle events to /ws/events subscribers.
// A subscriber may narrow the stream to one owner with ?owner_id=. The hub
// runs its own loop from construction until Stop.
type WebSocketHub struct {
	events chan engine.Event
	join   chan *subscriber
	leave  chan *subscriber

	origins  map[string]bool
	patterns []string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// subscriber is owned by the hub loop: only the loop adds, removes or
// closes send.
type subscriber struct {
	ownerID string
	send    chan []byte
}

func (s *subscriber) wants(ev engine.Event) bool {
	return s.ownerID == "" || s.ownerID == ev.OwnerID
}

// NewWebSocketHub creates and starts a hub. Browser connections are
// accepted only from allowedOrigins; requests without an Origin header
// (non-browser clients) are always accepted.
func NewWebSocketHub(allowedOrigins []string) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &WebSocketHub{
		events:  make(chan engine.Event, eventBuffer),
		join:    make(chan *subscriber),
		leave:   make(chan *subscriber),
		origins: make(map[string]bool, len(allowedOrigins)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, origin := range allowedOrigins {
		h.origins[origin] = true
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			h.patterns = append(h.patterns, u.Host)
		}
	}
	go h.run()
	return h
}

func (h *WebSocketHub) run() {
	defer close(h.done)
	subs := make(map[*subscriber]struct{})
	drop := func(s *subscriber) {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			close(s.send)
		}
	}

	for {
		select {
		case s := <-h.join:
			subs[s] = struct{}{}
			log.Printf("websocket: subscriber joined (owner=%q, total: %d)", s.ownerID, len(subs))

		case s := <-h.leave:
			drop(s)
			log.Printf("websocket: subscriber left (total: %d)", len(subs))

		case ev := <-h.events:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("ERROR: websocket: failed to encode %s event: %v", ev.Type, err)
				continue
			}
			for s := range subs {
				if !s.wants(ev) {
					continue
				}
				select {
				case s.send <- data:
				default:
					log.Printf("websocket: dropping slow subscriber (owner=%q)", s.ownerID)
					drop(s)
				}
			}

		case <-h.ctx.Done():
			for s := range subs {
				drop(s)
			}
			return
		}
	}
}

// Publish queues ev for delivery. It never blocks; when the queue is full
// the event is dropped.
func (h *WebSocketHub) Publish(ev engine.Event) {
	select {
	case h.events <- ev:
	default:
		log.Printf("WARNING: websocket event queue full, dropping %s for %s", ev.Type, ev.MemoryID)
	}
}

// Subscribe registers an in-process subscriber and returns its stream of
// encoded events together with a function that ends the subscription. An
// empty ownerID receives every event. The stream is closed when the
// subscription ends, when the subscriber falls behind, or when the hub
// stops.
func (h *WebSocketHub) Subscribe(ownerID string) (<-chan []byte, func()) {
	s := &subscriber{ownerID: ownerID, send: make(chan []byte, subscriberBuffer)}
	select {
	case h.join <- s:
	case <-h.ctx.Done():
		close(s.send)
		return s.send, func() {}
	}
	return s.send, func() { h.unsubscribe(s) }
}

func (h *WebSocketHub) unsubscribe(s *subscriber) {
	select {
	case h.leave <- s:
	case <-h.ctx.Done():
	}
}

// Stop closes every subscription and ends the hub loop.
func (h *WebSocketHub) Stop() {
	h.cancel()
	<-h.done
}

// ServeHTTP upgrades GET /ws/events and streams events until the client
// goes away or the hub stops. The stream is write-only; client messages
// are not read.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !h.origins[origin] {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.patterns})
	if err != nil {
		log.Printf("ERROR: websocket upgrade failed: %v", err)
		return
	}

	stream, unsubscribe := h.Subscribe(r.URL.Query().Get("owner_id"))
	defer unsubscribe()

	// CloseRead discards client frames and reports when the peer disconnects.
	clientGone := conn.CloseRead(h.ctx)
	for {
		select {
		case data, ok := <-stream:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			ctx, cancel := context.WithTimeout(clientGone, writeTimeout)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Printf("websocket: write failed, closing subscriber: %v", err)
				return
			}
		case <-clientGone.Done():
			return
		}
	}
}
