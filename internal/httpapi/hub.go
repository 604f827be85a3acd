package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// client represents a single websocket connection managed by a Hub.
type client struct {
	send chan []byte
}

// Hub manages a set of websocket clients and broadcasts messages to all
// connected clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	log        *slog.Logger
}

// NewHub creates a new Hub with initialised channels and client map.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		close(h.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("dropping slow websocket client")
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(ctx context.Context, msg []byte) {
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
	case <-h.done:
	}
}

func (h *Hub) add(ctx context.Context, c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-ctx.Done():
	case <-h.done:
	}
	return false
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// acceptOptions limits websocket origins to the configured CORS origin.
func acceptOptions(origin string) *websocket.AcceptOptions {
	if origin == "" || origin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return &websocket.AcceptOptions{OriginPatterns: []string{host}}
}

// handleEvents upgrades the connection, sends the current preferences and
// then relays every broadcast until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, acceptOptions(s.corsOrigin))
	if err != nil {
		s.log.Debug("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles control frames and cancels
	// ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	c := &client{send: make(chan []byte, 8)}
	if !s.hub.add(ctx, c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.hub.remove(c)

	if msg, err := s.snapshotMessage(); err == nil {
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				s.log.Debug("websocket write", "error", err)
				return
			}
		}
	}
}
