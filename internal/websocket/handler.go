package websocket

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is a deployment concern; the engine performs no
		// authentication of participants.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Dispatcher consumes command frames and disconnect notifications from the
// transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, data []byte)
	HandleDisconnect(ctx context.Context, connID string)
}

// Options holds the transport tunables.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteBuffer  int
}

// Handler upgrades HTTP requests to WebSocket connections and pumps their
// frames into the dispatcher.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	opts       Options
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, dispatcher Dispatcher, opts Options) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		opts:       opts,
	}
}

// HandleWebSocket upgrades the request and assigns the connection id that
// identifies this participant for the connection's lifetime.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(ws, uuid.New().String(), h.opts.WriteBuffer)

	if err := h.registry.Register(conn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = conn.Close()
		return
	}

	log.Printf("Connection established: id=%s remote=%s", conn.ID(), r.RemoteAddr)
	go h.handleConnection(conn)
}

// handleConnection runs the read pump and the heartbeat for one connection.
// When the read loop ends, the disconnect command runs before the connection
// leaves the registry so the departure broadcast still reaches the room.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.dispatcher.HandleDisconnect(context.Background(), conn.ID())
		h.registry.Unregister(conn)
		_ = conn.Close()
		log.Printf("Connection closed: id=%s", conn.ID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ID(), err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			h.dispatcher.Dispatch(conn.ctx, conn.ID(), data)
		}
	}
}
