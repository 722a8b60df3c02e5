// internal/hub/hub.go
// Provides the presence and notification hub as a package.
package hub

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gymstack/presenced/internal/logger"
	"github.com/gymstack/presenced/internal/message"
	"github.com/gymstack/presenced/internal/training"
)

// Hub owns the connection registry and presence state for the process.
// Connections map a user id to its single live transport handle; presence
// entries are created on first join and retained (as offline) for the
// lifetime of the process so last-seen history survives reconnects.
type Hub struct {
	mu       sync.Mutex
	conns    map[string]*Client
	presence map[string]*message.PresenceEntry

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	NatsConn  *nats.Conn
	Js        nats.JetStreamContext
	Store     training.Store
	StartTime time.Time
	Logger    *logger.Logger
}

// NewHub creates a new Hub instance and initializes its fields.
// The NATS connection and training store may be nil; the hub then runs with
// in-memory delivery only and skips training-level pushes respectively.
func NewHub(nc *nats.Conn, js nats.JetStreamContext, store training.Store, logger *logger.Logger) *Hub {
	return &Hub{
		conns:      make(map[string]*Client),
		presence:   make(map[string]*message.PresenceEntry),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		NatsConn:   nc,
		Js:         js,
		Store:      store,
		StartTime:  time.Now(),
		Logger:     logger,
	}
}

// Run services the hub's event channels until Close is called.
// Registration, teardown and broadcast fan-out all go through this loop so
// connection lifecycle events from the websocket pumps stay ordered.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.Register(client)

		case client := <-h.unregister:
			h.DropClient(client)

		case data := <-h.broadcast:
			h.fanOut(data)

		case <-h.done:
			return
		}
	}
}

// fanOut delivers a frame to every connected client. Clients whose send
// buffer is full are treated as dead and dropped.
func (h *Hub) fanOut(data []byte) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.conns))
	for _, client := range h.conns {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.Logger.Warnf("Send buffer full for %s, dropping connection", client.UserID)
			h.DropClient(client)
		}
	}
}

// sendFrame delivers a frame to a single client without blocking the caller.
func (h *Hub) sendFrame(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		h.Logger.Warnf("Send buffer full for %s, frame dropped", client.UserID)
	}
}

// Close terminates the hub: the run loop stops, all live connections are
// torn down and no further events are delivered.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		clients := make([]*Client, 0, len(h.conns))
		for _, client := range h.conns {
			clients = append(clients, client)
		}
		h.conns = make(map[string]*Client)
		h.mu.Unlock()

		for _, client := range clients {
			client.close()
		}
		h.Logger.Infof("Hub closed, %d connections terminated", len(clients))
	})
}
