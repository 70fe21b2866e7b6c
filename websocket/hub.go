package websocket

import (
	"context"
	"sync"

	"reportmap/metrics"
	"reportmap/models"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

// Aggregator computes the map aggregate for one viewport.
type Aggregator interface {
	Aggregate(ctx context.Context, viewport models.ViewportState) (models.AggregationResult, error)
}

// Hub manages live map connections. Every client gets a fresh aggregate for
// each viewport it sends and again whenever the reports change.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	Register   chan *Client
	Unregister chan *Client

	// dirty coalesces change notifications; one pending signal is enough.
	dirty chan struct{}
	// stopped is closed when Run returns.
	stopped chan struct{}

	mutex      sync.RWMutex
	aggregator Aggregator
}

func NewHub(aggregator Aggregator) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		dirty:      make(chan struct{}, 1),
		stopped:    make(chan struct{}),
		aggregator: aggregator,
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mutex.Unlock()
			metrics.LiveClients.Set(0)
			return

		case client := <-h.Register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.LiveClients.Set(float64(n))
			log.Infof("Live map client connected. Total clients: %d", n)

		case client := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.LiveClients.Set(float64(n))
			log.Infof("Live map client disconnected. Total clients: %d", n)

		case <-h.dirty:
			h.mutex.RLock()
			for client := range h.clients {
				client.refresh()
			}
			h.mutex.RUnlock()
		}
	}
}

// ReportsChanged marks every client for recomputation. It never blocks.
func (h *Hub) ReportsChanged() {
	select {
	case h.dirty <- struct{}{}:
	default:
	}
}

// Serve registers a client for an upgraded connection and starts its pumps.
// The client lives until its connection fails or the hub stops.
func (h *Hub) Serve(conn *websocket.Conn) {
	client := newClient(h, conn)
	select {
	case h.Register <- client:
	case <-h.stopped:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	go client.aggregateLoop(context.Background())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
