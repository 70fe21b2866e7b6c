package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"reportmap/metrics"
	"reportmap/models"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 16
)

// ViewportMessage is what a client sends whenever its map view changes.
type ViewportMessage struct {
	Type   string         `json:"type"`
	Zoom   float64        `json:"zoom"`
	Bounds *models.Bounds `json:"bounds,omitempty"`
}

// ResultMessage carries one aggregate. Seq echoes the request it answers.
type ResultMessage struct {
	Type      string                    `json:"type"`
	Seq       uint64                    `json:"seq"`
	Result    *models.AggregationResult `json:"result,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

type request struct {
	seq      uint64
	viewport models.ViewportState
}

// Client is one live map connection. Only the newest viewport is kept: a
// result computed for an older request is dropped instead of sent.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	seq     uint64
	pending *request
	last    *models.ViewportState
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// request replaces any pending viewport with vp.
func (c *Client) request(vp models.ViewportState) {
	c.mu.Lock()
	c.seq++
	c.pending = &request{seq: c.seq, viewport: vp}
	c.last = &vp
	c.mu.Unlock()
	c.signal()
}

// refresh re-requests the last viewport, if any.
func (c *Client) refresh() {
	c.mu.Lock()
	if c.last == nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.seq++
	c.pending = &request{seq: c.seq, viewport: *c.last}
	c.mu.Unlock()
	c.signal()
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) take() *request {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}

func (c *Client) aggregateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.wake:
			c.process(ctx)
		}
	}
}

// process computes the pending request and sends it unless a newer request
// arrived meanwhile. It reports whether a message was queued.
func (c *Client) process(ctx context.Context) bool {
	req := c.take()
	if req == nil {
		return false
	}
	msg := ResultMessage{Type: "aggregation", Seq: req.seq}
	res, err := c.hub.aggregator.Aggregate(ctx, req.viewport)
	if err != nil {
		log.WithError(err).WithField("zoom", req.viewport.Zoom).Warn("live map aggregation failed")
		msg.Type = "error"
		msg.Error = err.Error()
	} else {
		msg.Result = &res
	}
	msg.Timestamp = time.Now().UTC()

	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("failed to marshal live map result")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if req.seq != c.seq {
		metrics.StaleResultsDroppedTotal.Inc()
		return false
	}
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Warn("live map client is not reading, dropping result")
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.send)
}

// readPump reads viewport messages until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.stopped:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("Live map read error: %v", err)
			}
			return
		}
		var vm ViewportMessage
		if err := json.Unmarshal(message, &vm); err != nil || vm.Type != "viewport" {
			log.Debugf("Ignoring live map message: %s", string(message))
			continue
		}
		c.request(models.ViewportState{Zoom: vm.Zoom, Bounds: vm.Bounds})
	}
}

// writePump pumps queued results to the connection and keeps it alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
