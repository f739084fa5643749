package ws

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// client owns one connection, only its writePump writes to conn
type client struct {
	cameraID string
	conn     *websocket.Conn
	send     chan []byte
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// TrackingHub manages WebSocket connections for real-time tracking updates
type TrackingHub struct {
	// clients maps camera_id -> set of clients
	clients map[string]map[*client]bool
	log     *logrus.Entry
	mu      sync.RWMutex
}

// NewTrackingHub creates a new tracking hub
func NewTrackingHub(log *logrus.Entry) *TrackingHub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TrackingHub{
		clients: make(map[string]map[*client]bool),
		log:     log,
	}
}

// register adds a connection for a camera and starts its writer
func (h *TrackingHub) register(cameraID string, conn *websocket.Conn) *client {
	c := &client{cameraID: cameraID, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.clients[cameraID] == nil {
		h.clients[cameraID] = make(map[*client]bool)
	}
	h.clients[cameraID][c] = true
	total := len(h.clients[cameraID])
	h.mu.Unlock()

	go h.writePump(c)
	h.log.WithFields(logrus.Fields{"camera_id": cameraID, "clients": total}).Debug("ws client registered")
	return c
}

// unregister removes a client and stops its writer
func (h *TrackingHub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.cameraID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.cameraID)
		}
	}
	h.mu.Unlock()

	c.close()
	h.log.WithField("camera_id", c.cameraID).Debug("ws client unregistered")
}

// HasClients returns true if any client is connected for a camera
func (h *TrackingHub) HasClients(cameraID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[cameraID]) > 0
}

// Cameras returns the camera IDs with connected clients, sorted
func (h *TrackingHub) Cameras() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cameras := make([]string, 0, len(h.clients))
	for cameraID := range h.clients {
		cameras = append(cameras, cameraID)
	}
	sort.Strings(cameras)
	return cameras
}

// ClientCount returns the total number of connected clients
func (h *TrackingHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// Broadcast encodes msg and queues it for every client of a camera
// A client whose queue is full misses the message.
func (h *TrackingHub) Broadcast(cameraID string, msg any) {
	if !h.HasClients(cameraID) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("failed to encode ws message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[cameraID] {
		h.enqueue(c, data)
	}
}

// sendTo encodes msg and queues it for a single client
func (h *TrackingHub) sendTo(c *client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("failed to encode ws message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.cameraID][c] {
		h.enqueue(c, data)
	}
}

// enqueue must be called with h.mu held and c registered, send is only closed after removal
func (h *TrackingHub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.WithField("camera_id", c.cameraID).Debug("ws client too slow, message dropped")
	}
}

// Close disconnects every client
func (h *TrackingHub) Close() {
	h.mu.Lock()
	var all []*client
	for _, conns := range h.clients {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*client]bool)
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (h *TrackingHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.WithError(err).WithField("camera_id", c.cameraID).Debug("ws write failed")
				go h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go h.unregister(c)
				return
			}
		}
	}
}
