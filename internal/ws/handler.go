package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// PathPrefix is where tracking sockets are served
const PathPrefix = "/ws/tracking/"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Snapshotter returns the messages a new client receives before live updates
type Snapshotter interface {
	Snapshot(cameraID string) []any
}

// Handler handles WebSocket connections for real-time tracking updates
type Handler struct {
	hub      *TrackingHub
	snapshot Snapshotter
	log      *logrus.Entry
}

// NewHandler creates a new WebSocket handler, snapshot may be nil
func NewHandler(hub *TrackingHub, snapshot Snapshotter, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{hub: hub, snapshot: snapshot, log: log}
}

// ServeHTTP handles WebSocket upgrade requests on /ws/tracking/{camera_id}
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, PathPrefix), "/")
	if cameraID == "" || strings.Contains(cameraID, "/") {
		http.Error(w, "camera_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}

	h.log.WithFields(logrus.Fields{"camera_id": cameraID, "remote": r.RemoteAddr}).Info("ws client connected")

	c := h.hub.register(cameraID, conn)
	if h.snapshot != nil {
		for _, msg := range h.snapshot.Snapshot(cameraID) {
			h.hub.sendTo(c, msg)
		}
	}

	go h.readPump(c)
}

// readPump keeps the connection alive and detects client disconnection
func (h *Handler) readPump(c *client) {
	defer h.hub.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).WithField("camera_id", c.cameraID).Debug("ws read error")
			}
			return
		}
	}
}
