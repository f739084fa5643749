package stream

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"facetrack/internal/pipeline"
)

// MJPEGStream fans the frames of one camera out to connected HTTP clients
type MJPEGStream struct {
	cameraID  string
	clients   map[chan []byte]bool
	clientsMu sync.RWMutex
	current   []byte
	seq       uint64
	frameMu   sync.RWMutex
	log       *logrus.Entry
}

// MJPEGStreamManager manages MJPEG streams for all cameras
type MJPEGStreamManager struct {
	streams map[string]*MJPEGStream
	log     *logrus.Entry
	mu      sync.RWMutex
}

// NewMJPEGStreamManager creates a new stream manager
func NewMJPEGStreamManager(log *logrus.Entry) *MJPEGStreamManager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MJPEGStreamManager{
		streams: make(map[string]*MJPEGStream),
		log:     log,
	}
}

// CreateStream registers a stream for a camera, it is a no-op when the stream exists
func (m *MJPEGStreamManager) CreateStream(cameraID string) *MJPEGStream {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.streams[cameraID]; ok {
		return s
	}
	s := &MJPEGStream{
		cameraID: cameraID,
		clients:  make(map[chan []byte]bool),
		log:      m.log.WithField("camera_id", cameraID),
	}
	m.streams[cameraID] = s
	return s
}

// DeleteStream disconnects all clients and removes the stream
func (m *MJPEGStreamManager) DeleteStream(cameraID string) error {
	m.mu.Lock()
	s, ok := m.streams[cameraID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("stream not found for camera %s", cameraID)
	}
	delete(m.streams, cameraID)
	m.mu.Unlock()

	s.Stop()
	return nil
}

// GetStream returns the stream of a camera, nil when absent
func (m *MJPEGStreamManager) GetStream(cameraID string) *MJPEGStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.streams[cameraID]
}

// SetAnnotatedFrame implements pipeline.StreamOverlayProvider
func (m *MJPEGStreamManager) SetAnnotatedFrame(cameraID string, seq uint64, frame []byte) {
	if s := m.GetStream(cameraID); s != nil {
		s.SetFrame(seq, frame)
	}
}

// ServeHTTP serves /stream/{camera_id}
func (m *MJPEGStreamManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := lastPathSegment(r.URL.Path)
	if cameraID == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	s := m.GetStream(cameraID)
	if s == nil {
		http.Error(w, fmt.Sprintf("Stream not found for camera %s", cameraID), http.StatusNotFound)
		return
	}
	s.ServeHTTP(w, r)
}

// Stop disconnects all clients
func (s *MJPEGStream) Stop() {
	s.clientsMu.Lock()
	for ch := range s.clients {
		close(ch)
		delete(s.clients, ch)
	}
	s.clientsMu.Unlock()
}

// SetFrame stores the frame and broadcasts it to clients
// Frames older than the last one are dropped so a slow composite never rewinds the stream.
func (s *MJPEGStream) SetFrame(seq uint64, frame []byte) {
	if len(frame) == 0 {
		return
	}

	s.frameMu.Lock()
	if seq < s.seq {
		s.frameMu.Unlock()
		return
	}
	s.seq = seq
	s.current = frame
	s.frameMu.Unlock()

	s.clientsMu.RLock()
	for ch := range s.clients {
		select {
		case ch <- frame:
		default:
			// Slow client, skip the frame
		}
	}
	s.clientsMu.RUnlock()
}

// CurrentFrame returns the latest frame and its sequence number
func (s *MJPEGStream) CurrentFrame() ([]byte, uint64) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return s.current, s.seq
}

// ClientCount returns the number of connected clients
func (s *MJPEGStream) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// ServeHTTP writes a multipart/x-mixed-replace stream until the client leaves
func (s *MJPEGStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientCh := make(chan []byte, 5)
	s.clientsMu.Lock()
	s.clients[clientCh] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, clientCh)
		s.clientsMu.Unlock()
	}()

	s.log.Debug("stream client connected")

	if frame, _ := s.CurrentFrame(); frame != nil {
		writePart(w, frame)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("stream client disconnected")
			return
		case frame, ok := <-clientCh:
			if !ok {
				return
			}
			if err := writePart(w, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writePart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}

// SnapshotHandler serves the latest frame of a camera as a single JPEG
type SnapshotHandler struct {
	manager *MJPEGStreamManager
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(manager *MJPEGStreamManager) *SnapshotHandler {
	return &SnapshotHandler{manager: manager}
}

// ServeHTTP serves /snapshot/{camera_id}
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := lastPathSegment(r.URL.Path)
	if cameraID == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	s := h.manager.GetStream(cameraID)
	if s == nil {
		http.Error(w, fmt.Sprintf("Stream not found for camera %s", cameraID), http.StatusNotFound)
		return
	}

	frame, seq := s.CurrentFrame()
	if frame == nil {
		http.Error(w, "No frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	w.Write(frame)
}

func lastPathSegment(path string) string {
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}

var _ pipeline.StreamOverlayProvider = (*MJPEGStreamManager)(nil)
