package pipeline

import (
	"context"
	"time"
)

// Detector runs landmark detection on a frame
type Detector interface {
	// Name returns the detector name
	Name() string

	// Detect returns the landmarks of every face found in the frame
	Detect(ctx context.Context, frame *FrameData) (*DetectionResult, error)

	// Close releases detector resources
	Close() error
}

// DetectorLoader produces a ready Detector
// Load is called from a background goroutine and may be retried
type DetectorLoader interface {
	Name() string
	Load(ctx context.Context) (Detector, error)
}

// VideoSource exposes the latest decodable frame of a camera
type VideoSource interface {
	Ready() bool
	CurrentFrame() *FrameData
}

// Canvas is the overlay drawing surface
type Canvas interface {
	Ready() bool
	Clear()
	FillMarker(x, y float64)
	// Commit publishes the current surface composited over the frame
	Commit(frame *FrameData) error
}

// SampleSink accepts samples for persistence
// Submit returns once the sample has been handed off, not once it is stored
type SampleSink interface {
	Submit(ctx context.Context, row SampleRow) error
}

// Scheduler is the display refresh primitive: the callback runs once on the next refresh
type Scheduler interface {
	RequestFrame(cb func(now time.Time))
}

// FrameSubscription represents a subscription to frames from a camera
type FrameSubscription struct {
	CameraID string
	Channel  chan *FrameData
	Done     chan struct{}
}

// FrameProvider provides frames from cameras
type FrameProvider interface {
	// Start begins frame capture for a camera
	Start(cameraID string, device string, fps int, width int, height int) error

	// Stop ends frame capture for a camera
	Stop(cameraID string) error

	// Subscribe creates a new subscription for frames
	Subscribe(cameraID string, bufferSize int) (*FrameSubscription, error)

	// Unsubscribe removes a subscription
	Unsubscribe(sub *FrameSubscription)

	// IsRunning checks if capture is active for a camera
	IsRunning(cameraID string) bool

	// GetStats returns capture statistics
	GetStats(cameraID string) *CaptureStats
}

// CaptureStats contains frame capture statistics
type CaptureStats struct {
	CameraID       string `json:"camera_id"`
	FramesCaptured uint64 `json:"frames_captured"`
	FramesDropped  uint64 `json:"frames_dropped"`
	LastFrameTime  int64  `json:"last_frame_time"`
}

// FrameConsumer receives frames as they are captured
type FrameConsumer interface {
	OnFrame(frame *FrameData)
}

// EventHandler handles events published on the EventBus
type EventHandler interface {
	OnEvent(event *Event)
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(event *Event)

func (f EventHandlerFunc) OnEvent(event *Event) { f(event) }

// StreamOverlayProvider receives composited frames for streaming
type StreamOverlayProvider interface {
	SetAnnotatedFrame(cameraID string, seq uint64, frame []byte)
}
