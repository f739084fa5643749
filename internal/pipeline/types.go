package pipeline

import (
	"time"
)

// TrackingState is the state of a tracking session
type TrackingState int

const (
	// StateIdle - no cycle chain is being scheduled
	StateIdle TrackingState = iota
	// StateActive - each cycle reschedules the next one
	StateActive
)

func (s TrackingState) String() string {
	switch s {
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

// FrameData represents a captured video frame
type FrameData struct {
	CameraID  string    // Camera identifier
	Data      []byte    // JPEG frame data
	Seq       uint64    // Frame sequence number
	Timestamp time.Time // Capture timestamp
	Width     int       // Frame width (if known)
	Height    int       // Frame height (if known)
}

// Point is one landmark coordinate tuple in video pixel space: x, y and optionally z
type Point []float64

// Face is the ordered landmark list of one detected face
type Face []Point

// DetectionResult is the detector output for one frame
// An empty Faces slice means no face was found
type DetectionResult struct {
	Faces       []Face  `json:"faces"`
	InferenceMs float32 `json:"inference_ms"`
}

// PointCount returns the number of landmarks across all faces
func (r *DetectionResult) PointCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range r.Faces {
		n += len(f)
	}
	return n
}

// Sample is one measurement taken from a single frame
type Sample struct {
	Timestamp int64   `json:"timestamp" db:"timestamp"` // Milliseconds since epoch, assigned at extraction
	NoseX     float64 `json:"nose_x" db:"nose_x"`
	NoseY     float64 `json:"nose_y" db:"nose_y"`
	LeftEyeX  float64 `json:"left_eye_x" db:"left_eye_x"`
	LeftEyeY  float64 `json:"left_eye_y" db:"left_eye_y"`
	RightEyeX float64 `json:"right_eye_x" db:"right_eye_x"`
	RightEyeY float64 `json:"right_eye_y" db:"right_eye_y"`
}

// SampleRow is a sample as handed to persistence
type SampleRow struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	CameraID  string    `json:"camera_id" db:"camera_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Sample
}

// CycleOutcome describes how a loop cycle ended
type CycleOutcome string

const (
	OutcomeSample       CycleOutcome = "sample"
	OutcomeNoFace       CycleOutcome = "no_face"
	OutcomeSkipped      CycleOutcome = "skipped"
	OutcomeDetectError  CycleOutcome = "detect_error"
	OutcomeExtractError CycleOutcome = "extract_error"
)

// EventKind identifies what an Event carries
type EventKind string

const (
	EventCycle EventKind = "cycle"
	EventState EventKind = "state"
)

// Event is published on the EventBus after every cycle and state change
type Event struct {
	Kind      EventKind
	CameraID  string
	SessionID string
	Timestamp time.Time

	// State events
	State TrackingState

	// Cycle events
	Cycle       uint64
	FrameSeq    uint64
	Outcome     CycleOutcome
	Sample      *Sample
	History     []Sample // Window after the append, only set with a sample
	Faces       int
	Points      int
	InferenceMs float32
	Err         error
}

// LoopStats tracks loop statistics for monitoring
type LoopStats struct {
	CameraID          string  `json:"camera_id"`
	Cycles            uint64  `json:"cycles"`
	Samples           uint64  `json:"samples"`
	EmptyFrames       uint64  `json:"empty_frames"`
	SkippedCycles     uint64  `json:"skipped_cycles"`
	DetectErrors      uint64  `json:"detect_errors"`
	ExtractFailures   uint64  `json:"extract_failures"`
	PersistFailures   uint64  `json:"persist_failures"`
	DrawFailures      uint64  `json:"draw_failures"`
	SamplesPerSecond  float64 `json:"samples_per_second"`
	AvgInferenceMs    float32 `json:"avg_inference_ms"`
	LastSampleTime    int64   `json:"last_sample_time"`
	DetectorLoadTries uint64  `json:"detector_load_tries"`
}

// Status is a point-in-time view of a session
type Status struct {
	CameraID      string        `json:"camera_id"`
	SessionID     string        `json:"session_id"`
	State         TrackingState `json:"-"`
	Tracking      bool          `json:"tracking"`
	DetectorReady bool          `json:"detector_ready"`
	Detector      string        `json:"detector"`
	Topology      string        `json:"topology"`
	HistoryLen    int           `json:"history_len"`
	MountedAt     time.Time     `json:"mounted_at"`
	Stats         LoopStats     `json:"stats"`
}
