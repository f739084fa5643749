package ws

import (
	"time"

	"facetrack/internal/chart"
	"facetrack/internal/pipeline"
)

// Message types sent to tracking clients
const (
	TypeState  = "state"
	TypeSample = "sample"
	TypeChart  = "chart"
	TypeError  = "error"
)

// StateMessage reports the tracking state of a camera
type StateMessage struct {
	Type          string    `json:"type"` // "state"
	CameraID      string    `json:"camera_id"`
	SessionID     string    `json:"session_id"`
	Timestamp     time.Time `json:"timestamp"`
	State         string    `json:"state"` // "idle" or "active"
	Tracking      bool      `json:"tracking"`
	DetectorReady bool      `json:"detector_ready"`
	HistoryLen    int       `json:"history_len"`
}

// SampleMessage carries one appended sample
type SampleMessage struct {
	Type        string          `json:"type"` // "sample"
	CameraID    string          `json:"camera_id"`
	Cycle       uint64          `json:"cycle"`
	FrameSeq    uint64          `json:"frame_seq"`
	Sample      pipeline.Sample `json:"sample"`
	HistoryLen  int             `json:"history_len"`
	Faces       int             `json:"faces"`
	Points      int             `json:"points"`
	InferenceMs float32         `json:"inference_ms"`
}

// ChartMessage carries the projection of the full history window
type ChartMessage struct {
	Type     string        `json:"type"` // "chart"
	CameraID string        `json:"camera_id"`
	Chart    chart.Data    `json:"chart"`
	Summary  chart.Summary `json:"summary"`
}

// ErrorMessage reports a cycle that failed to extract a sample
type ErrorMessage struct {
	Type     string `json:"type"` // "error"
	CameraID string `json:"camera_id"`
	Cycle    uint64 `json:"cycle"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error"`
}

// NewStateMessage builds a state message from a session status
func NewStateMessage(st pipeline.Status, at time.Time) *StateMessage {
	return &StateMessage{
		Type:          TypeState,
		CameraID:      st.CameraID,
		SessionID:     st.SessionID,
		Timestamp:     at,
		State:         st.State.String(),
		Tracking:      st.Tracking,
		DetectorReady: st.DetectorReady,
		HistoryLen:    st.HistoryLen,
	}
}

// NewChartMessage projects a history window
func NewChartMessage(cameraID string, history []pipeline.Sample) *ChartMessage {
	return &ChartMessage{
		Type:     TypeChart,
		CameraID: cameraID,
		Chart:    chart.Project(history),
		Summary:  chart.Summarize(history),
	}
}
