package services

import (
	"time"

	"facetrack/internal/chart"
	"facetrack/internal/database"
	"facetrack/internal/pipeline"
)

// CameraPayload addresses one mounted camera surface
type CameraPayload struct {
	CameraID string
}

// TrackingStatus is the tracking view of a camera surface
type TrackingStatus struct {
	pipeline.Status
	State string `json:"state"`
	// Changed is set on start and stop, false when the command was a no-op
	Changed *bool `json:"changed,omitempty"`
}

// HistoryResult is the in-memory history window of a camera
type HistoryResult struct {
	CameraID  string            `json:"camera_id"`
	SessionID string            `json:"session_id"`
	Capacity  int               `json:"capacity"`
	Samples   []pipeline.Sample `json:"samples"`
}

// ChartResult is the projection of the history window plus its summary
type ChartResult struct {
	CameraID string        `json:"camera_id"`
	Chart    chart.Data    `json:"chart"`
	Summary  chart.Summary `json:"summary"`
}

// SamplesPayload filters persisted rows
type SamplesPayload struct {
	CameraID  string
	SessionID string
	Since     int64
	Limit     int
}

// SamplesResult lists persisted rows, newest first
type SamplesResult struct {
	Rows  []pipeline.SampleRow `json:"rows"`
	Count int                  `json:"count"`
}

// HealthResult reports readiness per dependency
type HealthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// SystemStatus is the overall service status
type SystemStatus struct {
	Version       string                `json:"version"`
	StartedAt     time.Time             `json:"started_at"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Store         string                `json:"store"`
	StoredSamples *int64                `json:"stored_samples,omitempty"`
	Writer        *database.WriterStats `json:"writer,omitempty"`
	WSClients     int                   `json:"ws_clients"`
	Sessions      []*TrackingStatus     `json:"sessions"`
}

func newTrackingStatus(st pipeline.Status) *TrackingStatus {
	return &TrackingStatus{Status: st, State: st.State.String()}
}
