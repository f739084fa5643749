package services

import (
	"context"
	"time"

	"facetrack/internal/database"
	"facetrack/internal/pipeline"
)

// Version is the service version reported by the system status
var Version = "dev"

// WriterStatser reports sample writer counters
type WriterStatser interface {
	Stats() database.WriterStats
}

// SampleCounter reports rows held by the sample store
type SampleCounter interface {
	CountSamples(ctx context.Context, cameraID string) (int64, error)
}

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

// SystemImplementation implements the system service
type SystemImplementation struct {
	manager   *pipeline.Manager
	store     string
	counter   SampleCounter
	writer    WriterStatser
	clients   ClientCounter
	startTime time.Time
}

// NewSystemService creates a new system service implementation, counter, writer and clients may be nil
func NewSystemService(manager *pipeline.Manager, store string, counter SampleCounter, writer WriterStatser, clients ClientCounter) *SystemImplementation {
	return &SystemImplementation{
		manager:   manager,
		store:     store,
		counter:   counter,
		writer:    writer,
		clients:   clients,
		startTime: time.Now(),
	}
}

// Status returns the overall system status
func (s *SystemImplementation) Status(ctx context.Context) (*SystemStatus, error) {
	sessions := s.manager.Sessions()
	res := &SystemStatus{
		Version:       Version,
		StartedAt:     s.startTime.UTC(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Store:         s.store,
		Sessions:      make([]*TrackingStatus, 0, len(sessions)),
	}
	for _, session := range sessions {
		res.Sessions = append(res.Sessions, newTrackingStatus(session.Status()))
	}
	if s.counter != nil {
		n, err := s.counter.CountSamples(ctx, "")
		if err != nil {
			return nil, MakeUnavailable(err)
		}
		res.StoredSamples = &n
	}
	if s.writer != nil {
		stats := s.writer.Stats()
		res.Writer = &stats
	}
	if s.clients != nil {
		res.WSClients = s.clients.ClientCount()
	}
	return res, nil
}
