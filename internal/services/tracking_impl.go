package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"facetrack/internal/chart"
	"facetrack/internal/logger"
	"facetrack/internal/pipeline"
)

// TrackingImplementation implements the tracking service on top of the session manager
type TrackingImplementation struct {
	manager *pipeline.Manager
	log     *logrus.Entry
}

// NewTrackingService creates a new tracking service implementation
func NewTrackingService(manager *pipeline.Manager, log *logrus.Entry) *TrackingImplementation {
	if log == nil {
		log = logger.Discard()
	}
	return &TrackingImplementation{manager: manager, log: log}
}

func (s *TrackingImplementation) session(p *CameraPayload) (*pipeline.Session, error) {
	if p == nil || p.CameraID == "" {
		return nil, MakeBadRequest(fmt.Errorf("camera_id is required"))
	}
	session, err := s.manager.Session(p.CameraID)
	if err != nil {
		return nil, toServiceError(err)
	}
	return session, nil
}

// Status returns the tracking status of a camera
func (s *TrackingImplementation) Status(ctx context.Context, p *CameraPayload) (*TrackingStatus, error) {
	session, err := s.session(p)
	if err != nil {
		return nil, err
	}
	return newTrackingStatus(session.Status()), nil
}

// Start issues the start command, a no-op while loading or already tracking
func (s *TrackingImplementation) Start(ctx context.Context, p *CameraPayload) (*TrackingStatus, error) {
	session, err := s.session(p)
	if err != nil {
		return nil, err
	}
	changed := session.Start()
	logger.WithRequestID(ctx, s.log).WithFields(logrus.Fields{"camera_id": p.CameraID, "changed": changed}).Info("start requested")

	res := newTrackingStatus(session.Status())
	res.Changed = &changed
	return res, nil
}

// Stop issues the stop command, a no-op while idle
func (s *TrackingImplementation) Stop(ctx context.Context, p *CameraPayload) (*TrackingStatus, error) {
	session, err := s.session(p)
	if err != nil {
		return nil, err
	}
	changed := session.Stop()
	logger.WithRequestID(ctx, s.log).WithFields(logrus.Fields{"camera_id": p.CameraID, "changed": changed}).Info("stop requested")

	res := newTrackingStatus(session.Status())
	res.Changed = &changed
	return res, nil
}

// Remount replaces the session with a fresh idle one, clearing its history
func (s *TrackingImplementation) Remount(ctx context.Context, p *CameraPayload) (*TrackingStatus, error) {
	if _, err := s.session(p); err != nil {
		return nil, err
	}
	session, err := s.manager.Remount(p.CameraID)
	if err != nil {
		return nil, toServiceError(err)
	}
	logger.WithRequestID(ctx, s.log).WithFields(logrus.Fields{"camera_id": p.CameraID, "session_id": session.ID()}).Info("camera surface remounted")
	return newTrackingStatus(session.Status()), nil
}

// History returns the current history window, oldest first
func (s *TrackingImplementation) History(ctx context.Context, p *CameraPayload) (*HistoryResult, error) {
	session, err := s.session(p)
	if err != nil {
		return nil, err
	}
	samples := session.History()
	if samples == nil {
		samples = []pipeline.Sample{}
	}
	return &HistoryResult{
		CameraID:  session.CameraID(),
		SessionID: session.ID(),
		Capacity:  pipeline.HistoryCapacity,
		Samples:   samples,
	}, nil
}

// Chart projects the history window into the chart payload
func (s *TrackingImplementation) Chart(ctx context.Context, p *CameraPayload) (*ChartResult, error) {
	session, err := s.session(p)
	if err != nil {
		return nil, err
	}
	history := session.History()
	return &ChartResult{
		CameraID: session.CameraID(),
		Chart:    chart.Project(history),
		Summary:  chart.Summarize(history),
	}, nil
}

// ChartHTML renders the history window as an interactive HTML page
func (s *TrackingImplementation) ChartHTML(ctx context.Context, p *CameraPayload) ([]byte, error) {
	session, err := s.session(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := chart.RenderHTML(&buf, chartTitle(session), chart.Project(session.History())); err != nil {
		return nil, toServiceError(err)
	}
	return buf.Bytes(), nil
}

// ChartPNG renders the history window as a PNG image
func (s *TrackingImplementation) ChartPNG(ctx context.Context, p *CameraPayload) ([]byte, error) {
	session, err := s.session(p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, chartTitle(session), chart.Project(session.History())); err != nil {
		return nil, toServiceError(err)
	}
	return buf.Bytes(), nil
}

func chartTitle(session *pipeline.Session) string {
	return fmt.Sprintf("Nose position, camera %s", session.CameraID())
}
