package services

import (
	"context"
	"errors"
	"sync/atomic"

	"facetrack/internal/pipeline"
)

// meshDetector returns one 478-point face whose nose moves one pixel per call
type meshDetector struct {
	calls atomic.Int64
}

func (d *meshDetector) Name() string { return "mesh" }

func (d *meshDetector) Detect(context.Context, *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	n := float64(d.calls.Add(1))
	face := make(pipeline.Face, 478)
	for i := range face {
		face[i] = pipeline.Point{0, 0, 0}
	}
	face[1] = pipeline.Point{100 + n, 200 + n, 0}
	face[159] = pipeline.Point{80, 180, 0}
	face[386] = pipeline.Point{120, 180, 0}
	return &pipeline.DetectionResult{Faces: []pipeline.Face{face}}, nil
}

func (d *meshDetector) Close() error { return nil }

type readyLoader struct {
	det pipeline.Detector
}

func (l readyLoader) Name() string { return "mesh" }

func (l readyLoader) Load(context.Context) (pipeline.Detector, error) { return l.det, nil }

type staticSource struct{}

func (staticSource) Ready() bool { return true }

func (staticSource) CurrentFrame() *pipeline.FrameData {
	return &pipeline.FrameData{CameraID: "cam0", Seq: 1, Width: 640, Height: 480}
}

type nopCanvas struct{}

func (nopCanvas) Ready() bool                      { return true }
func (nopCanvas) Clear()                           {}
func (nopCanvas) FillMarker(float64, float64)      {}
func (nopCanvas) Commit(*pipeline.FrameData) error { return nil }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

var errDown = errors.New("connection refused")
