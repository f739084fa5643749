package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"facetrack/internal/pipeline"
)

type fakeDetector struct {
	calls  atomic.Int64
	detect func(ctx context.Context, call int64) (*pipeline.DetectionResult, error)
	closed atomic.Bool
}

func (d *fakeDetector) Name() string { return "fake" }

func (d *fakeDetector) Detect(ctx context.Context, _ *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	call := d.calls.Add(1)
	if d.detect == nil {
		return &pipeline.DetectionResult{}, nil
	}
	return d.detect(ctx, call)
}

func (d *fakeDetector) Close() error {
	d.closed.Store(true)
	return nil
}

// fakeLoader returns det immediately, or blocks until ctx is done when det is nil
type fakeLoader struct {
	det   pipeline.Detector
	fails int
	tries atomic.Int64
}

func (l *fakeLoader) Name() string { return "fake" }

func (l *fakeLoader) Load(ctx context.Context) (pipeline.Detector, error) {
	try := l.tries.Add(1)
	if l.det == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if int(try) <= l.fails {
		return nil, errors.New("model not loaded yet")
	}
	return l.det, nil
}

type fakeSource struct {
	ready atomic.Bool
	frame *pipeline.FrameData
}

func newFakeSource(ready bool) *fakeSource {
	s := &fakeSource{frame: &pipeline.FrameData{CameraID: "cam", Seq: 1, Width: 640, Height: 480}}
	s.ready.Store(ready)
	return s
}

func (s *fakeSource) Ready() bool { return s.ready.Load() }

func (s *fakeSource) CurrentFrame() *pipeline.FrameData {
	if !s.ready.Load() {
		return nil
	}
	return s.frame
}

type fakeCanvas struct {
	mu      sync.Mutex
	clears  int
	markers [][2]float64
	commits int
}

func (c *fakeCanvas) Ready() bool { return true }

func (c *fakeCanvas) Clear() {
	c.mu.Lock()
	c.clears++
	c.markers = nil
	c.mu.Unlock()
}

func (c *fakeCanvas) FillMarker(x, y float64) {
	c.mu.Lock()
	c.markers = append(c.markers, [2]float64{x, y})
	c.mu.Unlock()
}

func (c *fakeCanvas) Commit(*pipeline.FrameData) error {
	c.mu.Lock()
	c.commits++
	c.mu.Unlock()
	return nil
}

func (c *fakeCanvas) snapshot() (clears int, markers int, commits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears, len(c.markers), c.commits
}

type fakeSink struct {
	mu   sync.Mutex
	rows []pipeline.SampleRow
	err  error
}

func (s *fakeSink) Submit(_ context.Context, row pipeline.SampleRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// meshFace builds a 468 point face with the FaceMesh tracked indices set
func meshFace(nose, left, right pipeline.Point) pipeline.Face {
	face := make(pipeline.Face, 468)
	for i := range face {
		face[i] = pipeline.Point{float64(i), float64(i), 0}
	}
	face[pipeline.MediaPipeFaceMesh.Nose] = nose
	face[pipeline.MediaPipeFaceMesh.LeftEye] = left
	face[pipeline.MediaPipeFaceMesh.RightEye] = right
	return face
}
