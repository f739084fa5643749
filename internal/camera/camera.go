package camera

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"facetrack/internal/pipeline"
)

// Camera describes a capture device
type Camera struct {
	ID     string
	Device string
	Width  int
	Height int
	FPS    int
}

// Source keeps the latest frame of a camera and reports readiness
// It becomes ready with the first decoded frame, like a video element reaching enough data to play.
type Source struct {
	camera    Camera
	provider  pipeline.FrameProvider
	sub       *pipeline.FrameSubscription
	latest    *pipeline.FrameData
	listeners []pipeline.FrameConsumer
	opened    bool
	log       *logrus.Entry
	mu        sync.RWMutex
}

// NewSource creates a closed source for a camera
func NewSource(cam Camera, provider pipeline.FrameProvider, log *logrus.Entry) *Source {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Source{
		camera:   cam,
		provider: provider,
		log:      log.WithField("camera_id", cam.ID),
	}
}

// Open starts capture and begins tracking the latest frame
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return fmt.Errorf("camera %s already open", s.camera.ID)
	}
	if !deviceAccessible(s.camera.Device) {
		return fmt.Errorf("camera device %s not accessible", s.camera.Device)
	}

	if !s.provider.IsRunning(s.camera.ID) {
		if err := s.provider.Start(s.camera.ID, s.camera.Device, s.camera.FPS, s.camera.Width, s.camera.Height); err != nil {
			return fmt.Errorf("failed to start capture: %w", err)
		}
	}

	sub, err := s.provider.Subscribe(s.camera.ID, 2)
	if err != nil {
		return fmt.Errorf("failed to subscribe to camera %s: %w", s.camera.ID, err)
	}
	s.sub = sub
	s.opened = true

	go s.consume(sub)

	s.log.WithField("device", s.camera.Device).Info("camera source opened")
	return nil
}

// AddListener forwards every received frame to c
func (s *Source) AddListener(c pipeline.FrameConsumer) {
	s.mu.Lock()
	s.listeners = append(s.listeners, c)
	s.mu.Unlock()
}

func (s *Source) consume(sub *pipeline.FrameSubscription) {
	for {
		select {
		case <-sub.Done:
			return
		case frame := <-sub.Channel:
			if frame == nil {
				continue
			}
			if frame.Width == 0 || frame.Height == 0 {
				frame.Width, frame.Height = s.camera.Width, s.camera.Height
			}

			s.mu.Lock()
			s.latest = frame
			listeners := s.listeners
			s.mu.Unlock()

			for _, l := range listeners {
				l.OnFrame(frame)
			}
		}
	}
}

// Ready reports whether a frame has been received since Open
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened && s.latest != nil
}

// CurrentFrame returns the latest frame, nil before the first one
func (s *Source) CurrentFrame() *pipeline.FrameData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.opened {
		return nil
	}
	return s.latest
}

// Camera returns the camera description
func (s *Source) Camera() Camera {
	return s.camera
}

// Close stops tracking frames and stops the capture
func (s *Source) Close() error {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil
	}
	s.opened = false
	s.latest = nil
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.provider.Unsubscribe(sub)
	if err := s.provider.Stop(s.camera.ID); err != nil {
		return fmt.Errorf("failed to stop capture: %w", err)
	}
	s.log.Info("camera source closed")
	return nil
}

func isNetworkSource(device string) bool {
	return strings.HasPrefix(device, "rtsp://") ||
		strings.HasPrefix(device, "http://") ||
		strings.HasPrefix(device, "https://")
}

// deviceAccessible checks that a local device node exists, network sources are assumed reachable
func deviceAccessible(device string) bool {
	if device == "" {
		return false
	}
	if isNetworkSource(device) {
		return true
	}
	_, err := os.Stat(device)
	return err == nil
}

var _ pipeline.VideoSource = (*Source)(nil)
