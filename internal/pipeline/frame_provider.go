package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// FFmpegFrameProvider captures JPEG frames from cameras and broadcasts them to subscribers
// Sources: V4L2 devices, RTSP, HTTP MJPEG streams and polled HTTP snapshots.
type FFmpegFrameProvider struct {
	cameras map[string]*cameraCapture
	log     *logrus.Entry
	mu      sync.RWMutex
}

type cameraCapture struct {
	cameraID    string
	device      string
	fps         int
	width       int
	height      int
	running     atomic.Bool
	stopCh      chan struct{}
	stopOnce    sync.Once
	cmd         *exec.Cmd
	cmdMu       sync.Mutex
	subscribers map[*FrameSubscription]bool
	subMu       sync.RWMutex
	frameSeq    atomic.Uint64
	stats       CaptureStats
	statsMu     sync.RWMutex
	log         *logrus.Entry
}

// NewFFmpegFrameProvider creates a new FFmpeg-based frame provider
func NewFFmpegFrameProvider(log *logrus.Entry) *FFmpegFrameProvider {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FFmpegFrameProvider{
		cameras: make(map[string]*cameraCapture),
		log:     log,
	}
}

func (p *FFmpegFrameProvider) Start(cameraID string, device string, fps int, width int, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.cameras[cameraID]; exists {
		return fmt.Errorf("camera %s already started", cameraID)
	}
	if fps <= 0 {
		fps = 30
	}

	capture := &cameraCapture{
		cameraID:    cameraID,
		device:      device,
		fps:         fps,
		width:       width,
		height:      height,
		stopCh:      make(chan struct{}),
		subscribers: make(map[*FrameSubscription]bool),
		stats:       CaptureStats{CameraID: cameraID},
		log:         p.log.WithField("camera_id", cameraID),
	}
	p.cameras[cameraID] = capture

	go capture.run()

	capture.log.WithFields(logrus.Fields{"device": device, "fps": fps, "size": fmt.Sprintf("%dx%d", width, height)}).
		Info("started frame capture")
	return nil
}

func (p *FFmpegFrameProvider) Stop(cameraID string) error {
	p.mu.Lock()
	capture, exists := p.cameras[cameraID]
	if !exists {
		p.mu.Unlock()
		return fmt.Errorf("camera %s not found", cameraID)
	}
	delete(p.cameras, cameraID)
	p.mu.Unlock()

	capture.stop()
	capture.log.Info("stopped frame capture")
	return nil
}

// StopAll stops every camera capture
func (p *FFmpegFrameProvider) StopAll() {
	p.mu.Lock()
	cameras := p.cameras
	p.cameras = make(map[string]*cameraCapture)
	p.mu.Unlock()

	for _, c := range cameras {
		c.stop()
	}
}

func (p *FFmpegFrameProvider) Subscribe(cameraID string, bufferSize int) (*FrameSubscription, error) {
	p.mu.RLock()
	capture, exists := p.cameras[cameraID]
	p.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("camera %s not found", cameraID)
	}
	if bufferSize <= 0 {
		bufferSize = 5
	}

	sub := &FrameSubscription{
		CameraID: cameraID,
		Channel:  make(chan *FrameData, bufferSize),
		Done:     make(chan struct{}),
	}

	capture.subMu.Lock()
	capture.subscribers[sub] = true
	count := len(capture.subscribers)
	capture.subMu.Unlock()

	capture.log.WithField("subscribers", count).Debug("new frame subscriber")
	return sub, nil
}

func (p *FFmpegFrameProvider) Unsubscribe(sub *FrameSubscription) {
	if sub == nil {
		return
	}

	p.mu.RLock()
	capture, exists := p.cameras[sub.CameraID]
	p.mu.RUnlock()

	if !exists {
		return
	}

	capture.subMu.Lock()
	if _, ok := capture.subscribers[sub]; ok {
		delete(capture.subscribers, sub)
		close(sub.Done)
	}
	count := len(capture.subscribers)
	capture.subMu.Unlock()

	capture.log.WithField("subscribers", count).Debug("frame subscriber removed")
}

func (p *FFmpegFrameProvider) IsRunning(cameraID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	capture, exists := p.cameras[cameraID]
	if !exists {
		return false
	}
	return capture.running.Load()
}

func (p *FFmpegFrameProvider) GetStats(cameraID string) *CaptureStats {
	p.mu.RLock()
	capture, exists := p.cameras[cameraID]
	p.mu.RUnlock()

	if !exists {
		return nil
	}

	capture.statsMu.RLock()
	defer capture.statsMu.RUnlock()
	stats := capture.stats
	return &stats
}

func (c *cameraCapture) run() {
	c.running.Store(true)
	defer c.running.Store(false)

	if isSnapshotEndpoint(c.device) {
		c.pollSnapshots()
		return
	}
	c.captureFFmpeg()
}

func (c *cameraCapture) stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)

		c.cmdMu.Lock()
		if c.cmd != nil && c.cmd.Process != nil {
			c.cmd.Process.Kill()
		}
		c.cmdMu.Unlock()

		c.subMu.Lock()
		for sub := range c.subscribers {
			close(sub.Done)
			delete(c.subscribers, sub)
		}
		c.subMu.Unlock()
	})
}

// isSnapshotEndpoint reports whether device is an HTTP URL serving single JPEG images
func isSnapshotEndpoint(device string) bool {
	if !strings.HasPrefix(device, "http://") && !strings.HasPrefix(device, "https://") {
		return false
	}
	return strings.Contains(device, ".jpg") || strings.Contains(device, ".jpeg") || strings.Contains(device, "snapshot")
}

func (c *cameraCapture) pollSnapshots() {
	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Second / time.Duration(c.fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			resp, err := client.Get(c.device)
			if err != nil {
				c.log.WithError(err).Warn("failed to fetch snapshot")
				continue
			}
			frame, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				c.log.WithError(err).Warn("failed to read snapshot")
				continue
			}
			c.broadcastFrame(frame)
		}
	}
}

// ffmpegArgs builds the ffmpeg command line for a device, output is an MJPEG image pipe on stdout
func ffmpegArgs(device string, fps, width, height int) []string {
	rate := strconv.Itoa(fps)
	size := fmt.Sprintf("%dx%d", width, height)

	var input []string
	switch {
	case strings.HasPrefix(device, "rtsp://"):
		input = []string{"-rtsp_transport", "tcp", "-i", device}
	case strings.HasPrefix(device, "http://"), strings.HasPrefix(device, "https://"):
		input = []string{"-i", device}
	default:
		input = []string{"-f", "v4l2", "-video_size", size, "-framerate", rate, "-i", device}
	}

	output := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-r", rate, "-s", size, "-q:v", "5", "-"}
	return append(input, output...)
}

func (c *cameraCapture) captureFFmpeg() {
	cmd := exec.Command("ffmpeg", ffmpegArgs(c.device, c.fps, c.width, c.height)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.log.WithError(err).Error("failed to create stdout pipe")
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.log.WithError(err).Error("failed to create stderr pipe")
		return
	}
	if err := cmd.Start(); err != nil {
		c.log.WithError(err).Error("failed to start ffmpeg")
		return
	}

	c.cmdMu.Lock()
	c.cmd = cmd
	c.cmdMu.Unlock()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.log.WithField("ffmpeg", scanner.Text()).Trace("ffmpeg output")
		}
	}()

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		n, err := stdout.Read(chunk)
		if err != nil {
			if err != io.EOF {
				c.log.WithError(err).Warn("ffmpeg read failed")
			}
			cmd.Wait()
			return
		}

		buffer = append(buffer, chunk[:n]...)
		for {
			var frame []byte
			frame, buffer = extractJPEGFrame(buffer)
			if frame == nil {
				break
			}
			c.broadcastFrame(frame)
		}
	}
}

func (c *cameraCapture) broadcastFrame(data []byte) {
	seq := c.frameSeq.Add(1)
	now := time.Now()

	frame := &FrameData{
		CameraID:  c.cameraID,
		Data:      data,
		Seq:       seq,
		Timestamp: now,
		Width:     c.width,
		Height:    c.height,
	}

	dropped := uint64(0)
	c.subMu.RLock()
	for sub := range c.subscribers {
		select {
		case sub.Channel <- frame:
		default:
			dropped++
		}
	}
	subCount := len(c.subscribers)
	c.subMu.RUnlock()

	c.statsMu.Lock()
	c.stats.FramesCaptured++
	c.stats.FramesDropped += dropped
	c.stats.LastFrameTime = now.Unix()
	c.statsMu.Unlock()

	if seq%300 == 0 {
		c.log.WithFields(logrus.Fields{"frame": seq, "subscribers": subCount}).Debug("capture progress")
	}
}

// extractJPEGFrame cuts the first complete JPEG image out of buf
// It returns the frame (nil when none is complete yet) and the remaining buffer.
func extractJPEGFrame(buf []byte) ([]byte, []byte) {
	start := bytes.Index(buf, jpegStart)
	if start < 0 {
		// Keep a trailing 0xFF that may start a marker
		if n := len(buf); n > 0 && buf[n-1] == 0xFF {
			return nil, buf[n-1:]
		}
		return nil, buf[:0]
	}

	end := bytes.Index(buf[start+2:], jpegEnd)
	if end < 0 {
		return nil, buf[start:]
	}
	end += start + 2 + len(jpegEnd)

	frame := make([]byte, end-start)
	copy(frame, buf[start:end])
	return frame, buf[end:]
}

var _ FrameProvider = (*FFmpegFrameProvider)(nil)
