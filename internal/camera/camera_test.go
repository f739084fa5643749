package camera

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetrack/internal/logger"
	"facetrack/internal/pipeline"
)

type fakeProvider struct {
	running bool
	sub     *pipeline.FrameSubscription
	stopped bool
}

func (p *fakeProvider) Start(string, string, int, int, int) error {
	p.running = true
	return nil
}

func (p *fakeProvider) Stop(string) error {
	p.stopped = true
	p.running = false
	return nil
}

func (p *fakeProvider) Subscribe(cameraID string, bufferSize int) (*pipeline.FrameSubscription, error) {
	p.sub = &pipeline.FrameSubscription{
		CameraID: cameraID,
		Channel:  make(chan *pipeline.FrameData, bufferSize),
		Done:     make(chan struct{}),
	}
	return p.sub, nil
}

func (p *fakeProvider) Unsubscribe(sub *pipeline.FrameSubscription) {
	close(sub.Done)
}

func (p *fakeProvider) IsRunning(string) bool { return p.running }

func (p *fakeProvider) GetStats(string) *pipeline.CaptureStats { return nil }

type countingConsumer struct {
	frames chan uint64
}

func (c *countingConsumer) OnFrame(f *pipeline.FrameData) { c.frames <- f.Seq }

func TestSourceBecomesReadyOnFirstFrame(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	cam := Camera{ID: "cam", Device: "http://camera.local/video", Width: 640, Height: 480, FPS: 30}
	src := NewSource(cam, provider, logger.Discard())

	assert.False(t, src.Ready())
	assert.Nil(t, src.CurrentFrame())

	listener := &countingConsumer{frames: make(chan uint64, 1)}
	src.AddListener(listener)
	require.NoError(t, src.Open())
	assert.True(t, provider.running)
	assert.Error(t, src.Open())

	provider.sub.Channel <- &pipeline.FrameData{CameraID: "cam", Seq: 7, Data: []byte{0xFF, 0xD8}}

	require.Eventually(t, src.Ready, time.Second, time.Millisecond)
	frame := src.CurrentFrame()
	require.NotNil(t, frame)
	assert.Equal(t, uint64(7), frame.Seq)
	assert.Equal(t, 640, frame.Width)
	assert.Equal(t, 480, frame.Height)
	assert.Equal(t, uint64(7), <-listener.frames)

	require.NoError(t, src.Close())
	assert.True(t, provider.stopped)
	assert.False(t, src.Ready())
}

func TestSourceRejectsMissingDevice(t *testing.T) {
	t.Parallel()

	src := NewSource(Camera{ID: "cam", Device: "/dev/does-not-exist-42"}, &fakeProvider{}, logger.Discard())
	assert.Error(t, src.Open())
}
