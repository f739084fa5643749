package pipeline

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// FrameDistributor distributes frames from a FrameProvider to consumers
// Each consumer gets its own subscription and forwarding goroutine.
type FrameDistributor struct {
	frameProvider FrameProvider
	subscriptions map[string][]*distributorSubscription
	log           *logrus.Entry
	mu            sync.RWMutex
}

type distributorSubscription struct {
	consumer FrameConsumer
	sub      *FrameSubscription
}

// NewFrameDistributor creates a new frame distributor
func NewFrameDistributor(frameProvider FrameProvider, log *logrus.Entry) *FrameDistributor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FrameDistributor{
		frameProvider: frameProvider,
		subscriptions: make(map[string][]*distributorSubscription),
		log:           log,
	}
}

// Subscribe registers a consumer to receive frames for a camera
func (d *FrameDistributor) Subscribe(cameraID string, consumer FrameConsumer) error {
	sub, err := d.frameProvider.Subscribe(cameraID, 5)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.subscriptions[cameraID] = append(d.subscriptions[cameraID], &distributorSubscription{consumer: consumer, sub: sub})
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.Done:
				return
			case frame := <-sub.Channel:
				if frame != nil {
					consumer.OnFrame(frame)
				}
			}
		}
	}()

	d.log.WithField("camera_id", cameraID).Debug("frame consumer subscribed")
	return nil
}

// Unsubscribe removes a consumer from receiving frames
func (d *FrameDistributor) Unsubscribe(cameraID string, consumer FrameConsumer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subscriptions[cameraID]
	for i, ds := range subs {
		if ds.consumer == consumer {
			d.frameProvider.Unsubscribe(ds.sub)
			d.subscriptions[cameraID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// UnsubscribeAll removes all consumers for a camera
func (d *FrameDistributor) UnsubscribeAll(cameraID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ds := range d.subscriptions[cameraID] {
		d.frameProvider.Unsubscribe(ds.sub)
	}
	delete(d.subscriptions, cameraID)
}

// StreamConsumer forwards raw frames to a stream provider while passthrough reports true
// It keeps the live stream moving while no tracking session draws composites.
type StreamConsumer struct {
	cameraID    string
	provider    StreamOverlayProvider
	passthrough func() bool
}

// NewStreamConsumer creates a consumer that forwards raw frames; a nil passthrough always forwards
func NewStreamConsumer(cameraID string, provider StreamOverlayProvider, passthrough func() bool) *StreamConsumer {
	return &StreamConsumer{
		cameraID:    cameraID,
		provider:    provider,
		passthrough: passthrough,
	}
}

// OnFrame implements FrameConsumer
func (c *StreamConsumer) OnFrame(frame *FrameData) {
	if c.provider == nil || frame == nil {
		return
	}
	if c.passthrough != nil && !c.passthrough() {
		return
	}
	c.provider.SetAnnotatedFrame(c.cameraID, frame.Seq, frame.Data)
}

var _ FrameConsumer = (*StreamConsumer)(nil)
