package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultRetryInterval = 2 * time.Second

// SessionConfig wires a session to its collaborators
type SessionConfig struct {
	CameraID      string
	Topology      Topology
	Loader        DetectorLoader
	Source        VideoSource
	Canvas        Canvas
	Sink          SampleSink // Optional, nil disables persistence
	Scheduler     Scheduler
	Bus           *EventBus // Optional
	HistorySize   int
	RetryInterval time.Duration
	Clock         func() time.Time
	Logger        *logrus.Entry
}

// runner is implemented by schedulers that need a goroutine of their own
type runner interface {
	Run(ctx context.Context)
}

// Session is one mounted tracking surface: state machine, history window and detector handle
type Session struct {
	id        string
	cameraID  string
	extractor SampleExtractor
	loader    DetectorLoader
	source    VideoSource
	canvas    Canvas
	sink      SampleSink
	scheduler Scheduler
	bus       *EventBus
	retry     time.Duration
	clock     func() time.Time
	log       *logrus.Entry

	state     *StateMachine
	mountedAt time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	detector Detector
	history  History
	lastTS   int64
	closed   bool
	mu       sync.RWMutex

	// cycleMu is held while a cycle does its work so Close can wait for it
	cycleMu  sync.Mutex
	cycleSeq atomic.Uint64

	stats       LoopStats
	fpsStart    time.Time
	fpsCount    int
	inferenceN  uint64
	inferenceMs float64
	statsMu     sync.RWMutex
}

// NewSession creates an idle, unmounted session
func NewSession(cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	id := uuid.NewString()

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		log = logrus.NewEntry(l)
	}
	log = log.WithFields(logrus.Fields{"camera_id": cfg.CameraID, "session_id": id})

	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:        id,
		cameraID:  cfg.CameraID,
		extractor: NewSampleExtractor(cfg.Topology),
		loader:    cfg.Loader,
		source:    cfg.Source,
		canvas:    cfg.Canvas,
		sink:      cfg.Sink,
		scheduler: cfg.Scheduler,
		bus:       cfg.Bus,
		retry:     retry,
		clock:     clock,
		log:       log,
		state:     NewStateMachine(),
		ctx:       ctx,
		cancel:    cancel,
		history:   NewHistory(cfg.HistorySize),
		stats:     LoopStats{CameraID: cfg.CameraID},
	}
}

// Mount starts the scheduler and the asynchronous detector load
// The session context is derived from parent, cancelling parent unmounts the session.
func (s *Session) Mount(parent context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(parent)
	s.mountedAt = s.clock()
	ctx := s.ctx
	s.mu.Unlock()

	if r, ok := s.scheduler.(runner); ok {
		go r.Run(ctx)
	}
	if s.loader != nil {
		go s.loadDetector(ctx)
	}

	s.log.WithField("topology", s.extractor.Topology().Name).Info("session mounted")
}

func (s *Session) loadDetector(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.statsMu.Lock()
		s.stats.DetectorLoadTries++
		s.statsMu.Unlock()

		detector, err := s.loader.Load(ctx)
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				detector.Close()
				return
			}
			s.detector = detector
			s.mu.Unlock()

			s.log.WithFields(logrus.Fields{"detector": detector.Name(), "attempt": attempt}).Info("detector loaded")
			s.publish(&Event{Kind: EventState, State: s.state.State()})
			return
		}

		if ctx.Err() != nil {
			return
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"loader":  s.loader.Name(),
			"attempt": attempt,
			"retry":   s.retry.String(),
		}).Warn("detector load failed")
		timer.Reset(s.retry)
	}
}

// Start is the user start command
// It is a no-op returning false while the detector is loading or the session is already active.
func (s *Session) Start() bool {
	changed, schedule := s.state.Start(s.DetectorReady())
	if !changed {
		s.log.WithFields(logrus.Fields{
			"state":          s.state.State().String(),
			"detector_ready": s.DetectorReady(),
		}).Debug("start ignored")
		return false
	}

	s.log.Info("tracking started")
	s.publish(&Event{Kind: EventState, State: StateActive})

	if schedule {
		s.scheduler.RequestFrame(s.cycle)
	}
	return true
}

// Stop is the user stop command
// A cycle already in flight completes its work, then no further cycle is scheduled.
func (s *Session) Stop() bool {
	if !s.state.Stop() {
		s.log.Debug("stop ignored, session idle")
		return false
	}

	s.log.Info("tracking stopped")
	s.publish(&Event{Kind: EventState, State: StateIdle})
	return true
}

// Close unmounts the session: stops tracking, cancels the detector load and
// in-flight calls, waits for the running cycle and releases the detector
func (s *Session) Close() {
	s.state.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.cycleMu.Lock()
	s.mu.Lock()
	detector := s.detector
	s.detector = nil
	s.mu.Unlock()
	s.cycleMu.Unlock()

	if detector != nil {
		if err := detector.Close(); err != nil {
			s.log.WithError(err).Warn("failed to close detector")
		}
	}

	s.log.Info("session unmounted")
}

func (s *Session) ID() string { return s.id }

func (s *Session) CameraID() string { return s.cameraID }

// State returns the tracking state
func (s *Session) State() TrackingState {
	return s.state.State()
}

// Tracking reports whether the session is Active
func (s *Session) Tracking() bool {
	return s.state.State() == StateActive
}

// Activations returns the number of successful start commands
func (s *Session) Activations() uint64 {
	return s.state.Activations()
}

// DetectorReady reports whether the detector handle is loaded
func (s *Session) DetectorReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detector != nil
}

// History returns the current window, oldest first
func (s *Session) History() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Samples()
}

// Stats returns a copy of the loop statistics
func (s *Session) Stats() LoopStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// Status returns a snapshot of the session
func (s *Session) Status() Status {
	state := s.state.State()

	s.mu.RLock()
	detectorName := ""
	if s.detector != nil {
		detectorName = s.detector.Name()
	}
	st := Status{
		CameraID:      s.cameraID,
		SessionID:     s.id,
		State:         state,
		Tracking:      state == StateActive,
		DetectorReady: s.detector != nil,
		Detector:      detectorName,
		Topology:      s.extractor.Topology().Name,
		HistoryLen:    s.history.Len(),
		MountedAt:     s.mountedAt,
	}
	s.mu.RUnlock()

	st.Stats = s.Stats()
	return st
}

func (s *Session) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Session) currentDetector() Detector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detector
}

func (s *Session) appendHistory(sample Sample) History {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history.Append(sample)
	return s.history
}

// nextTimestamp reads the clock and clamps it so timestamps never go backwards within the session
func (s *Session) nextTimestamp() int64 {
	ts := s.clock().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if ts < s.lastTS {
		ts = s.lastTS
	}
	s.lastTS = ts
	return ts
}

func (s *Session) publish(event *Event) {
	if s.bus == nil {
		return
	}
	event.CameraID = s.cameraID
	event.SessionID = s.id
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	s.bus.Publish(event)
}
