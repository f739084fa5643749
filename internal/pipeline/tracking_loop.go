package pipeline

import (
	"time"

	"github.com/sirupsen/logrus"
)

// cycle is one self-rescheduling step of the tracking loop
// The state is checked at entry and again after the work; only an Active
// session enqueues the next step.
func (s *Session) cycle(_ time.Time) {
	if !s.state.Continue() {
		s.log.Debug("cycle chain ended at entry")
		return
	}

	s.cycleMu.Lock()
	s.runCycle()
	s.cycleMu.Unlock()

	if !s.state.Continue() {
		s.log.Debug("cycle chain ended after work")
		return
	}
	s.scheduler.RequestFrame(s.cycle)
}

// runCycle does one frame of work: detect, extract, persist, buffer, draw
func (s *Session) runCycle() {
	seq := s.cycleSeq.Add(1)
	s.updateStats(func(st *LoopStats) { st.Cycles++ })

	var frame *FrameData
	if s.source != nil && s.source.Ready() {
		frame = s.source.CurrentFrame()
	}
	detector := s.currentDetector()
	if frame == nil || s.canvas == nil || !s.canvas.Ready() || detector == nil {
		s.updateStats(func(st *LoopStats) { st.SkippedCycles++ })
		s.publish(&Event{Kind: EventCycle, Cycle: seq, Outcome: OutcomeSkipped})
		return
	}

	ctx := s.context()
	started := time.Now()
	result, err := detector.Detect(ctx, frame)
	inferenceMs := float32(time.Since(started).Microseconds()) / 1000
	if result != nil && result.InferenceMs > 0 {
		inferenceMs = result.InferenceMs
	}

	if err != nil {
		s.log.WithError(err).WithField("frame_seq", frame.Seq).Warn("detection failed")
		s.updateStats(func(st *LoopStats) { st.DetectErrors++ })
		s.present(frame)
		s.publish(&Event{Kind: EventCycle, Cycle: seq, FrameSeq: frame.Seq, Outcome: OutcomeDetectError, Err: err})
		return
	}
	s.recordInference(inferenceMs)

	var faces []Face
	if result != nil {
		faces = result.Faces
	}

	sample, err := s.extractor.Extract(s.nextTimestamp(), faces)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"frame_seq": frame.Seq,
			"points":    len(faces[0]),
			"topology":  s.extractor.Topology().Name,
		}).Error("landmark extraction failed")
		s.updateStats(func(st *LoopStats) { st.ExtractFailures++ })
		s.present(frame)
		s.publish(&Event{
			Kind:        EventCycle,
			Cycle:       seq,
			FrameSeq:    frame.Seq,
			Outcome:     OutcomeExtractError,
			Faces:       len(faces),
			Points:      result.PointCount(),
			InferenceMs: inferenceMs,
			Err:         err,
		})
		return
	}

	if sample == nil {
		s.updateStats(func(st *LoopStats) { st.EmptyFrames++ })
		s.present(frame)
		s.publish(&Event{Kind: EventCycle, Cycle: seq, FrameSeq: frame.Seq, Outcome: OutcomeNoFace, InferenceMs: inferenceMs})
		return
	}

	if s.sink != nil {
		row := SampleRow{SessionID: s.id, CameraID: s.cameraID, Sample: *sample}
		if err := s.sink.Submit(ctx, row); err != nil {
			s.log.WithError(err).WithField("timestamp", sample.Timestamp).Warn("failed to submit sample")
			s.updateStats(func(st *LoopStats) { st.PersistFailures++ })
		}
	}

	history := s.appendHistory(*sample)

	if err := s.redraw(frame, faces); err != nil {
		s.log.WithError(err).WithField("frame_seq", frame.Seq).Warn("failed to commit overlay")
		s.updateStats(func(st *LoopStats) { st.DrawFailures++ })
	}

	s.recordSample(sample.Timestamp)
	s.publish(&Event{
		Kind:        EventCycle,
		Cycle:       seq,
		FrameSeq:    frame.Seq,
		Outcome:     OutcomeSample,
		Sample:      sample,
		History:     history.Samples(),
		Faces:       len(faces),
		Points:      result.PointCount(),
		InferenceMs: inferenceMs,
	})
}

// redraw clears the surface and paints a marker for every detected point of every face
func (s *Session) redraw(frame *FrameData, faces []Face) error {
	s.canvas.Clear()
	for _, face := range faces {
		for _, p := range face {
			if len(p) < 2 {
				continue
			}
			s.canvas.FillMarker(p[0], p[1])
		}
	}
	return s.canvas.Commit(frame)
}

// present shows the frame under the unchanged surface, used when a cycle draws nothing new
func (s *Session) present(frame *FrameData) {
	if err := s.canvas.Commit(frame); err != nil {
		s.log.WithError(err).WithField("frame_seq", frame.Seq).Debug("failed to present frame")
	}
}

func (s *Session) updateStats(fn func(st *LoopStats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

func (s *Session) recordInference(ms float32) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.inferenceN++
	s.inferenceMs += (float64(ms) - s.inferenceMs) / float64(s.inferenceN)
	s.stats.AvgInferenceMs = float32(s.inferenceMs)
}

// recordSample updates counters and the samples-per-second rate, measured over one second windows
func (s *Session) recordSample(timestamp int64) {
	now := s.clock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.Samples++
	s.stats.LastSampleTime = timestamp

	if s.fpsStart.IsZero() {
		s.fpsStart = now
	}
	s.fpsCount++
	if elapsed := now.Sub(s.fpsStart); elapsed >= time.Second {
		s.stats.SamplesPerSecond = float64(s.fpsCount) / elapsed.Seconds()
		s.fpsStart = now
		s.fpsCount = 0
	}
}
