package ws

import (
	"errors"

	"github.com/sirupsen/logrus"

	"facetrack/internal/pipeline"
)

// SessionLookup finds the mounted session of a camera
type SessionLookup interface {
	Session(cameraID string) (*pipeline.Session, error)
}

// Bridge turns pipeline events into websocket messages
// Every appended sample re-projects the full window into a chart message.
type Bridge struct {
	hub      *TrackingHub
	sessions SessionLookup
	log      *logrus.Entry
}

// NewBridge creates a bridge, subscribe it to the event bus with OnEvent
func NewBridge(hub *TrackingHub, sessions SessionLookup, log *logrus.Entry) *Bridge {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bridge{hub: hub, sessions: sessions, log: log}
}

// OnEvent implements pipeline.EventHandler
func (b *Bridge) OnEvent(e *pipeline.Event) {
	if e == nil || !b.hub.HasClients(e.CameraID) {
		return
	}

	// Events of a session replaced by a remount are stale
	s, err := b.sessions.Session(e.CameraID)
	if err != nil || s.ID() != e.SessionID {
		return
	}

	switch e.Kind {
	case pipeline.EventState:
		st := s.Status()
		st.State = e.State
		st.Tracking = e.State == pipeline.StateActive
		b.hub.Broadcast(e.CameraID, NewStateMessage(st, e.Timestamp))

	case pipeline.EventCycle:
		switch {
		case e.Sample != nil:
			b.hub.Broadcast(e.CameraID, &SampleMessage{
				Type:        TypeSample,
				CameraID:    e.CameraID,
				Cycle:       e.Cycle,
				FrameSeq:    e.FrameSeq,
				Sample:      *e.Sample,
				HistoryLen:  len(e.History),
				Faces:       e.Faces,
				Points:      e.Points,
				InferenceMs: e.InferenceMs,
			})
			b.hub.Broadcast(e.CameraID, NewChartMessage(e.CameraID, e.History))
		case e.Outcome == pipeline.OutcomeExtractError && e.Err != nil:
			b.hub.Broadcast(e.CameraID, &ErrorMessage{
				Type:     TypeError,
				CameraID: e.CameraID,
				Cycle:    e.Cycle,
				Outcome:  string(e.Outcome),
				Error:    e.Err.Error(),
			})
		}
	}
}

// Snapshot implements Snapshotter with the current state and chart of a camera
func (b *Bridge) Snapshot(cameraID string) []any {
	s, err := b.sessions.Session(cameraID)
	if err != nil {
		if !errors.Is(err, pipeline.ErrNotMounted) {
			b.log.WithError(err).WithField("camera_id", cameraID).Warn("snapshot lookup failed")
		}
		return nil
	}

	st := s.Status()
	return []any{
		NewStateMessage(st, st.MountedAt),
		NewChartMessage(cameraID, s.History()),
	}
}

var (
	_ pipeline.EventHandler = (*Bridge)(nil)
	_ Snapshotter           = (*Bridge)(nil)
)
