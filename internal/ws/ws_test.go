package ws

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetrack/internal/logger"
	"facetrack/internal/pipeline"
	"facetrack/internal/pipeline/refresh"
)

type wsFixture struct {
	manager *pipeline.Manager
	session *pipeline.Session
	hub     *TrackingHub
	server  *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	factory := func(string) (pipeline.SessionConfig, error) {
		return pipeline.SessionConfig{
			Topology:  pipeline.MediaPipeFaceMesh,
			Scheduler: refresh.NewManual(time.Now(), time.Millisecond),
			Logger:    logger.Discard(),
		}, nil
	}
	m := pipeline.NewManager(t.Context(), factory, nil, logger.Discard())
	t.Cleanup(m.Close)

	s, err := m.Mount("cam0")
	require.NoError(t, err)

	hub := NewTrackingHub(logger.Discard())
	bridge := NewBridge(hub, m, logger.Discard())
	unsubscribe := m.Bus().Subscribe(bridge)
	t.Cleanup(unsubscribe)

	srv := httptest.NewServer(NewHandler(hub, bridge, logger.Discard()))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return &wsFixture{manager: m, session: s, hub: hub, server: srv}
}

func (f *wsFixture) dial(t *testing.T, cameraID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + PathPrefix + cameraID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandlerSendsSnapshotOnConnect(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	conn := f.dial(t, "cam0")

	state := readMessage(t, conn)
	assert.Equal(t, TypeState, state["type"])
	assert.Equal(t, "idle", state["state"])
	assert.Equal(t, false, state["detector_ready"])
	assert.Equal(t, f.session.ID(), state["session_id"])

	chartMsg := readMessage(t, conn)
	assert.Equal(t, TypeChart, chartMsg["type"])
	data := chartMsg["chart"].(map[string]any)
	assert.Empty(t, data["labels"])
	assert.Len(t, data["datasets"], 2)

	assert.Equal(t, []string{"cam0"}, f.hub.Cameras())
}

func TestBridgeStreamsSamplesAndCharts(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	conn := f.dial(t, "cam0")
	readMessage(t, conn)
	readMessage(t, conn)

	bus := f.manager.Bus()
	sample := pipeline.Sample{Timestamp: 1000, NoseX: 320, NoseY: 240, LeftEyeX: 300, LeftEyeY: 220, RightEyeX: 340, RightEyeY: 220}

	// Stale session, dropped
	bus.Publish(&pipeline.Event{Kind: pipeline.EventCycle, CameraID: "cam0", SessionID: "old", Sample: &sample})

	bus.Publish(&pipeline.Event{
		Kind:      pipeline.EventCycle,
		CameraID:  "cam0",
		SessionID: f.session.ID(),
		Cycle:     3,
		Outcome:   pipeline.OutcomeSample,
		Sample:    &sample,
		History:   []pipeline.Sample{sample, sample},
		Faces:     1,
		Points:    478,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, TypeSample, msg["type"])
	assert.EqualValues(t, 3, msg["cycle"])
	assert.EqualValues(t, 2, msg["history_len"])
	assert.EqualValues(t, 478, msg["points"])
	assert.EqualValues(t, 320, msg["sample"].(map[string]any)["nose_x"])

	msg = readMessage(t, conn)
	assert.Equal(t, TypeChart, msg["type"])
	data := msg["chart"].(map[string]any)
	assert.Equal(t, []any{"0", "1"}, data["labels"])
	datasets := data["datasets"].([]any)
	require.Len(t, datasets, 2)
	assert.Equal(t, []any{320.0, 320.0}, datasets[0].(map[string]any)["data"])
	assert.Equal(t, []any{240.0, 240.0}, datasets[1].(map[string]any)["data"])

	bus.Publish(&pipeline.Event{
		Kind:      pipeline.EventCycle,
		CameraID:  "cam0",
		SessionID: f.session.ID(),
		Cycle:     4,
		Outcome:   pipeline.OutcomeExtractError,
		Err:       fmt.Errorf("nose: %w", pipeline.ErrTopologyMismatch),
	})
	msg = readMessage(t, conn)
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, string(pipeline.OutcomeExtractError), msg["outcome"])
	assert.Contains(t, msg["error"], "nose")

	bus.Publish(&pipeline.Event{Kind: pipeline.EventState, CameraID: "cam0", SessionID: f.session.ID(), State: pipeline.StateActive})
	msg = readMessage(t, conn)
	assert.Equal(t, TypeState, msg["type"])
	assert.Equal(t, "active", msg["state"])
	assert.Equal(t, true, msg["tracking"])
}

func TestHandlerRejectsMissingCamera(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + PathPrefix
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestHubDropsClientOnDisconnect(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	conn := f.dial(t, "unknown")
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, f.hub.HasClients("unknown"))
}

func TestSnapshotUnknownCamera(t *testing.T) {
	t.Parallel()

	f := newWSFixture(t)
	bridge := NewBridge(f.hub, f.manager, logger.Discard())
	assert.Nil(t, bridge.Snapshot("missing"))

	_, err := f.manager.Session("missing")
	assert.True(t, errors.Is(err, pipeline.ErrNotMounted))
}
