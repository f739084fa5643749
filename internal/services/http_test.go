package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goahttp "goa.design/goa/v3/http"

	"facetrack/internal/database"
	"facetrack/internal/logger"
	"facetrack/internal/pipeline"
	"facetrack/internal/pipeline/refresh"
)

type fixture struct {
	server  *httptest.Server
	manager *pipeline.Manager
	db      *database.Database

	mu     sync.Mutex
	scheds map[string]*refresh.Manual
}

func newFixture(t *testing.T, checks map[string]Pinger) *fixture {
	t.Helper()

	f := &fixture{scheds: make(map[string]*refresh.Manual)}

	factory := func(cameraID string) (pipeline.SessionConfig, error) {
		sched := refresh.NewManual(time.UnixMilli(1_700_000_000_000), 33*time.Millisecond)
		f.mu.Lock()
		f.scheds[cameraID] = sched
		f.mu.Unlock()
		return pipeline.SessionConfig{
			Topology:  pipeline.MediaPipeFaceMesh,
			Loader:    readyLoader{det: &meshDetector{}},
			Source:    staticSource{},
			Canvas:    nopCanvas{},
			Scheduler: sched,
			Clock:     sched.Now,
		}, nil
	}
	f.manager = pipeline.NewManager(context.Background(), factory, nil, logger.Discard())
	t.Cleanup(f.manager.Close)
	_, err := f.manager.Mount("cam0")
	require.NoError(t, err)

	db, err := database.New(filepath.Join(t.TempDir(), "samples.db"), logger.Discard())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	f.db = db

	mux := goahttp.NewMuxer()
	srv := NewServer(
		NewTrackingService(f.manager, logger.Discard()),
		NewSamplesService(db),
		NewHealthService(checks),
		NewSystemService(f.manager, "sqlite", f.db, nil, nil),
		mux,
		goahttp.ResponseEncoder,
		logger.Discard(),
	)
	srv.Mount()
	require.NotEmpty(t, srv.Mounts)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) sched(cameraID string) *refresh.Manual {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scheds[cameraID]
}

func (f *fixture) waitReady(t *testing.T, cameraID string) {
	t.Helper()
	s, err := f.manager.Session(cameraID)
	require.NoError(t, err)
	require.Eventually(t, s.DetectorReady, time.Second, time.Millisecond)
}

func (f *fixture) do(t *testing.T, method, path string, out any) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, f.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, goahttp.ResponseDecoder(resp).Decode(out))
	}
	return resp
}

func TestTrackingStartStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.waitReady(t, "cam0")

	var st TrackingStatus
	resp := f.do(t, "GET", "/api/v1/cameras/cam0/tracking", &st)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", st.State)
	assert.True(t, st.DetectorReady)
	assert.Nil(t, st.Changed)

	st = TrackingStatus{}
	f.do(t, "POST", "/api/v1/cameras/cam0/tracking/start", &st)
	assert.Equal(t, "active", st.State)
	require.NotNil(t, st.Changed)
	assert.True(t, *st.Changed)

	st = TrackingStatus{}
	f.do(t, "POST", "/api/v1/cameras/cam0/tracking/start", &st)
	require.NotNil(t, st.Changed)
	assert.False(t, *st.Changed)

	sched := f.sched("cam0")
	for range 3 {
		sched.Step()
	}

	var hist HistoryResult
	f.do(t, "GET", "/api/v1/cameras/cam0/history", &hist)
	require.Len(t, hist.Samples, 3)
	assert.Equal(t, pipeline.HistoryCapacity, hist.Capacity)
	assert.Equal(t, 101.0, hist.Samples[0].NoseX)
	assert.Equal(t, 103.0, hist.Samples[2].NoseX)

	var ch ChartResult
	f.do(t, "GET", "/api/v1/cameras/cam0/chart", &ch)
	assert.Equal(t, []string{"0", "1", "2"}, ch.Chart.Labels)
	require.Len(t, ch.Chart.Datasets, 2)
	assert.Equal(t, []float64{201, 202, 203}, ch.Chart.Datasets[1].Data)
	assert.Equal(t, 3, ch.Summary.Count)

	st = TrackingStatus{}
	f.do(t, "POST", "/api/v1/cameras/cam0/tracking/stop", &st)
	assert.Equal(t, "idle", st.State)
	assert.True(t, *st.Changed)

	st = TrackingStatus{}
	f.do(t, "POST", "/api/v1/cameras/cam0/tracking/stop", &st)
	assert.False(t, *st.Changed)
	assert.Equal(t, 3, st.HistoryLen)

	st = TrackingStatus{}
	f.do(t, "POST", "/api/v1/cameras/cam0/remount", &st)
	assert.Equal(t, "idle", st.State)
	assert.Zero(t, st.HistoryLen)
}

func TestChartRenderings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	resp := f.do(t, "GET", "/api/v1/cameras/cam0/chart.png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = f.do(t, "GET", "/api/v1/cameras/cam0/chart.html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
}

func TestUnknownCamera(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	var body ErrorBody
	resp := f.do(t, "POST", "/api/v1/cameras/nope/tracking/start", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrNameNotFound, body.Name)
	assert.Contains(t, body.Message, "nope")
	assert.Equal(t, ErrNameNotFound, resp.Header.Get("goa-error"))
}

func TestSamplesEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	rows := []pipeline.SampleRow{
		{ID: "a", SessionID: "s", CameraID: "cam0", CreatedAt: time.UnixMilli(1000).UTC(), Sample: pipeline.Sample{Timestamp: 1000, NoseX: 1}},
		{ID: "b", SessionID: "s", CameraID: "cam0", CreatedAt: time.UnixMilli(2000).UTC(), Sample: pipeline.Sample{Timestamp: 2000, NoseX: 2}},
		{ID: "c", SessionID: "s", CameraID: "cam1", CreatedAt: time.UnixMilli(3000).UTC(), Sample: pipeline.Sample{Timestamp: 3000, NoseX: 3}},
	}
	require.NoError(t, f.db.InsertSamples(t.Context(), rows))

	var res SamplesResult
	resp := f.do(t, "GET", "/api/v1/samples?camera_id=cam0&limit=10", &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "b", res.Rows[0].ID)
	assert.Equal(t, "a", res.Rows[1].ID)

	res = SamplesResult{}
	f.do(t, "GET", "/api/v1/samples?since=2500", &res)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "c", res.Rows[0].ID)

	for _, q := range []string{"limit=abc", "limit=100000", "since=-1", "since=x"} {
		var body ErrorBody
		resp := f.do(t, "GET", "/api/v1/samples?"+q, &body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, ErrNameBadRequest, body.Name, q)
	}
}

func TestHealthAndSystem(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]Pinger{"store": pinger{}})
	var h HealthResult
	resp := f.do(t, "GET", "/readyz", &h)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", h.Checks["store"])

	resp = f.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var sys SystemStatus
	f.do(t, "GET", "/api/v1/system/status", &sys)
	assert.Equal(t, "sqlite", sys.Store)
	require.NotNil(t, sys.StoredSamples)
	assert.Zero(t, *sys.StoredSamples)
	require.Len(t, sys.Sessions, 1)
	assert.Equal(t, "cam0", sys.Sessions[0].CameraID)

	down := newFixture(t, map[string]Pinger{"store": pinger{err: errDown}})
	var body ErrorBody
	resp = down.do(t, "GET", "/readyz", &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, ErrNameUnavailable, body.Name)
	assert.True(t, body.Temporary)
}

func TestErrorResponseMapping(t *testing.T) {
	t.Parallel()

	status, body := errorResponse(pipeline.ErrAlreadyMounted)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, ErrNameConflict, body.Name)

	status, body = errorResponse(errDown)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.True(t, body.Fault)
}
