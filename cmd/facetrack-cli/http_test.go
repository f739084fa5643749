package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"facetrack/internal/services"
)

func TestParseEndpoint(t *testing.T) {
	t.Parallel()

	var (
		mu                          sync.Mutex
		gotMethod, gotPath, gotQuery string
	)
	last := func() (string, string, string) {
		mu.Lock()
		defer mu.Unlock()
		return gotMethod, gotPath, gotQuery
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotMethod, gotPath, gotQuery = r.Method, r.URL.Path, r.URL.RawQuery
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/cameras/cam0/tracking/start":
			w.Write([]byte(`{"camera_id":"cam0","state":"active","changed":true}`))
		case "/api/v1/samples":
			w.Write([]byte(`{"rows":[],"count":0}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"name":"not_found","id":"x1","message":"camera not mounted: nope","temporary":false,"timeout":false,"fault":false}`))
		}
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	endpoint, payload, err := parseEndpoint(u.Scheme, u.Host, srv.Client(), goahttp.ResponseDecoder, false, []string{"start", "cam0"})
	require.NoError(t, err)
	res, err := endpoint(t.Context(), payload)
	require.NoError(t, err)
	method, _, _ := last()
	assert.Equal(t, http.MethodPost, method)
	st, ok := res.(*services.TrackingStatus)
	require.True(t, ok)
	assert.Equal(t, "active", st.State)
	require.NotNil(t, st.Changed)
	assert.True(t, *st.Changed)

	endpoint, payload, err = parseEndpoint(u.Scheme, u.Host, srv.Client(), goahttp.ResponseDecoder, false, []string{"samples", "camera=cam0", "limit=5"})
	require.NoError(t, err)
	_, err = endpoint(t.Context(), payload)
	require.NoError(t, err)
	_, path, query := last()
	assert.Equal(t, "/api/v1/samples", path)
	assert.Equal(t, "camera_id=cam0&limit=5", query)

	endpoint, payload, err = parseEndpoint(u.Scheme, u.Host, srv.Client(), goahttp.ResponseDecoder, false, []string{"status", "nope"})
	require.NoError(t, err)
	_, err = endpoint(t.Context(), payload)
	var serr *goa.ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "not_found", serr.Name)
}

func TestParseEndpointRejects(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		nil,
		{"teleport"},
		{"start"},
		{"samples", "limit"},
		{"samples", "color=red"},
		{"samples", "since=yesterday"},
	}
	for _, args := range cases {
		_, _, err := parseEndpoint("http", "localhost:8080", http.DefaultClient, goahttp.ResponseDecoder, false, args)
		assert.Error(t, err, args)
	}
}

func TestUsageListsEveryCommand(t *testing.T) {
	t.Parallel()

	usage := httpUsageCommands()
	for name := range commands {
		assert.Contains(t, usage, name)
	}
}
