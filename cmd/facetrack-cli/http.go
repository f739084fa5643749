package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"facetrack/internal/services"
)

// command maps a CLI command onto one API route
type command struct {
	method   string
	path     string // %s is replaced by the camera id
	camera   bool
	usage    string
	response func() any
}

var commands = map[string]command{
	"status":  {method: http.MethodGet, path: "/api/v1/cameras/%s/tracking", camera: true, usage: "Show the tracking state of a camera", response: func() any { return &services.TrackingStatus{} }},
	"start":   {method: http.MethodPost, path: "/api/v1/cameras/%s/tracking/start", camera: true, usage: "Start tracking a camera", response: func() any { return &services.TrackingStatus{} }},
	"stop":    {method: http.MethodPost, path: "/api/v1/cameras/%s/tracking/stop", camera: true, usage: "Stop tracking a camera", response: func() any { return &services.TrackingStatus{} }},
	"remount": {method: http.MethodPost, path: "/api/v1/cameras/%s/remount", camera: true, usage: "Replace the tracking session of a camera", response: func() any { return &services.TrackingStatus{} }},
	"history": {method: http.MethodGet, path: "/api/v1/cameras/%s/history", camera: true, usage: "Show the recent sample window", response: func() any { return &services.HistoryResult{} }},
	"chart":   {method: http.MethodGet, path: "/api/v1/cameras/%s/chart", camera: true, usage: "Show the nose position chart series", response: func() any { return &services.ChartResult{} }},
	"samples": {method: http.MethodGet, path: "/api/v1/samples", usage: "List persisted samples (args: camera=ID session=ID since=MS limit=N)", response: func() any { return &services.SamplesResult{} }},
	"system":  {method: http.MethodGet, path: "/api/v1/system/status", usage: "Show the service status", response: func() any { return &services.SystemStatus{} }},
	"health":  {method: http.MethodGet, path: "/readyz", usage: "Check service readiness", response: func() any { return &services.HealthResult{} }},
}

// httpRequest is the payload handed to the endpoint built by doHTTP
type httpRequest struct {
	method string
	url    *url.URL
}

func doHTTP(scheme, host string, timeout int, debug bool) (goa.Endpoint, any, error) {
	var (
		doer goahttp.Doer
	)
	{
		doer = &http.Client{Timeout: time.Duration(timeout) * time.Second}
		if debug {
			doer = goahttp.NewDebugDoer(doer)
		}
	}

	return parseEndpoint(scheme, host, doer, goahttp.ResponseDecoder, debug, flag.Args())
}

func parseEndpoint(
	scheme, host string,
	doer goahttp.Doer,
	dec func(*http.Response) goahttp.Decoder,
	debug bool,
	args []string,
) (goa.Endpoint, any, error) {
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("missing command")
	}
	name, args := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown command %q", name)
	}

	path := cmd.path
	if cmd.camera {
		if len(args) == 0 || args[0] == "" {
			return nil, nil, fmt.Errorf("%s: missing camera id", name)
		}
		path = fmt.Sprintf(path, url.PathEscape(args[0]))
		args = args[1:]
	}

	u := &url.URL{Scheme: scheme, Host: host, Path: path}
	if len(args) > 0 {
		q, err := samplesQuery(args)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		u.RawQuery = q.Encode()
	}

	endpoint := func(ctx context.Context, v any) (any, error) {
		req := v.(*httpRequest)
		r, err := http.NewRequestWithContext(ctx, req.method, req.url.String(), nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "application/json")

		resp, err := doer.Do(r)
		if err != nil {
			return nil, goahttp.ErrRequestError("facetrack", name, err)
		}
		defer resp.Body.Close()
		if debug {
			fmt.Printf("%s %s -> %d\n", req.method, req.url, resp.StatusCode)
		}

		if resp.StatusCode >= http.StatusBadRequest {
			var body services.ErrorBody
			if err := dec(resp).Decode(&body); err != nil {
				return nil, goahttp.ErrDecodingError("facetrack", name, err)
			}
			return nil, &goa.ServiceError{
				Name:      body.Name,
				ID:        body.ID,
				Message:   body.Message,
				Temporary: body.Temporary,
				Timeout:   body.Timeout,
				Fault:     body.Fault,
			}
		}

		out := cmd.response()
		if err := dec(resp).Decode(out); err != nil {
			return nil, goahttp.ErrDecodingError("facetrack", name, err)
		}
		return out, nil
	}

	return endpoint, &httpRequest{method: cmd.method, url: u}, nil
}

// samplesQuery turns key=value arguments into a samples query string
func samplesQuery(args []string) (url.Values, error) {
	keys := map[string]string{"camera": "camera_id", "session": "session_id", "since": "since", "limit": "limit"}
	q := url.Values{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid argument %q, want key=value", arg)
		}
		param, known := keys[k]
		if !known {
			return nil, fmt.Errorf("unknown argument %q", k)
		}
		if param == "since" || param == "limit" {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("invalid %s %q", k, v)
			}
		}
		q.Set(param, v)
	}
	return q, nil
}

func httpUsageCommands() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		cmd := commands[name]
		use := name
		if cmd.camera {
			use += " CAMERA"
		}
		lines = append(lines, fmt.Sprintf("%-16s %s", use, cmd.usage))
	}
	return strings.Join(lines, "\n")
}

func httpUsageExamples() string {
	return strings.Join([]string{
		"facetrack-cli start cam0",
		"facetrack-cli chart cam0",
		"facetrack-cli samples camera=cam0 limit=10",
	}, "\n")
}
