package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"facetrack/internal/logger"
)

// MountPoint holds information about a mounted endpoint
type MountPoint struct {
	// Method is the name of the service method served by the mounted HTTP handler
	Method string
	// Verb is the HTTP method used to match requests to the mounted handler
	Verb string
	// Pattern is the HTTP request path pattern used to match requests
	Pattern string
}

// Server lists the HTTP handlers of the service endpoints
type Server struct {
	Mounts []*MountPoint

	tracking *TrackingImplementation
	samples  *SamplesImplementation
	health   *HealthImplementation
	system   *SystemImplementation

	mux     goahttp.Muxer
	encoder func(context.Context, http.ResponseWriter) goahttp.Encoder
	log     *logrus.Entry
}

// endpoint decodes a request and calls a service method
type endpoint func(ctx context.Context, r *http.Request) (any, error)

// NewServer instantiates the HTTP handlers, call Mount to register them on mux
func NewServer(
	tracking *TrackingImplementation,
	samples *SamplesImplementation,
	health *HealthImplementation,
	system *SystemImplementation,
	mux goahttp.Muxer,
	encoder func(context.Context, http.ResponseWriter) goahttp.Encoder,
	log *logrus.Entry,
) *Server {
	if encoder == nil {
		encoder = goahttp.ResponseEncoder
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		tracking: tracking,
		samples:  samples,
		health:   health,
		system:   system,
		mux:      mux,
		encoder:  encoder,
		log:      log,
	}
}

// Mount configures the mux to serve the service endpoints
func (s *Server) Mount() {
	s.handleJSON("health", "healthz", "GET", "/healthz", func(ctx context.Context, _ *http.Request) (any, error) {
		return s.health.Healthz(ctx)
	})
	s.handleJSON("health", "readyz", "GET", "/readyz", func(ctx context.Context, _ *http.Request) (any, error) {
		return s.health.Readyz(ctx)
	})
	s.handleJSON("system", "status", "GET", "/api/v1/system/status", func(ctx context.Context, _ *http.Request) (any, error) {
		return s.system.Status(ctx)
	})

	s.handleJSON("tracking", "status", "GET", "/api/v1/cameras/{camera_id}/tracking", func(ctx context.Context, r *http.Request) (any, error) {
		return s.tracking.Status(ctx, s.cameraPayload(r))
	})
	s.handleJSON("tracking", "start", "POST", "/api/v1/cameras/{camera_id}/tracking/start", func(ctx context.Context, r *http.Request) (any, error) {
		return s.tracking.Start(ctx, s.cameraPayload(r))
	})
	s.handleJSON("tracking", "stop", "POST", "/api/v1/cameras/{camera_id}/tracking/stop", func(ctx context.Context, r *http.Request) (any, error) {
		return s.tracking.Stop(ctx, s.cameraPayload(r))
	})
	s.handleJSON("tracking", "remount", "POST", "/api/v1/cameras/{camera_id}/remount", func(ctx context.Context, r *http.Request) (any, error) {
		return s.tracking.Remount(ctx, s.cameraPayload(r))
	})
	s.handleJSON("tracking", "history", "GET", "/api/v1/cameras/{camera_id}/history", func(ctx context.Context, r *http.Request) (any, error) {
		return s.tracking.History(ctx, s.cameraPayload(r))
	})
	s.handleJSON("tracking", "chart", "GET", "/api/v1/cameras/{camera_id}/chart", func(ctx context.Context, r *http.Request) (any, error) {
		return s.tracking.Chart(ctx, s.cameraPayload(r))
	})
	s.handleBytes("tracking", "chart_html", "GET", "/api/v1/cameras/{camera_id}/chart.html", "text/html; charset=utf-8", func(ctx context.Context, r *http.Request) ([]byte, error) {
		return s.tracking.ChartHTML(ctx, s.cameraPayload(r))
	})
	s.handleBytes("tracking", "chart_png", "GET", "/api/v1/cameras/{camera_id}/chart.png", "image/png", func(ctx context.Context, r *http.Request) ([]byte, error) {
		return s.tracking.ChartPNG(ctx, s.cameraPayload(r))
	})

	s.handleJSON("samples", "list", "GET", "/api/v1/samples", func(ctx context.Context, r *http.Request) (any, error) {
		p, err := decodeSamplesPayload(r)
		if err != nil {
			return nil, err
		}
		return s.samples.List(ctx, p)
	})
}

func (s *Server) cameraPayload(r *http.Request) *CameraPayload {
	return &CameraPayload{CameraID: s.mux.Vars(r)["camera_id"]}
}

func decodeSamplesPayload(r *http.Request) (*SamplesPayload, error) {
	q := r.URL.Query()
	p := &SamplesPayload{
		CameraID:  q.Get("camera_id"),
		SessionID: q.Get("session_id"),
	}
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, MakeBadRequest(fmt.Errorf("invalid since %q", v))
		}
		p.Since = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, MakeBadRequest(fmt.Errorf("invalid limit %q", v))
		}
		p.Limit = n
	}
	return p, nil
}

func (s *Server) mount(service, method, verb, pattern string, h http.HandlerFunc) {
	s.mux.Handle(verb, pattern, h)
	s.Mounts = append(s.Mounts, &MountPoint{Method: service + "." + method, Verb: verb, Pattern: pattern})
}

func (s *Server) handleJSON(service, method, verb, pattern string, e endpoint) {
	s.mount(service, method, verb, pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := s.requestContext(r, service, method)

		res, err := e(ctx, r)
		if err != nil {
			s.encodeError(ctx, w, err)
			return
		}
		enc := s.encoder(ctx, w)
		w.WriteHeader(http.StatusOK)
		if err := enc.Encode(res); err != nil {
			s.errorHandler(ctx, err)
		}
	})
}

func (s *Server) handleBytes(service, method, verb, pattern, contentType string, e func(context.Context, *http.Request) ([]byte, error)) {
	s.mount(service, method, verb, pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := s.requestContext(r, service, method)

		body, err := e(ctx, r)
		if err != nil {
			s.encodeError(ctx, w, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			s.errorHandler(ctx, err)
		}
	})
}

func (s *Server) requestContext(r *http.Request, service, method string) context.Context {
	ctx := r.Context()
	ctx = context.WithValue(ctx, goahttp.AcceptTypeKey, r.Header.Get("Accept"))
	ctx = context.WithValue(ctx, goa.MethodKey, method)
	ctx = context.WithValue(ctx, goa.ServiceKey, service)
	return ctx
}

// encodeError writes err as an ErrorBody with the status code of its name
func (s *Server) encodeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.WithRequestID(ctx, s.log).WithError(err).Error("request failed")
	}
	enc := s.encoder(ctx, w)
	w.Header().Set("goa-error", body.Name)
	w.WriteHeader(status)
	if err := enc.Encode(body); err != nil {
		s.errorHandler(ctx, err)
	}
}

// errorHandler logs response encoding failures with the request id
func (s *Server) errorHandler(ctx context.Context, err error) {
	logger.WithRequestID(ctx, s.log).WithError(err).Error("failed to encode response")
}
