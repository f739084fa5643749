package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"

	"facetrack/internal/logger"
	"facetrack/internal/services"
	"facetrack/internal/stream"
	"facetrack/internal/ws"
)

type httpDeps struct {
	tracking *services.TrackingImplementation
	samples  *services.SamplesImplementation
	health   *services.HealthImplementation
	system   *services.SystemImplementation
	ws       *ws.Handler
	streams  *stream.MJPEGStreamManager
}

// handleHTTPServer configures and starts a HTTP server on addr. It shuts down
// the server when ctx is cancelled.
func handleHTTPServer(ctx context.Context, addr string, deps httpDeps, wg *sync.WaitGroup, errc chan error, log *logrus.Entry, debug bool) {
	// Build the service HTTP request multiplexer and configure it to serve
	// HTTP requests to the service endpoints.
	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
	}

	server := services.NewServer(deps.tracking, deps.samples, deps.health, deps.system, mux, goahttp.ResponseEncoder, log)
	server.Mount()

	// Wrap the multiplexer with additional middlewares. Middlewares mounted
	// here apply to all the service endpoints.
	var api http.Handler = mux
	{
		if debug {
			api = httpmdlwr.Debug(mux, os.Stdout)(api)
		}
		api = httpmdlwr.Log(logger.NewGoaAdapter(log))(api)
		api = httpmdlwr.RequestID()(api)
	}

	// Long lived handlers stay outside the logging middleware, it wraps the
	// response writer and hides the flusher and hijacker they need.
	root := http.NewServeMux()
	root.Handle(ws.PathPrefix, deps.ws)
	root.Handle("/stream/", deps.streams)
	root.Handle("/snapshot/", stream.NewSnapshotHandler(deps.streams))
	root.Handle("/", api)

	srv := &http.Server{Addr: addr, Handler: root, ReadHeaderTimeout: time.Second * 60}
	for _, m := range server.Mounts {
		log.Infof("HTTP %q mounted on %s %s", m.Method, m.Verb, m.Pattern)
	}
	log.Infof("HTTP %q mounted on GET %s{camera_id}", "ws.tracking", ws.PathPrefix)
	log.Infof("HTTP %q mounted on GET /stream/{camera_id}", "stream.mjpeg")
	log.Infof("HTTP %q mounted on GET /snapshot/{camera_id}", "stream.snapshot")

	(*wg).Add(1)
	go func() {
		defer (*wg).Done()

		// Start HTTP server in a separate goroutine.
		go func() {
			log.Infof("HTTP server listening on %q", addr)
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		log.Infof("shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shutdown")
		}
	}()
}
