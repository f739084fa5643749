package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"facetrack/internal/camera"
	"facetrack/internal/config"
	"facetrack/internal/database"
	"facetrack/internal/detection"
	"facetrack/internal/logger"
	"facetrack/internal/overlay"
	"facetrack/internal/pipeline"
	"facetrack/internal/pipeline/detectors"
	"facetrack/internal/pipeline/refresh"
	"facetrack/internal/publish"
	"facetrack/internal/services"
	"facetrack/internal/stream"
	"facetrack/internal/ws"
)

func main() {
	lookup, err := config.DotEnvLookup(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(os.Args[1:], lookup, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	base, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, AppEnv: cfg.AppEnv})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logger.Component(base, "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	stores, err := openStores(ctx, cfg, base)
	if err != nil {
		log.WithError(err).Fatal("failed to open sample store")
	}
	writer := database.NewAsyncWriter(stores.sink, database.WriterOptions{QueueSize: cfg.PersistQueueSize}, logger.Component(base, "writer"))

	// Detector backends
	registry := detectors.NewRegistry()
	for _, l := range []pipeline.DetectorLoader{
		detection.NewHTTPLandmarkLoader(detection.HTTPLandmarkConfig{Endpoint: cfg.DetectorEndpoint}, logger.Component(base, "detector")),
		detection.NewGRPCLandmarkLoader(detection.GRPCLandmarkConfig{Endpoint: cfg.DetectorEndpoint}, logger.Component(base, "detector")),
	} {
		if err := registry.Register(l); err != nil {
			log.WithError(err).Fatal("failed to register detector backend")
		}
	}
	loader, err := registry.Select(cfg.DetectorBackend)
	if err != nil {
		log.WithError(err).Fatal("invalid detector backend")
	}
	topology, err := pipeline.TopologyByName(cfg.LandmarkTopology)
	if err != nil {
		log.WithError(err).Fatal("invalid landmark topology")
	}

	// Capture and stream
	provider := pipeline.NewFFmpegFrameProvider(logger.Component(base, "capture"))
	streams := stream.NewMJPEGStreamManager(logger.Component(base, "stream"))
	streams.CreateStream(cfg.CameraID)

	source := camera.NewSource(camera.Camera{
		ID:     cfg.CameraID,
		Device: cfg.CameraDevice,
		Width:  cfg.FrameWidth,
		Height: cfg.FrameHeight,
		FPS:    cfg.CaptureFPS,
	}, provider, logger.Component(base, "camera"))
	if err := source.Open(); err != nil {
		log.WithError(err).Fatal("failed to open camera")
	}

	// Tracking sessions
	bus := pipeline.NewEventBus()
	factory := func(cameraID string) (pipeline.SessionConfig, error) {
		if cameraID != cfg.CameraID {
			return pipeline.SessionConfig{}, fmt.Errorf("camera %s is not configured", cameraID)
		}
		return pipeline.SessionConfig{
			Topology:      topology,
			Loader:        loader,
			Source:        source,
			Canvas:        overlay.NewCanvas(cameraID, cfg.FrameWidth, cfg.FrameHeight, streams),
			Sink:          writer,
			Scheduler:     refresh.NewVSync(cfg.RefreshHz),
			HistorySize:   pipeline.HistoryCapacity,
			RetryInterval: cfg.DetectorRetryInterval,
			Logger:        logger.Component(base, "tracking"),
		}, nil
	}
	manager := pipeline.NewManager(ctx, factory, bus, logger.Component(base, "sessions"))
	if _, err := manager.Mount(cfg.CameraID); err != nil {
		log.WithError(err).Fatal("failed to mount camera surface")
	}

	// Raw frames reach the stream only while no session draws composites
	distributor := pipeline.NewFrameDistributor(provider, logger.Component(base, "distributor"))
	passthrough := pipeline.NewStreamConsumer(cfg.CameraID, streams, func() bool {
		s, err := manager.Session(cfg.CameraID)
		return err != nil || !s.Tracking()
	})
	if err := distributor.Subscribe(cfg.CameraID, passthrough); err != nil {
		log.WithError(err).Fatal("failed to subscribe stream passthrough")
	}

	// Live updates
	hub := ws.NewTrackingHub(logger.Component(base, "ws"))
	bridge := ws.NewBridge(hub, manager, logger.Component(base, "ws"))
	unsubscribe := bus.Subscribe(bridge)

	// Services
	checks := map[string]services.Pinger{"store": stores}
	var (
		trackingSvc = services.NewTrackingService(manager, logger.Component(base, "tracking"))
		samplesSvc  = services.NewSamplesService(stores.reader)
		healthSvc   = services.NewHealthService(checks)
		systemSvc   = services.NewSystemService(manager, cfg.DBDriver, stores.counter, writer, hub)
	)

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	handleHTTPServer(ctx, cfg.Addr(), httpDeps{
		tracking: trackingSvc,
		samples:  samplesSvc,
		health:   healthSvc,
		system:   systemSvc,
		ws:       ws.NewHandler(hub, bridge, logger.Component(base, "ws")),
		streams:  streams,
	}, &wg, errc, logger.Component(base, "http"), cfg.Debug)

	log.WithField("reason", <-errc).Info("exiting")

	// Send cancellation signal to the goroutines.
	cancel()
	wg.Wait()

	unsubscribe()
	manager.Close()
	distributor.UnsubscribeAll(cfg.CameraID)
	if err := source.Close(); err != nil {
		log.WithError(err).Warn("failed to close camera")
	}
	provider.StopAll()
	hub.Close()
	bus.Close()
	if err := writer.Close(); err != nil {
		log.WithError(err).Warn("failed to flush samples")
	}
	stores.Close()
	log.Info("exited")
}

// storeSet is the configured primary store plus optional mirrors
type storeSet struct {
	sink    database.SampleStore
	reader  database.SampleReader
	pinger  services.Pinger
	counter services.SampleCounter
	close   []func() error
	log     *logrus.Entry
}

func openStores(ctx context.Context, cfg *config.Config, base *logrus.Logger) (*storeSet, error) {
	set := &storeSet{log: logger.Component(base, "store")}
	var stores []database.SampleStore

	switch cfg.DBDriver {
	case "postgres":
		pg, err := database.NewPostgres(ctx, cfg.PostgresDSN, set.log)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(); err != nil {
			pg.Close()
			return nil, err
		}
		stores = append(stores, pg)
		set.reader, set.pinger, set.counter = pg, pg, pg
		set.close = append(set.close, pg.Close)
	default:
		db, err := database.New(cfg.SQLitePath, set.log)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		stores = append(stores, db)
		set.reader, set.pinger, set.counter = db, db, db
		set.close = append(set.close, db.Close)
	}

	if cfg.RedisAddr != "" {
		pub, err := publish.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannelPrefix, set.log)
		if err != nil {
			set.Close()
			return nil, err
		}
		stores = append(stores, pub)
		set.close = append(set.close, pub.Close)
	}

	set.sink = database.NewFanout(stores...)
	return set, nil
}

// Ping implements services.Pinger for the primary store
func (s *storeSet) Ping(ctx context.Context) error {
	return s.pinger.Ping(ctx)
}

func (s *storeSet) Close() {
	for i := len(s.close) - 1; i >= 0; i-- {
		if err := s.close[i](); err != nil {
			s.log.WithError(err).Warn("failed to close store")
		}
	}
}
