package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"facetrack/internal/pipeline"
)

const (
	// LandmarkServiceName is the gRPC service name, also used for health checks
	LandmarkServiceName = "facetrack.landmarks.v1.LandmarkService"
	detectMethod        = "/" + LandmarkServiceName + "/Detect"
)

// GRPCLandmarkConfig holds configuration for the gRPC landmark backend
type GRPCLandmarkConfig struct {
	Endpoint    string
	Timeout     time.Duration
	DialOptions []grpc.DialOption
}

// GRPCLandmarkLoader opens a connection per Load, so every session owns its detector
type GRPCLandmarkLoader struct {
	cfg GRPCLandmarkConfig
	log *logrus.Entry
}

// NewGRPCLandmarkLoader creates a loader for the service at cfg.Endpoint
func NewGRPCLandmarkLoader(cfg GRPCLandmarkConfig, log *logrus.Entry) *GRPCLandmarkLoader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &GRPCLandmarkLoader{cfg: cfg, log: log.WithField("backend", BackendGRPC)}
}

func (l *GRPCLandmarkLoader) Name() string {
	return BackendGRPC
}

// Load connects and waits for the service to report SERVING
func (l *GRPCLandmarkLoader) Load(ctx context.Context) (pipeline.Detector, error) {
	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, l.cfg.DialOptions...)

	conn, err := grpc.NewClient(l.cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{Service: LandmarkServiceName})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		conn.Close()
		return nil, fmt.Errorf("landmark service not serving: %s", resp.GetStatus())
	}

	l.log.WithField("endpoint", l.cfg.Endpoint).Info("connected to landmark service")
	return &GRPCLandmarkClient{conn: conn, timeout: l.cfg.Timeout}, nil
}

// GRPCLandmarkClient detects face landmarks with a unary gRPC call
// The response is a ListValue of faces, each a ListValue of points, each a ListValue of numbers.
type GRPCLandmarkClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

func (c *GRPCLandmarkClient) Name() string {
	return BackendGRPC
}

func (c *GRPCLandmarkClient) Detect(ctx context.Context, frame *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, detectMethod, wrapperspb.Bytes(frame.Data), out); err != nil {
		return nil, fmt.Errorf("detect call failed: %w", err)
	}

	faces, err := facesFromList(out)
	if err != nil {
		return nil, err
	}
	return &pipeline.DetectionResult{
		Faces:       faces,
		InferenceMs: float32(time.Since(start).Microseconds()) / 1000,
	}, nil
}

func (c *GRPCLandmarkClient) Close() error {
	return c.conn.Close()
}

func facesFromList(list *structpb.ListValue) ([]pipeline.Face, error) {
	faces := make([]pipeline.Face, 0, len(list.GetValues()))
	for i, fv := range list.GetValues() {
		pts := fv.GetListValue()
		if pts == nil {
			return nil, fmt.Errorf("face %d is not a list", i)
		}
		face := make(pipeline.Face, 0, len(pts.GetValues()))
		for j, pv := range pts.GetValues() {
			comps := pv.GetListValue()
			if comps == nil || len(comps.GetValues()) == 0 {
				return nil, fmt.Errorf("face %d point %d is not a coordinate list", i, j)
			}
			point := make(pipeline.Point, 0, len(comps.GetValues()))
			for _, cv := range comps.GetValues() {
				n, ok := cv.GetKind().(*structpb.Value_NumberValue)
				if !ok {
					return nil, fmt.Errorf("face %d point %d has a non-numeric component", i, j)
				}
				point = append(point, n.NumberValue)
			}
			face = append(face, point)
		}
		faces = append(faces, face)
	}
	return faces, nil
}

var (
	_ pipeline.DetectorLoader = (*GRPCLandmarkLoader)(nil)
	_ pipeline.Detector       = (*GRPCLandmarkClient)(nil)
)
