package detection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"facetrack/internal/pipeline"
)

// HTTPLandmarkConfig holds configuration for the HTTP landmark backend
type HTTPLandmarkConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// HTTPLandmarkLoader loads detectors backed by the HTTP landmark service
type HTTPLandmarkLoader struct {
	endpoint string
	client   *http.Client
	log      *logrus.Entry
}

// NewHTTPLandmarkLoader creates a loader for the service at cfg.Endpoint
func NewHTTPLandmarkLoader(cfg HTTPLandmarkConfig, log *logrus.Entry) *HTTPLandmarkLoader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HTTPLandmarkLoader{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		log:      log.WithField("backend", BackendHTTP),
	}
}

func (l *HTTPLandmarkLoader) Name() string {
	return BackendHTTP
}

// Load succeeds once the service reports its model loaded
func (l *HTTPLandmarkLoader) Load(ctx context.Context) (pipeline.Detector, error) {
	health, err := l.checkHealth(ctx)
	if err != nil {
		return nil, err
	}
	if health.Status != "healthy" || !health.ModelLoaded {
		return nil, fmt.Errorf("landmark service not ready: status=%s, model_loaded=%v", health.Status, health.ModelLoaded)
	}

	l.log.WithFields(logrus.Fields{"endpoint": l.endpoint, "device": health.Device}).Info("landmark model ready")
	return &HTTPLandmarkClient{endpoint: l.endpoint, client: l.client}, nil
}

func (l *HTTPLandmarkLoader) checkHealth(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// HTTPLandmarkClient detects face landmarks through the HTTP landmark service
type HTTPLandmarkClient struct {
	endpoint string
	client   *http.Client
}

func (c *HTTPLandmarkClient) Name() string {
	return BackendHTTP
}

// Detect posts the frame JPEG to /landmarks
func (c *HTTPLandmarkClient) Detect(ctx context.Context, frame *pipeline.FrameData) (*pipeline.DetectionResult, error) {
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	body, err := c.sendImageRequest(ctx, c.endpoint+"/landmarks", frame.Data)
	if err != nil {
		return nil, err
	}

	var result LandmarkResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode landmarks response: %w", err)
	}
	return result.toDetection()
}

func (c *HTTPLandmarkClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// sendImageRequest posts imageData as the multipart field "file"
func (c *HTTPLandmarkClient) sendImageRequest(ctx context.Context, url string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

var (
	_ pipeline.DetectorLoader = (*HTTPLandmarkLoader)(nil)
	_ pipeline.Detector       = (*HTTPLandmarkClient)(nil)
)
