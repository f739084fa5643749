package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the service configuration
type Config struct {
	HTTPHost string `validate:"required"`
	HTTPPort int    `validate:"min=1,max=65535"`
	AppEnv   string `validate:"oneof=development production test"`
	Debug    bool

	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFile  string

	DBDriver    string `validate:"oneof=sqlite postgres"`
	SQLitePath  string `validate:"required_if=DBDriver sqlite"`
	PostgresDSN string `validate:"required_if=DBDriver postgres"`

	RedisAddr          string `validate:"omitempty,hostname_port"`
	RedisPassword      string
	RedisDB            int `validate:"min=0"`
	RedisChannelPrefix string

	DetectorBackend       string        `validate:"oneof=http grpc"`
	DetectorEndpoint      string        `validate:"required"`
	DetectorRetryInterval time.Duration `validate:"gt=0"`
	LandmarkTopology      string        `validate:"oneof=mediapipe ibug68"`

	CameraID     string `validate:"required,excludesall=/"`
	CameraDevice string `validate:"required"`
	FrameWidth   int    `validate:"min=16,max=4096"`
	FrameHeight  int    `validate:"min=16,max=4096"`
	CaptureFPS   int    `validate:"min=1,max=120"`
	RefreshHz    int    `validate:"min=1,max=240"`

	PersistQueueSize int `validate:"min=1"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		HTTPHost:              "0.0.0.0",
		HTTPPort:              8080,
		AppEnv:                "development",
		LogLevel:              "info",
		DBDriver:              "sqlite",
		SQLitePath:            "facetrack.db",
		RedisChannelPrefix:    "face_tracking_data",
		DetectorBackend:       "http",
		DetectorEndpoint:      "http://localhost:8081",
		DetectorRetryInterval: 2 * time.Second,
		LandmarkTopology:      "mediapipe",
		CameraID:              "cam0",
		CameraDevice:          "/dev/video0",
		FrameWidth:            640,
		FrameHeight:           480,
		CaptureFPS:            30,
		RefreshHz:             60,
		PersistQueueSize:      256,
	}
}

// Lookup reads one environment variable
type Lookup func(key string) (string, bool)

// DotEnvLookup layers the variables of a .env file under the process environment
// A missing file is not an error.
func DotEnvLookup(path string) (Lookup, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.LookupEnv, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// Load builds the configuration: defaults, then environment, then flags, then validation
func Load(args []string, lookup Lookup, usage io.Writer) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	fsFlags := flag.NewFlagSet("facetrack", flag.ContinueOnError)
	if usage != nil {
		fsFlags.SetOutput(usage)
	}
	cfg.bindFlags(fsFlags)
	if err := fsFlags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup Lookup) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	str("HTTP_HOST", &c.HTTPHost)
	integer("HTTP_PORT", &c.HTTPPort)
	str("APP_ENV", &c.AppEnv)
	boolean("DEBUG", &c.Debug)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)
	str("DB_DRIVER", &c.DBDriver)
	str("SQLITE_PATH", &c.SQLitePath)
	str("POSTGRES_DSN", &c.PostgresDSN)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	integer("REDIS_DB", &c.RedisDB)
	str("REDIS_CHANNEL_PREFIX", &c.RedisChannelPrefix)
	str("DETECTOR_BACKEND", &c.DetectorBackend)
	str("DETECTOR_ENDPOINT", &c.DetectorEndpoint)
	duration("DETECTOR_RETRY_INTERVAL", &c.DetectorRetryInterval)
	str("LANDMARK_TOPOLOGY", &c.LandmarkTopology)
	str("CAMERA_ID", &c.CameraID)
	str("CAMERA_DEVICE", &c.CameraDevice)
	integer("FRAME_WIDTH", &c.FrameWidth)
	integer("FRAME_HEIGHT", &c.FrameHeight)
	integer("CAPTURE_FPS", &c.CaptureFPS)
	integer("REFRESH_HZ", &c.RefreshHz)
	integer("PERSIST_QUEUE_SIZE", &c.PersistQueueSize)

	return errors.Join(errs...)
}

func (c *Config) bindFlags(f *flag.FlagSet) {
	f.StringVar(&c.HTTPHost, "host", c.HTTPHost, "HTTP listen host")
	f.IntVar(&c.HTTPPort, "http-port", c.HTTPPort, "HTTP listen port")
	f.BoolVar(&c.Debug, "debug", c.Debug, "Log request and response bodies")
	f.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level")
	f.StringVar(&c.DBDriver, "db-driver", c.DBDriver, "Sample store (sqlite, postgres)")
	f.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "SQLite database file")
	f.StringVar(&c.DetectorBackend, "detector", c.DetectorBackend, "Landmark detector backend (http, grpc)")
	f.StringVar(&c.DetectorEndpoint, "detector-endpoint", c.DetectorEndpoint, "Landmark service endpoint")
	f.StringVar(&c.LandmarkTopology, "topology", c.LandmarkTopology, "Landmark topology (mediapipe, ibug68)")
	f.StringVar(&c.CameraID, "camera", c.CameraID, "Camera id")
	f.StringVar(&c.CameraDevice, "device", c.CameraDevice, "Camera device or stream URL")
	f.IntVar(&c.RefreshHz, "refresh-hz", c.RefreshHz, "Tracking loop refresh rate")
}

// Validate checks the configuration
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}
