package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg, err := Load(nil, mapLookup(nil), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestEnvThenFlags(t *testing.T) {
	t.Parallel()

	env := mapLookup(map[string]string{
		"HTTP_PORT":               "9090",
		"DB_DRIVER":               "postgres",
		"POSTGRES_DSN":            "postgres://u:p@db/facetrack?sslmode=disable",
		"REDIS_ADDR":              "redis:6379",
		"DETECTOR_BACKEND":        "grpc",
		"DETECTOR_RETRY_INTERVAL": "500ms",
		"LANDMARK_TOPOLOGY":       "ibug68",
		"REFRESH_HZ":              "30",
		"DEBUG":                   "true",
	})

	cfg, err := Load([]string{"-http-port", "7070", "-camera", "front"}, env, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTPPort)
	assert.Equal(t, "front", cfg.CameraID)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "grpc", cfg.DetectorBackend)
	assert.Equal(t, 500*time.Millisecond, cfg.DetectorRetryInterval)
	assert.Equal(t, "ibug68", cfg.LandmarkTopology)
	assert.Equal(t, 30, cfg.RefreshHz)
	assert.True(t, cfg.Debug)
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr string
	}{
		{name: "bad integer", env: map[string]string{"HTTP_PORT": "eighty"}, wantErr: "HTTP_PORT"},
		{name: "bad duration", env: map[string]string{"DETECTOR_RETRY_INTERVAL": "soon"}, wantErr: "DETECTOR_RETRY_INTERVAL"},
		{name: "unknown driver", env: map[string]string{"DB_DRIVER": "mysql"}, wantErr: "DBDriver"},
		{name: "postgres without dsn", env: map[string]string{"DB_DRIVER": "postgres"}, wantErr: "PostgresDSN"},
		{name: "bad redis addr", env: map[string]string{"REDIS_ADDR": "redis"}, wantErr: "RedisAddr"},
		{name: "unknown topology", args: []string{"-topology", "dlib"}, wantErr: "LandmarkTopology"},
		{name: "camera id with slash", args: []string{"-camera", "a/b"}, wantErr: "CameraID"},
		{name: "zero refresh", env: map[string]string{"REFRESH_HZ": "0"}, wantErr: "RefreshHz"},
		{name: "unknown flag", args: []string{"-nope"}, wantErr: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args, mapLookup(tt.env), io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDotEnvLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FACETRACK_TEST_ONLY_IN_FILE=file\nFACETRACK_TEST_BOTH=file\n"), 0o600))
	t.Setenv("FACETRACK_TEST_BOTH", "env")

	lookup, err := DotEnvLookup(path)
	require.NoError(t, err)

	v, ok := lookup("FACETRACK_TEST_ONLY_IN_FILE")
	assert.True(t, ok)
	assert.Equal(t, "file", v)

	v, _ = lookup("FACETRACK_TEST_BOTH")
	assert.Equal(t, "env", v)

	_, ok = lookup("FACETRACK_TEST_MISSING")
	assert.False(t, ok)

	lookup, err = DotEnvLookup(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.NotNil(t, lookup)
}
