package detectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetrack/internal/pipeline"
)

type namedLoader string

func (l namedLoader) Name() string { return string(l) }

func (l namedLoader) Load(context.Context) (pipeline.Detector, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(namedLoader("http")))
	require.NoError(t, r.Register(namedLoader("grpc")))
	assert.Error(t, r.Register(namedLoader("http")))
	assert.Error(t, r.Register(namedLoader("")))
	assert.Error(t, r.Register(nil))

	assert.Equal(t, []string{"grpc", "http"}, r.Names())

	l, err := r.Select("grpc")
	require.NoError(t, err)
	assert.Equal(t, "grpc", l.Name())

	_, err = r.Select("onnx")
	assert.ErrorContains(t, err, "available: [grpc http]")

	require.NoError(t, r.Unregister("grpc"))
	assert.Error(t, r.Unregister("grpc"))
	_, ok := r.Get("grpc")
	assert.False(t, ok)
}
