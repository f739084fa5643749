package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"goa.design/goa/v3/middleware"
)

func TestNew(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", AppEnv: "test", Output: &buf})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	Component(l, "tracking").WithField("camera_id", "cam0").Debug("session mounted")
	out := buf.String()
	assert.Contains(t, out, "session mounted")
	assert.Contains(t, out, "tracking")
	assert.Contains(t, out, "cam0")

	l, err = New(Options{})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestGoaAdapter(t *testing.T) {
	t.Parallel()

	l, hook := test.NewNullLogger()
	a := NewGoaAdapter(logrus.NewEntry(l))

	require.NoError(t, a.Log("id", "abc", "req", "GET /healthz", "msg", "request"))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "abc", entry.Data["id"])
	assert.Equal(t, "GET /healthz", entry.Data["req"])

	require.NoError(t, a.Log("status", 200, "done"))
	entry = hook.LastEntry()
	assert.Equal(t, "done", entry.Message)
	assert.Equal(t, 200, entry.Data["status"])
}

func TestWithRequestID(t *testing.T) {
	t.Parallel()

	entry := Discard()
	assert.Equal(t, "unknown", WithRequestID(context.Background(), entry).Data["request_id"])

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "r-42")
	assert.Equal(t, "r-42", WithRequestID(ctx, entry).Data["request_id"])
}
