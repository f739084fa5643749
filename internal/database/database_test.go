package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetrack/internal/logger"
	"facetrack/internal/pipeline"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "facetrack.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func row(id, camera string, ts int64, x, y float64) pipeline.SampleRow {
	return pipeline.SampleRow{
		ID:        id,
		SessionID: "session-" + camera,
		CameraID:  camera,
		CreatedAt: time.UnixMilli(ts).UTC(),
		Sample: pipeline.Sample{
			Timestamp: ts,
			NoseX:     x, NoseY: y,
			LeftEyeX: x - 10, LeftEyeY: y - 10,
			RightEyeX: x + 10, RightEyeY: y - 10,
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Ping(t.Context()))
}

func TestInsertAndListSamples(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := openTestDB(t)

	rows := []pipeline.SampleRow{
		row("01", "cam0", 1000, 320, 240),
		row("02", "cam0", 1033, 321.5, 241.25),
		row("03", "cam1", 1040, 100, 100),
		row("04", "cam0", 1066, 322, 242),
	}
	require.NoError(t, db.InsertSamples(ctx, rows))

	got, err := db.ListSamples(ctx, SampleQuery{CameraID: "cam0"})
	require.NoError(t, err)
	want := []pipeline.SampleRow{rows[3], rows[1], rows[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListSamples mismatch (-want +got):\n%s", diff)
	}

	got, err = db.ListSamples(ctx, SampleQuery{CameraID: "cam0", SinceMs: 1033, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "04", got[0].ID)

	n, err := db.CountSamples(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = db.CountSamples(ctx, "cam1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInsertDuplicateRollsBackBatch(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	db := openTestDB(t)

	require.NoError(t, db.InsertSamples(ctx, []pipeline.SampleRow{row("01", "cam0", 1000, 1, 1)}))
	err := db.InsertSamples(ctx, []pipeline.SampleRow{row("02", "cam0", 1001, 1, 1), row("01", "cam0", 1002, 1, 1)})
	require.Error(t, err)

	n, err := db.CountSamples(ctx, "cam0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSampleQueryWhere(t *testing.T) {
	t.Parallel()

	where, args := SampleQuery{}.where(func(int) string { return "?" })
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = SampleQuery{CameraID: "cam0", SessionID: "s", SinceMs: 5}.where(func(n int) string {
		return "$" + string(rune('0'+n))
	})
	assert.Equal(t, " WHERE camera_id = $1 AND session_id = $2 AND timestamp >= $3", where)
	assert.Equal(t, []any{"cam0", "s", int64(5)}, args)

	assert.Equal(t, DefaultListLimit, SampleQuery{}.limit())
	assert.Equal(t, MaxListLimit, SampleQuery{Limit: 1 << 20}.limit())
	assert.Equal(t, 7, SampleQuery{Limit: 7}.limit())
}

type recordingStore struct {
	rows []pipeline.SampleRow
	err  error
}

func (s *recordingStore) InsertSamples(_ context.Context, rows []pipeline.SampleRow) error {
	s.rows = append(s.rows, rows...)
	return s.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &recordingStore{}
	boom := errors.New("boom")
	bad := &recordingStore{err: boom}

	f := NewFanout(ok, nil, bad)
	assert.Equal(t, 2, f.Len())

	err := f.InsertSamples(t.Context(), []pipeline.SampleRow{row("01", "cam0", 1, 1, 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.rows, 1)
	assert.Len(t, bad.rows, 1)

	assert.NoError(t, NewFanout(ok).InsertSamples(t.Context(), nil))
}
