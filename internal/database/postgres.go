package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"facetrack/internal/pipeline"
)

// Postgres persists face samples to PostgreSQL
type Postgres struct {
	db  *sqlx.DB
	log *logrus.Entry
}

// NewPostgres connects to PostgreSQL using a lib/pq DSN
func NewPostgres(ctx context.Context, dsn string, log *logrus.Entry) (*Postgres, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Postgres{db: db, log: log.WithField("store", "postgres")}, nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the connection is alive
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations
func (p *Postgres) Migrate() error {
	return migrateUp(p.db.DB, "postgres", p.log)
}

// InsertSamples writes a batch of rows in one transaction
func (p *Postgres) InsertSamples(ctx context.Context, rows []pipeline.SampleRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO face_tracking_data
			(id, session_id, camera_id, timestamp, nose_x, nose_y, left_eye_x, left_eye_y, right_eye_x, right_eye_y, created_at)
		VALUES
			(:id, :session_id, :camera_id, :timestamp, :nose_x, :nose_y, :left_eye_x, :left_eye_y, :right_eye_x, :right_eye_y, :created_at)
		ON CONFLICT (id) DO NOTHING`

	for _, r := range rows {
		if _, err := tx.NamedExecContext(ctx, insert, r); err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

// ListSamples returns persisted rows matching q, newest first
func (p *Postgres) ListSamples(ctx context.Context, q SampleQuery) ([]pipeline.SampleRow, error) {
	where, args := q.where(func(n int) string { return "$" + strconv.Itoa(n) })
	args = append(args, q.limit())
	query := `
		SELECT id, session_id, camera_id, timestamp, nose_x, nose_y, left_eye_x, left_eye_y, right_eye_x, right_eye_y, created_at
		FROM face_tracking_data` + where + `
		ORDER BY timestamp DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args))

	var out []pipeline.SampleRow
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	return out, nil
}

// CountSamples returns the number of rows stored for a camera, all cameras when cameraID is empty
func (p *Postgres) CountSamples(ctx context.Context, cameraID string) (int64, error) {
	where, args := SampleQuery{CameraID: cameraID}.where(func(n int) string { return "$" + strconv.Itoa(n) })
	var n int64
	if err := p.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM face_tracking_data"+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

var (
	_ SampleStore  = (*Postgres)(nil)
	_ SampleReader = (*Postgres)(nil)
)
