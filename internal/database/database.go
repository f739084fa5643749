package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"facetrack/internal/pipeline"
)

// Database handles SQLite persistence of face samples
type Database struct {
	db  *sql.DB
	log *logrus.Entry
}

// New opens the SQLite database at dbPath
func New(dbPath string, log *logrus.Entry) (*Database, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Database{db: db, log: log.WithField("store", "sqlite")}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping verifies the connection is alive
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations
func (d *Database) Migrate() error {
	return migrateUp(d.db, "sqlite", d.log)
}

// InsertSamples writes a batch of rows in one transaction
func (d *Database) InsertSamples(ctx context.Context, rows []pipeline.SampleRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_tracking_data
			(id, session_id, camera_id, timestamp, nose_x, nose_y, left_eye_x, left_eye_y, right_eye_x, right_eye_y, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.SessionID, r.CameraID, r.Timestamp,
			r.NoseX, r.NoseY, r.LeftEyeX, r.LeftEyeY, r.RightEyeX, r.RightEyeY,
			r.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert sample %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

// ListSamples returns persisted rows matching q, newest first
func (d *Database) ListSamples(ctx context.Context, q SampleQuery) ([]pipeline.SampleRow, error) {
	where, args := q.where(func(int) string { return "?" })
	query := `
		SELECT id, session_id, camera_id, timestamp, nose_x, nose_y, left_eye_x, left_eye_y, right_eye_x, right_eye_y, created_at
		FROM face_tracking_data` + where + `
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`
	args = append(args, q.limit())

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []pipeline.SampleRow
	for rows.Next() {
		var r pipeline.SampleRow
		var createdMs int64
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.CameraID, &r.Timestamp,
			&r.NoseX, &r.NoseY, &r.LeftEyeX, &r.LeftEyeY, &r.RightEyeX, &r.RightEyeY,
			&createdMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountSamples returns the number of rows stored for a camera, all cameras when cameraID is empty
func (d *Database) CountSamples(ctx context.Context, cameraID string) (int64, error) {
	where, args := SampleQuery{CameraID: cameraID}.where(func(int) string { return "?" })
	var n int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM face_tracking_data"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

// where builds the WHERE clause of q, placeholder renders the n-th bind parameter
func (q SampleQuery) where(placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}

	if q.CameraID != "" {
		add("camera_id = %s", q.CameraID)
	}
	if q.SessionID != "" {
		add("session_id = %s", q.SessionID)
	}
	if q.SinceMs > 0 {
		add("timestamp >= %s", q.SinceMs)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var (
	_ SampleStore  = (*Database)(nil)
	_ SampleReader = (*Database)(nil)
)
