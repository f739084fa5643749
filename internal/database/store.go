package database

import (
	"context"
	"errors"
	"fmt"

	"facetrack/internal/pipeline"
)

// TableName is the sample table shared by every backend
const TableName = "face_tracking_data"

// SampleStore persists sample rows
type SampleStore interface {
	InsertSamples(ctx context.Context, rows []pipeline.SampleRow) error
}

// SampleReader reads persisted rows back
type SampleReader interface {
	ListSamples(ctx context.Context, q SampleQuery) ([]pipeline.SampleRow, error)
}

// SampleQuery filters ListSamples, newest rows first
type SampleQuery struct {
	CameraID  string
	SessionID string
	SinceMs   int64 // Only rows with timestamp >= SinceMs, zero disables
	Limit     int   // Defaults to DefaultListLimit, capped at MaxListLimit
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func (q SampleQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return DefaultListLimit
	case q.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return q.Limit
	}
}

// Fanout writes every batch to all stores and joins their errors
type Fanout struct {
	stores []SampleStore
}

// NewFanout creates a store that writes to each non-nil store in order
func NewFanout(stores ...SampleStore) *Fanout {
	f := &Fanout{}
	for _, s := range stores {
		if s != nil {
			f.stores = append(f.stores, s)
		}
	}
	return f
}

func (f *Fanout) InsertSamples(ctx context.Context, rows []pipeline.SampleRow) error {
	var errs []error
	for i, s := range f.stores {
		if err := s.InsertSamples(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("store %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of stores
func (f *Fanout) Len() int {
	return len(f.stores)
}

var _ SampleStore = (*Fanout)(nil)
