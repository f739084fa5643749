package services

import (
	"context"
	"fmt"

	"facetrack/internal/database"
	"facetrack/internal/pipeline"
)

// SamplesImplementation implements the persisted samples service
type SamplesImplementation struct {
	reader database.SampleReader
}

// NewSamplesService creates a new samples service implementation
func NewSamplesService(reader database.SampleReader) *SamplesImplementation {
	return &SamplesImplementation{reader: reader}
}

// List returns recent persisted rows, newest first
func (s *SamplesImplementation) List(ctx context.Context, p *SamplesPayload) (*SamplesResult, error) {
	if s.reader == nil {
		return nil, MakeUnavailable(fmt.Errorf("no sample store configured"))
	}
	if p == nil {
		p = &SamplesPayload{}
	}
	if p.Limit < 0 || p.Limit > database.MaxListLimit {
		return nil, MakeBadRequest(fmt.Errorf("limit must be between 0 and %d", database.MaxListLimit))
	}
	if p.Since < 0 {
		return nil, MakeBadRequest(fmt.Errorf("since must not be negative"))
	}

	rows, err := s.reader.ListSamples(ctx, database.SampleQuery{
		CameraID:  p.CameraID,
		SessionID: p.SessionID,
		SinceMs:   p.Since,
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, toServiceError(err)
	}
	if rows == nil {
		rows = []pipeline.SampleRow{}
	}
	return &SamplesResult{Rows: rows, Count: len(rows)}, nil
}
