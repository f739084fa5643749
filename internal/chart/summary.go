package chart

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"facetrack/internal/pipeline"
)

// Summary describes the nose position over a window
type Summary struct {
	Count       int     `json:"count"`
	NoseXMean   float64 `json:"nose_x_mean"`
	NoseXStdDev float64 `json:"nose_x_stddev"`
	NoseYMean   float64 `json:"nose_y_mean"`
	NoseYStdDev float64 `json:"nose_y_stddev"`
	NoseXRange  float64 `json:"nose_x_range"`
	NoseYRange  float64 `json:"nose_y_range"`
	FirstMs     int64   `json:"first_timestamp"`
	LastMs      int64   `json:"last_timestamp"`
}

// Summarize computes window statistics, standard deviations are zero below two samples
func Summarize(samples []pipeline.Sample) Summary {
	s := Summary{Count: len(samples)}
	if len(samples) == 0 {
		return s
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, sample := range samples {
		xs[i] = sample.NoseX
		ys[i] = sample.NoseY
	}

	s.FirstMs = samples[0].Timestamp
	s.LastMs = samples[len(samples)-1].Timestamp
	s.NoseXRange = floats.Max(xs) - floats.Min(xs)
	s.NoseYRange = floats.Max(ys) - floats.Min(ys)

	if len(samples) < 2 {
		s.NoseXMean, s.NoseYMean = xs[0], ys[0]
		return s
	}
	s.NoseXMean, s.NoseXStdDev = stat.MeanStdDev(xs, nil)
	s.NoseYMean, s.NoseYStdDev = stat.MeanStdDev(ys, nil)
	return s
}
