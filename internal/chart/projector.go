package chart

import (
	"strconv"

	"facetrack/internal/pipeline"
)

// Series labels and styles of the live chart
const (
	NoseXLabel = "Nose X Position"
	NoseYLabel = "Nose Y Position"
	Tension    = 0.1
)

// Dataset is one line series in chart.js shape
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BorderColor     string    `json:"borderColor"`
	BackgroundColor string    `json:"backgroundColor"`
	Tension         float64   `json:"tension"`
}

// Data is the chart widget payload
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Project derives the nose x and nose y series from a history window
// Labels are window positions "0".."n-1", so they shift as the window slides.
func Project(samples []pipeline.Sample) Data {
	labels := make([]string, len(samples))
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		labels[i] = strconv.Itoa(i)
		xs[i] = s.NoseX
		ys[i] = s.NoseY
	}

	return Data{
		Labels: labels,
		Datasets: []Dataset{
			{
				Label:           NoseXLabel,
				Data:            xs,
				BorderColor:     "rgb(255, 99, 132)",
				BackgroundColor: "rgba(255, 99, 132, 0.5)",
				Tension:         Tension,
			},
			{
				Label:           NoseYLabel,
				Data:            ys,
				BorderColor:     "rgb(53, 162, 235)",
				BackgroundColor: "rgba(53, 162, 235, 0.5)",
				Tension:         Tension,
			},
		},
	}
}
