package detection

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"facetrack/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Backend names accepted by DETECTOR_BACKEND
const (
	BackendHTTP = "http"
	BackendGRPC = "grpc"
)

// LandmarkFace is one face as returned by the landmark service
type LandmarkFace struct {
	Keypoints [][]float64 `json:"keypoints"`
	Score     float32     `json:"score,omitempty"`
}

// LandmarkResult is the landmark service detection response
type LandmarkResult struct {
	Faces           []LandmarkFace `json:"faces"`
	Count           int            `json:"count"`
	InferenceTimeMs float32        `json:"inference_time_ms"`
	Device          string         `json:"device,omitempty"`
}

// HealthResponse is the landmark service health response
type HealthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model,omitempty"`
}

// toDetection converts the service response, points are copied as-is
func (r *LandmarkResult) toDetection() (*pipeline.DetectionResult, error) {
	out := &pipeline.DetectionResult{
		Faces:       make([]pipeline.Face, 0, len(r.Faces)),
		InferenceMs: r.InferenceTimeMs,
	}
	for i, f := range r.Faces {
		face := make(pipeline.Face, 0, len(f.Keypoints))
		for j, kp := range f.Keypoints {
			if len(kp) == 0 {
				return nil, fmt.Errorf("face %d keypoint %d is empty", i, j)
			}
			face = append(face, pipeline.Point(kp))
		}
		out.Faces = append(out.Faces, face)
	}
	return out, nil
}
