package pipeline

import (
	"errors"
	"fmt"
)

// ErrTopologyMismatch is returned when the detector output does not have the landmark layout
// the extractor was configured for
var ErrTopologyMismatch = errors.New("landmark topology mismatch")

// Topology names the landmark indices of the three tracked points for one detector model
type Topology struct {
	Name     string
	Nose     int
	LeftEye  int
	RightEye int
}

// Landmark topologies of the supported detector models
var (
	// MediaPipeFaceMesh is the 468/478 point FaceMesh layout
	MediaPipeFaceMesh = Topology{Name: "mediapipe", Nose: 1, LeftEye: 159, RightEye: 386}
	// IBUG68 is the dlib / iBUG 300-W 68 point layout
	IBUG68 = Topology{Name: "ibug68", Nose: 30, LeftEye: 36, RightEye: 45}
)

// TopologyByName looks up a topology by its configuration name
func TopologyByName(name string) (Topology, error) {
	switch name {
	case "", MediaPipeFaceMesh.Name:
		return MediaPipeFaceMesh, nil
	case IBUG68.Name:
		return IBUG68, nil
	default:
		return Topology{}, fmt.Errorf("unknown landmark topology %q", name)
	}
}

// SampleExtractor turns a detection result into a Sample
type SampleExtractor struct {
	topology Topology
}

// NewSampleExtractor creates an extractor for the given topology
func NewSampleExtractor(topology Topology) SampleExtractor {
	return SampleExtractor{topology: topology}
}

// Topology returns the configured topology
func (e SampleExtractor) Topology() Topology {
	return e.topology
}

// Extract builds a sample from the first face of the result
// It returns nil, nil when no face was detected and a wrapped ErrTopologyMismatch
// when a tracked index is missing from the landmark list.
func (e SampleExtractor) Extract(timestamp int64, faces []Face) (*Sample, error) {
	if len(faces) == 0 {
		return nil, nil
	}
	face := faces[0]

	nose, err := e.point(face, "nose", e.topology.Nose)
	if err != nil {
		return nil, err
	}
	left, err := e.point(face, "left eye", e.topology.LeftEye)
	if err != nil {
		return nil, err
	}
	right, err := e.point(face, "right eye", e.topology.RightEye)
	if err != nil {
		return nil, err
	}

	return &Sample{
		Timestamp: timestamp,
		NoseX:     nose[0],
		NoseY:     nose[1],
		LeftEyeX:  left[0],
		LeftEyeY:  left[1],
		RightEyeX: right[0],
		RightEyeY: right[1],
	}, nil
}

func (e SampleExtractor) point(face Face, label string, index int) (Point, error) {
	if index < 0 || index >= len(face) {
		return nil, fmt.Errorf("%w: %s index %d out of range for %d points (topology %s)",
			ErrTopologyMismatch, label, index, len(face), e.topology.Name)
	}
	p := face[index]
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: %s point %d has %d components (topology %s)",
			ErrTopologyMismatch, label, index, len(p), e.topology.Name)
	}
	return p, nil
}
