package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facetrack/internal/pipeline"
)

func TestChannelName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "face_tracking_data:cam0", channelName(DefaultChannelPrefix, "cam0"))
	p := &RedisPublisher{prefix: "lab"}
	assert.Equal(t, "lab:front", p.Channel("front"))
}

func TestEncodeRowFlattensSample(t *testing.T) {
	t.Parallel()

	payload, err := encodeRow(pipeline.SampleRow{
		ID:        "01J",
		SessionID: "s1",
		CameraID:  "cam0",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Sample:    pipeline.Sample{Timestamp: 1000, NoseX: 320, NoseY: 240, LeftEyeX: 300, LeftEyeY: 220, RightEyeX: 340, RightEyeY: 220},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "01J",
		"session_id": "s1",
		"camera_id": "cam0",
		"created_at": "2024-01-02T03:04:05Z",
		"timestamp": 1000,
		"nose_x": 320,
		"nose_y": 240,
		"left_eye_x": 300,
		"left_eye_y": 220,
		"right_eye_x": 340,
		"right_eye_y": 220
	}`, string(payload))
}
