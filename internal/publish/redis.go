package publish

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"facetrack/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultChannelPrefix prefixes every sample channel
const DefaultChannelPrefix = "face_tracking_data"

// RedisPublisher mirrors persisted samples onto Redis pub/sub channels, one per camera
type RedisPublisher struct {
	client *redis.Client
	prefix string
	log    *logrus.Entry
}

// NewRedisPublisher connects to addr and verifies the connection
func NewRedisPublisher(ctx context.Context, addr, password string, db int, prefix string, log *logrus.Entry) (*RedisPublisher, error) {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	log.WithField("addr", addr).Info("connected to redis")
	return &RedisPublisher{client: client, prefix: prefix, log: log.WithField("store", "redis")}, nil
}

// Channel returns the channel samples of cameraID are published on
func (p *RedisPublisher) Channel(cameraID string) string {
	return channelName(p.prefix, cameraID)
}

// InsertSamples publishes each row as JSON in a single pipeline
func (p *RedisPublisher) InsertSamples(ctx context.Context, rows []pipeline.SampleRow) error {
	pipe := p.client.Pipeline()
	for _, r := range rows {
		payload, err := encodeRow(r)
		if err != nil {
			return err
		}
		pipe.Publish(ctx, p.Channel(r.CameraID), payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish %d samples: %w", len(rows), err)
	}
	return nil
}

// Close closes the client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func channelName(prefix, cameraID string) string {
	return prefix + ":" + cameraID
}

func encodeRow(r pipeline.SampleRow) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample %s: %w", r.ID, err)
	}
	return payload, nil
}
