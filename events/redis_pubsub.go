package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, channel, string(data)).Err(); err != nil {
		p.log.Warn("event publish failed",
			zap.String("channel", channel),
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// LogPublisher writes events to the log instead of a broker, for local runs.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, channel string, event Event) error {
	p.log.Info("event",
		zap.String("channel", channel),
		zap.String("type", event.Type),
		zap.String("action_id", event.ActionID),
		zap.Strings("identifiers", event.Identifiers),
		zap.String("run_id", event.RunID),
	)
	return nil
}

var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)
