package notify

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"github.com/macharian8/stocksnap/internal/domain"
)

// RedisSink publishes events on a per-scope pub/sub channel so dashboard
// clients can react in realtime to ledger appends.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(addr string, password string, db int) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSink{client: client}
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channelFor(event.Scope), payload).Err()
}

func channelFor(scope string) string {
	return "stocksnap:events:" + scope
}
