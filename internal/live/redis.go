package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"greenledger/internal/game"
)

const ChangesChannel = "greenledger:changes"

type envelope struct {
	Origin string      `json:"origin"`
	Change game.Change `json:"change"`
}

// RedisRelay shares changes between engine instances. Local changes go to
// the local hub directly and to Redis; changes from other instances arrive
// through the subscription started by Run.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	log     *slog.Logger
	origin  string
	timeout time.Duration
}

func NewRedisRelay(ctx context.Context, redisURL string, hub *Hub, logger *slog.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		client:  client,
		hub:     hub,
		log:     logger,
		origin:  uuid.NewString(),
		timeout: 250 * time.Millisecond,
	}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, c game.Change) {
	r.hub.Publish(ctx, c)
	payload, err := json.Marshal(envelope{Origin: r.origin, Change: c})
	if err != nil {
		r.log.Error("encode change", "err", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.client.Publish(pubCtx, ChangesChannel, payload).Err(); err != nil {
		r.log.Warn("redis publish failed", "err", err)
	}
}

// Run forwards changes published by other instances until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, ChangesChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("bad change message", "err", err)
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.hub.Publish(ctx, env.Change)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
