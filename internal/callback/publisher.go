package callback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/payout-ledger/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultQueueKey is the redis list callback entries are pushed to.
const DefaultQueueKey = "payout-ledger:callbacks"

// Publisher delivers callback log entries to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, entry models.CallbackEntry) error
}

// RedisPublisher pushes callback entries onto a redis list for external
// webhook dispatchers.
type RedisPublisher struct {
	redis redis.Cmdable
	key   string
}

func NewRedisPublisher(client redis.Cmdable, key string) *RedisPublisher {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisPublisher{redis: client, key: key}
}

func (p *RedisPublisher) Publish(ctx context.Context, entry models.CallbackEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal callback entry: %w", err)
	}
	if err := p.redis.RPush(ctx, p.key, payload).Err(); err != nil {
		return fmt.Errorf("push callback %d: %w", entry.Seq, err)
	}
	return nil
}

// LogPublisher writes callback entries to the structured log. Used when no
// redis is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, entry models.CallbackEntry) error {
	zap.L().Info("callback delivered",
		zap.Int64("seq", entry.Seq),
		zap.String("url", entry.URL),
		zap.String("event", entry.Event),
		zap.String("payout_id", entry.Payload.Payout.ID),
		zap.String("status", entry.Payload.Payout.Status),
	)
	return nil
}
