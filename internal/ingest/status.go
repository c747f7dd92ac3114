package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JustinTDCT/CineHub/internal/logger"
	"github.com/JustinTDCT/CineHub/internal/models"
)

const (
	statusKeyPrefix = "cinehub:ingest:status:"
	statusTTL       = 24 * time.Hour
)

// statusClient is the subset of redis.Cmdable the status store needs.
type statusClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisStatus keeps the latest progress of each kind in redis so every
// process sharing the instance can report it.
type RedisStatus struct {
	client statusClient
}

func NewRedisStatus(client statusClient) *RedisStatus {
	return &RedisStatus{client: client}
}

func statusKey(kind models.MediaType) string {
	return statusKeyPrefix + string(kind)
}

// Report implements ProgressSink. Write failures are logged, never returned.
func (s *RedisStatus) Report(ctx context.Context, p Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		logger.Warn("ingest status encode failed", "error", err)
		return
	}
	if err := s.client.Set(ctx, statusKey(p.Kind), data, statusTTL).Err(); err != nil {
		logger.Warn("ingest status write failed", "kind", p.Kind, "error", err)
	}
}

// Get returns the last recorded progress for kind, or nil if none exists.
func (s *RedisStatus) Get(ctx context.Context, kind models.MediaType) (*Progress, error) {
	raw, err := s.client.Get(ctx, statusKey(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ingest status: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode ingest status: %w", err)
	}
	return &p, nil
}

// List returns the recorded progress for every media kind that has one.
func (s *RedisStatus) List(ctx context.Context) ([]Progress, error) {
	out := []Progress{}
	for _, kind := range []models.MediaType{models.MediaTypeMovie, models.MediaTypeShow} {
		p, err := s.Get(ctx, kind)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}
