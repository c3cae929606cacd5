package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tablestack/internal/pos/apperr"
)

// OrderNumberSource issues the per-site-per-day order numbers.
type OrderNumberSource interface {
	Next(ctx context.Context) (string, error)
}

// RedisSequencer implements the daily sequence as a single atomic INCR on a
// site+day key, so concurrent instances never issue the same number.
type RedisSequencer struct {
	rdb  *redis.Client
	site string
}

func NewRedisSequencer(rdb *redis.Client, site string) *RedisSequencer {
	return &RedisSequencer{rdb: rdb, site: site}
}

func (s *RedisSequencer) Next(ctx context.Context) (string, error) {
	day := time.Now().UTC().Format("20060102")
	key := fmt.Sprintf("orderseq:%s:%s", s.site, day)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", apperr.External("order sequence", err)
	}
	if n == 1 {
		// Key dies on its own well after the business day rolls over.
		s.rdb.Expire(ctx, key, 48*time.Hour)
	}
	return FormatOrderNumber(s.site, day, n), nil
}

func FormatOrderNumber(site, day string, n int64) string {
	return fmt.Sprintf("ORD-%s-%s-%03d", site, day, n)
}
