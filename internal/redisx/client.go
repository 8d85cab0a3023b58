package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// MarkOnce records id for service and reports whether this call was the
// first to do so.
func MarkOnce(ctx context.Context, rdb redis.Cmdable, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), 1, TTLDedup).Result()
}

// Forget undoes MarkOnce so a failed event can be processed again.
func Forget(ctx context.Context, rdb redis.Cmdable, service, id string) error {
	return rdb.Del(ctx, fmt.Sprintf(KeyDedup, service, id)).Err()
}

// Dedup binds MarkOnce and Forget to one consuming service.
type Dedup struct {
	rdb     redis.Cmdable
	service string
}

func NewDedup(rdb redis.Cmdable, service string) *Dedup { return &Dedup{rdb: rdb, service: service} }

func (d *Dedup) MarkOnce(ctx context.Context, id string) (bool, error) {
	return MarkOnce(ctx, d.rdb, d.service, id)
}

func (d *Dedup) Forget(ctx context.Context, id string) error {
	return Forget(ctx, d.rdb, d.service, id)
}
