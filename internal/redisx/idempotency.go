package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pending = "pending"

// ErrInFlight means another request with the same key has not finished.
var ErrInFlight = errors.New("redisx: request with this idempotency key is in flight")

// Idempotency stores one response per (scope, key) for TTLIdempotency.
type Idempotency struct {
	rdb redis.Cmdable
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency { return &Idempotency{rdb: rdb} }

// Claim reserves the key. When the key was already completed the stored
// response is returned with claimed false.
func (i *Idempotency) Claim(ctx context.Context, scope, key string) (claimed bool, stored []byte, err error) {
	k := fmt.Sprintf(KeyIdempotency, scope, key)
	ok, err := i.rdb.SetNX(ctx, k, pending, TTLIdempotency).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}
	v, err := i.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return i.Claim(ctx, scope, key)
	}
	if err != nil {
		return false, nil, err
	}
	if string(v) == pending {
		return false, nil, ErrInFlight
	}
	return false, v, nil
}

func (i *Idempotency) Complete(ctx context.Context, scope, key string, response []byte) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdempotency, scope, key), response, TTLIdempotency).Err()
}

// Release drops a claim whose request failed, so it can be retried.
func (i *Idempotency) Release(ctx context.Context, scope, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdempotency, scope, key)).Err()
}
