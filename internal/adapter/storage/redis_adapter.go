package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/benefit-ledger/internal/core/domain"
)

const (
	benefitKeyPrefix     = "benefit:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
	defaultBenefitTTL    = 30 * time.Second
)

// setSnapshotScript never replaces a cached snapshot with an older version.
var setSnapshotScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) > version then
	return 0
end

redis.call('HSET', key, 'version', version, 'data', ARGV[2])
redis.call('PEXPIRE', key, ARGV[3])
return 1
`)

// invalidateScript replaces the snapshot with a tombstone carrying only the
// committed version, so a fill read before the commit cannot land after it.
var invalidateScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) > version then
	return 0
end

redis.call('DEL', key)
redis.call('HSET', key, 'version', version)
redis.call('PEXPIRE', key, ARGV[2])
return 1
`)

// RedisAdapter holds advisory benefit snapshots and idempotency keys.
type RedisAdapter struct {
	client     redis.UniversalClient
	benefitTTL time.Duration
}

func NewRedisAdapter(client redis.UniversalClient, benefitTTL time.Duration) *RedisAdapter {
	if benefitTTL <= 0 {
		benefitTTL = defaultBenefitTTL
	}
	return &RedisAdapter{client: client, benefitTTL: benefitTTL}
}

func (r *RedisAdapter) GetBenefit(ctx context.Context, benefitID string) (domain.Benefit, bool, error) {
	raw, err := r.client.HGet(ctx, benefitKeyPrefix+benefitID, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Benefit{}, false, nil
	}
	if err != nil {
		return domain.Benefit{}, false, fmt.Errorf("get benefit snapshot: %w", err)
	}

	var b domain.Benefit
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.Benefit{}, false, fmt.Errorf("decode benefit snapshot: %w", err)
	}
	return b, true, nil
}

func (r *RedisAdapter) SetBenefit(ctx context.Context, b domain.Benefit) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode benefit snapshot: %w", err)
	}
	key := benefitKeyPrefix + b.ID
	if err := setSnapshotScript.Run(ctx, r.client, []string{key}, b.Version, raw, r.benefitTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("set benefit snapshot: %w", err)
	}
	return nil
}

func (r *RedisAdapter) InvalidateBenefit(ctx context.Context, benefitID string, version int) error {
	key := benefitKeyPrefix + benefitID
	if err := invalidateScript.Run(ctx, r.client, []string{key}, version, r.benefitTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("invalidate benefit snapshot: %w", err)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
