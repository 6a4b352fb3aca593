package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const SweepLockKey = "transactions:sweep:lock"

// releaseScript 只刪除自己持有的鎖 (compare-and-delete)
const releaseScript = `
	local key = KEYS[1]
	local token = ARGV[1]

	if redis.call('GET', key) == token then
		return redis.call('DEL', key)
	end
	return 0
`

type SweepLock interface {
	// Acquire 取得鎖回傳 true；已被其他 replica 持有回傳 false
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type RedisSweepLockImpl struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisSweepLock 每個 process 一個 token，ttl 為持有上限 (process 掛掉時自動釋放)
func NewRedisSweepLock(client *redis.Client, ttl time.Duration) SweepLock {
	return &RedisSweepLockImpl{
		client: client,
		key:    SweepLockKey,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

func (l *RedisSweepLockImpl) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	return ok, nil
}

func (l *RedisSweepLockImpl) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release sweep lock: %w", err)
	}
	return nil
}
