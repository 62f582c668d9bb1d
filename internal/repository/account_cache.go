package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/cvtailor/internal/models"
)

// MemoryAccountCache keeps account snapshots in process memory.
type MemoryAccountCache struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

func NewMemoryAccountCache() *MemoryAccountCache {
	return &MemoryAccountCache{accounts: make(map[string]models.Account)}
}

func (c *MemoryAccountCache) Get(_ context.Context, key string) (*models.Account, bool, error) {
	c.mu.RLock()
	account, ok := c.accounts[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return &account, true, nil
}

func (c *MemoryAccountCache) Set(_ context.Context, key string, account *models.Account) error {
	c.mu.Lock()
	c.accounts[key] = *account
	c.mu.Unlock()
	return nil
}

func (c *MemoryAccountCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.accounts, key)
	c.mu.Unlock()
	return nil
}

// RedisAccountCache shares account snapshots between frontend replicas.
type RedisAccountCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAccountCache connects using a redis:// URL.
func NewRedisAccountCache(ctx context.Context, rawURL string, ttl time.Duration) (*RedisAccountCache, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisAccountCache{client: client, ttl: ttl}, nil
}

func (c *RedisAccountCache) key(key string) string {
	return "cvtailor:account:" + key
}

func (c *RedisAccountCache) Get(ctx context.Context, key string) (*models.Account, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get account: %w", err)
	}
	var account models.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, false, fmt.Errorf("decode cached account: %w", err)
	}
	return &account, true, nil
}

func (c *RedisAccountCache) Set(ctx context.Context, key string, account *models.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set account: %w", err)
	}
	return nil
}

func (c *RedisAccountCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete account: %w", err)
	}
	return nil
}

func (c *RedisAccountCache) Close() error {
	return c.client.Close()
}
