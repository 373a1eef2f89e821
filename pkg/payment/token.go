package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is a gateway bearer credential. Value is sent verbatim in the
// Authorization header.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the token may still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenCache holds at most one gateway token. Concurrent refreshes are allowed;
// the last Set wins.
type TokenCache interface {
	Get(ctx context.Context) (Token, bool, error)
	Set(ctx context.Context, tok Token) error
	Invalidate(ctx context.Context) error
}

type MemoryTokenCache struct {
	mu  sync.RWMutex
	tok Token
	ok  bool
}

func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{}
}

func (c *MemoryTokenCache) Get(_ context.Context) (Token, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tok, c.ok, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, tok Token) error {
	c.mu.Lock()
	c.tok, c.ok = tok, true
	c.mu.Unlock()
	return nil
}

func (c *MemoryTokenCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	c.tok, c.ok = Token{}, false
	c.mu.Unlock()
	return nil
}

// RedisTokenCache shares one token across replicas. The key expires with the token.
type RedisTokenCache struct {
	rdb redis.Cmdable
	key string
	now func() time.Time
}

func NewRedisTokenCache(rdb redis.Cmdable, key string) *RedisTokenCache {
	return &RedisTokenCache{rdb: rdb, key: key, now: time.Now}
}

func (c *RedisTokenCache) Get(ctx context.Context) (Token, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("token cache get: %w", err)
	}
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return Token{}, false, nil
	}
	return tok, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, tok Token) error {
	ttl := tok.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key, string(b), ttl).Err(); err != nil {
		return fmt.Errorf("token cache set: %w", err)
	}
	return nil
}

func (c *RedisTokenCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("token cache invalidate: %w", err)
	}
	return nil
}
