package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls the client shared by the dial slot cap and the learned
// phrase store.
type RedisConfig struct {
	Addr string

	// Basic timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pool tuning
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// slotAcquireScript takes one slot from the counter at KEYS[1] if fewer than
// ARGV[1] are in use. ARGV[2] is the counter TTL in ms, refreshed on every
// acquire so a crashed process cannot pin slots forever.
// Returns 1 when a slot was taken, 0 when the cap is reached.
var slotAcquireScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 0
end
return 1
`)

// slotReleaseScript returns one slot and drops the counter once it is empty.
var slotReleaseScript = redis.NewScript(`
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// SlotCap bounds a resource across agent processes with a Redis counter.
// The dialer uses it to cap in-flight originations on the shared trunks.
type SlotCap struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

func NewSlotCap(rdb *redis.Client, key string, limit int, ttl time.Duration) (*SlotCap, error) {
	switch {
	case rdb == nil:
		return nil, errors.New("redis: client is nil")
	case key == "":
		return nil, errors.New("redis: slot key is required")
	case limit <= 0:
		return nil, fmt.Errorf("redis: slot limit must be > 0, got %d", limit)
	case ttl <= 0:
		return nil, fmt.Errorf("redis: slot ttl must be > 0, got %s", ttl)
	}
	return &SlotCap{rdb: rdb, key: key, limit: limit, ttl: ttl}, nil
}

// TryAcquire takes a slot without waiting.
func (s *SlotCap) TryAcquire(ctx context.Context) (bool, error) {
	res, err := slotAcquireScript.Run(ctx, s.rdb, []string{s.key}, s.limit, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Release returns a slot taken by TryAcquire.
func (s *SlotCap) Release(ctx context.Context) error {
	return slotReleaseScript.Run(ctx, s.rdb, []string{s.key}).Err()
}

// DialSlotKey is the shared counter key for outbound origination slots.
func DialSlotKey(scope string) string {
	if scope == "" {
		scope = "global"
	}
	return "voice-agent:dial-slots:" + scope
}
