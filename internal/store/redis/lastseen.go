// Package redis keeps last-seen timestamps in Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	TTL      time.Duration `mapstructure:"last_seen_ttl"`
}

// LastSeen stores one key per user: parley:lastseen:<user> = unix millis.
type LastSeen struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLastSeen(ctx context.Context, c Config) (*LastSeen, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
	}
	log.Info().Str("module", "store.redis").Str("addr", c.Addr).Msg("connected")
	return &LastSeen{rdb: rdb, ttl: c.TTL}, nil
}

func lastSeenKey(user domain.UserID) string { return "parley:lastseen:" + string(user) }

// setMax keeps the larger timestamp so a late write from another node
// cannot move last-seen backwards.
var setMax = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
if tonumber(ARGV[2]) > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

func (s *LastSeen) SetLastSeen(ctx context.Context, user domain.UserID, at time.Time) error {
	err := setMax.Run(ctx, s.rdb, []string{lastSeenKey(user)}, at.UnixMilli(), s.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("set last seen of %s: %w", user, err)
	}
	return nil
}

func (s *LastSeen) LastSeen(ctx context.Context, user domain.UserID) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, lastSeenKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last seen of %s: %w", user, err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *LastSeen) Close() error { return s.rdb.Close() }
