package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sdm120collector/internal/config"
	"github.com/berfenger/sdm120collector/internal/core/domain"

	"github.com/gomodule/redigo/redis"
)

// ConnFactory hands out a connection per publish call.
type ConnFactory func(ctx context.Context) (redis.Conn, error)

// RedisSink stores the latest values in Redis:
//
//	<prefix>:devices           list of polled device ids
//	<prefix>:device:<id>       hash of measurements plus read_successes/read_failures counters
//	<prefix>:info              hash with elapsed_seconds of the last cycle plus cumulative counters
type RedisSink struct {
	prefix string
	conn   ConnFactory
}

func NewRedisPool(cfg config.RedisConfig) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", cfg.Address(),
				redis.DialDatabase(cfg.DB),
				redis.DialPassword(cfg.Password),
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewRedisSink(prefix string, pool *redis.Pool) *RedisSink {
	return NewRedisSinkWithConn(prefix, pool.GetContext)
}

func NewRedisSinkWithConn(prefix string, conn ConnFactory) *RedisSink {
	return &RedisSink{prefix: prefix, conn: conn}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) DevicesKey() string {
	return fmt.Sprintf("%s:devices", s.prefix)
}

func (s *RedisSink) DeviceKey(deviceID uint8) string {
	return fmt.Sprintf("%s:device:%d", s.prefix, deviceID)
}

func (s *RedisSink) InfoKey() string {
	return fmt.Sprintf("%s:info", s.prefix)
}

// Announce replaces the device list.
func (s *RedisSink) Announce(ctx context.Context, deviceIDs []uint8) error {
	args := redis.Args{}.Add(s.DevicesKey())
	for _, id := range deviceIDs {
		args = args.Add(id)
	}
	return s.transaction(ctx, func(c redis.Conn) error {
		if err := c.Send("DEL", s.DevicesKey()); err != nil {
			return err
		}
		return c.Send("RPUSH", args...)
	})
}

// PublishReading writes the measurements of a present reading and bumps the
// matching counter. An absent reading leaves the stored values untouched.
func (s *RedisSink) PublishReading(ctx context.Context, reading domain.DeviceReading) error {
	key := s.DeviceKey(reading.DeviceID)
	return s.transaction(ctx, func(c redis.Conn) error {
		if !reading.Ok() {
			return c.Send("HINCRBY", key, "read_failures", 1)
		}
		args := redis.Args{}.Add(key)
		for name, value := range reading.Reading {
			args = args.Add(name, value)
		}
		args = args.Add("updated_at", reading.At.Unix())
		if err := c.Send("HSET", args...); err != nil {
			return err
		}
		return c.Send("HINCRBY", key, "read_successes", 1)
	})
}

func (s *RedisSink) PublishCycle(ctx context.Context, info domain.CycleInfo) error {
	key := s.InfoKey()
	return s.transaction(ctx, func(c redis.Conn) error {
		if err := c.Send("HSET", key, "elapsed_seconds", info.ElapsedSeconds()); err != nil {
			return err
		}
		if err := c.Send("HINCRBY", key, "read_successes", info.ReadSuccesses); err != nil {
			return err
		}
		return c.Send("HINCRBY", key, "read_failures", info.ReadFailures)
	})
}

func (s *RedisSink) transaction(ctx context.Context, queue func(c redis.Conn) error) error {
	c, err := s.conn(ctx)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer c.Close()

	if err := c.Send("MULTI"); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := queue(c); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if _, err := redis.DoContext(c, ctx, "EXEC"); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
