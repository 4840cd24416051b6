// Package redis implements the session store on Redis hashes with Lua check-and-set scripts.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/upb/sessionauth/config"
	"go.uber.org/zap"
)

// NewClient builds a client from config without dialing.
func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// WaitReady pings with exponential backoff until Redis answers or maxElapsed passes.
func WaitReady(ctx context.Context, client goredis.UniversalClient, maxElapsed time.Duration, logger *zap.Logger) error {
	_, err := backoff.Retry(ctx, func() (string, error) {
		return client.Ping(ctx).Result()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("redis not ready, retrying",
				zap.Error(err),
				zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
