package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transportuni/chatbot-api/apperror"
)

// NewRedis connects to the Redis instance at url and pings it.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperror.NewConfigError("error parsing REDIS_URL", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, apperror.NewDatabaseError("error connecting to redis", err)
	}
	return client, nil
}
