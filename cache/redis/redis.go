package redis

import (
	"context"
	"crypto/tls"

	"github.com/redis/go-redis/v9"

	"github.com/zlnvch/easel/logutils"
)

type RedisEaselCache struct {
	client redis.UniversalClient
}

func NewRedisEaselCache(ctx context.Context, devMode bool, redisEndpoint string) (*RedisEaselCache, error) {
	options := &redis.Options{Addr: redisEndpoint}
	if !devMode {
		// Managed redis endpoints require TLS
		options.TLSConfig = &tls.Config{}
	}
	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisEaselCache{client: client}, nil
}

func (redisCache *RedisEaselCache) Publish(ctx context.Context, channel string, message []byte) error {
	return redisCache.client.Publish(ctx, channel, message).Err()
}

// Subscribe delivers every message on channel to handler until ctx is done.
func (redisCache *RedisEaselCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		logutils.Log.WithField("channel", channel).Warn("pubsub channel closed")
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

func (redisCache *RedisEaselCache) Close() error {
	return redisCache.client.Close()
}
