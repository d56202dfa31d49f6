package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/config"
	"github.com/redis/go-redis/v9"
)

const onlineTTL = 24 * time.Hour

type RedisClient struct {
	Client *redis.Client
}

// NewRedisClient connects and pings the server before returning.
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis client connection test failed: %w", err)
	}
	return &RedisClient{Client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func onlineKey(room string) string {
	return fmt.Sprintf("presence:room:%s:online_users", room)
}

// AddOnline records userID as present in room. The hash expires a day after
// the last change so crashed instances do not leave users online forever.
func (r *RedisClient) AddOnline(ctx context.Context, room, userID string) error {
	key := onlineKey(room)
	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, key, userID, time.Now().UTC().Format(time.RFC3339))
	pipe.Expire(ctx, key, onlineTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add user %s to %s: %w", userID, key, err)
	}
	return nil
}

func (r *RedisClient) RemoveOnline(ctx context.Context, room, userID string) error {
	key := onlineKey(room)
	if err := r.Client.HDel(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove user %s from %s: %w", userID, key, err)
	}
	return nil
}

// GetOnlineUsers returns the sorted ids of users present in room across
// every instance.
func (r *RedisClient) GetOnlineUsers(ctx context.Context, room string) ([]string, error) {
	key := onlineKey(room)
	result, err := r.Client.HKeys(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch online users for key %s: %w", key, err)
	}
	sort.Strings(result)
	return result, nil
}
