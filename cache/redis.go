// Package cache is the redis-backed read cache for the public product
// catalog. Entries are written on catalog reads and deleted on any write
// that can change what buyers see (seller edits, reviews, checkout stock
// decrements), so a missing redis connection only costs cache hits.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProductTTL bounds how stale a cached catalog entry can get when an
// invalidation is missed.
const ProductTTL = 5 * time.Minute

const productKeyFormat = "keycraft:product:%d"

func InitRedis(logger *zap.Logger) (*redis.Client, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

func GetProduct(ctx context.Context, rdb *redis.Client, productID int) ([]byte, error) {
	return rdb.Get(ctx, fmt.Sprintf(productKeyFormat, productID)).Bytes()
}

func SetProduct(ctx context.Context, rdb *redis.Client, productID int, product interface{}, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, fmt.Sprintf(productKeyFormat, productID), data, ttl).Err()
}

func DeleteProduct(ctx context.Context, rdb *redis.Client, productID int) error {
	return rdb.Del(ctx, fmt.Sprintf(productKeyFormat, productID)).Err()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
