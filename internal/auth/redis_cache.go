package auth

import (
	"context"
	"time"

	"ms-invites/internal/logger"

	"github.com/go-redis/redis/v8"
)

// InitializeRedis connects the shared Redis client and verifies the
// connection. The same client backs the balance locks.
func InitializeRedis(redisAddr string, customLogger *logger.Logger) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "", // no password
		DB:       0,  // use default DB
		PoolSize: 10, // connection pool size
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		if customLogger != nil {
			customLogger.Error("AUTH", "Failed to connect to Redis at "+redisAddr+": "+err.Error())
		}
		return nil, err
	}

	if customLogger != nil {
		customLogger.Info("AUTH", "Successfully connected to Redis at "+redisAddr)
	}
	return redisClient, nil
}
