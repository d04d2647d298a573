package database

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// InitRedis connects the cache and event queue client. Redis is optional:
// a nil client disables catalog caching, rate limiting and event publishing.
func InitRedis() *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.dial_timeout", 5*time.Second)

	rdb := redis.NewClient(&redis.Options{
		Addr:        viper.GetString("redis.host") + ":" + viper.GetString("redis.port"),
		Password:    viper.GetString("redis.password"),
		DB:          viper.GetInt("redis.db"),
		PoolSize:    viper.GetInt("redis.pool_size"),
		DialTimeout: viper.GetDuration("redis.dial_timeout"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("redis.dial_timeout"))
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[REDIS] Connection failed, running without cache and events: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("[REDIS] Connection established")
	return rdb
}
