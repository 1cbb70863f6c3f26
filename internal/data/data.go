// Package data provides the infrastructure layer: counter stores, alert
// history persistence and outbound webhook delivery.
package data

import (
	"FuseGate/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
	NewCacheClient,
	NewAlertRepo,
	NewWebhookNotifier,
)

// Data bundles the shared infrastructure clients.
type Data struct {
	redisClient *redis.Client
	db          *gorm.DB
	cache       CacheClient
}

// NewData creates the Data bundle. Both Redis and MySQL are optional:
// either may be nil when unconfigured or unreachable, and the layers above
// degrade accordingly (in-memory rate limit store, in-memory alert
// history).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB, cache CacheClient) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis unavailable, rate limiting will use the in-memory store")
	}
	if db == nil {
		helper.Warn("MySQL unavailable, alert history will be in-memory only")
	}

	d := &Data{
		redisClient: rdb,
		db:          db,
		cache:       cache,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Client shutdown is handled by the per-client cleanup functions.
	}

	return d, cleanup, nil
}

// Redis returns the Redis client, nil when unconfigured.
func (d *Data) Redis() *redis.Client {
	return d.redisClient
}

// DB returns the GORM handle, nil when unconfigured.
func (d *Data) DB() *gorm.DB {
	return d.db
}

// Cache returns the cache client.
func (d *Data) Cache() CacheClient {
	return d.cache
}
