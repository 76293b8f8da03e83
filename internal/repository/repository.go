package repository

import (
	"fmt"
	"time"

	"github.com/prperemyshlev/session-gateway/pkg/database"
)

const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// NewSessionStore creates the store selected by driver. redis may be nil for the memory driver.
func NewSessionStore(driver string, redis *database.Redis, ttl time.Duration) (SessionStore, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		if redis == nil {
			return nil, fmt.Errorf("redis session store requires a redis connection")
		}
		return NewRedisStore(redis, ttl), nil
	default:
		return nil, fmt.Errorf("unknown session store driver %q", driver)
	}
}
