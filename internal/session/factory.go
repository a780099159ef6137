package session

import (
	"context"
	"log"
	"time"

	"sessionkeys/internal/constants"
)

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	Backend       string
	RedisHost     string
	RedisPort     string
	RedisUser     string
	RedisPassword string
	RedisPrefix   string
	SQLitePath    string
}

// NewStore builds the configured store. A Redis host implies the Redis
// backend. Backends that fail to open fall back to memory.
func NewStore(cfg StoreConfig) StoreInterface {
	backend := cfg.Backend
	if backend == "" && cfg.RedisHost != "" {
		backend = constants.StoreRedis
	}

	switch backend {
	case constants.StoreRedis:
		port := cfg.RedisPort
		if port == "" {
			port = "6379"
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := NewRedisStore(ctx, cfg.RedisHost, port, cfg.RedisUser, cfg.RedisPassword, cfg.RedisPrefix)
		if err != nil {
			log.Printf("⚠️  Redis connection failed: %v", err)
			log.Println("💾 Falling back to in-memory session store")
			return NewMemoryStore()
		}
		log.Printf("💾 Using Redis session store: %s:%s", cfg.RedisHost, port)
		return store

	case constants.StoreSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			log.Printf("⚠️  SQLite open failed: %v", err)
			log.Println("💾 Falling back to in-memory session store")
			return NewMemoryStore()
		}
		log.Printf("💾 Using SQLite session store: %s", cfg.SQLitePath)
		return store
	}

	log.Println("💾 Using in-memory session store")
	return NewMemoryStore()
}
