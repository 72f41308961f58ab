// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package cache backs the ETA cache (C7) and the health probe's
// cross-replica lock (C10). Grounded on common/cache.go's CacheConfiger
// strategy-selection pattern: a Config picks between an in-process LRU and
// a redis-backed cache, generalized here from "shard count" to "local vs
// distributed backend".
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/go-redis/redis/v7"

	"github.com/unclesp1d3r/cipherswarm/internal/log"
)

var logger = log.NewModuleLogger(log.Cache)

// Config selects and sizes the cache backend, mirroring CacheConfiger's
// constructor-argument shape.
type Config struct {
	// Size bounds the in-process LRU when Distributed is false. The Redis
	// backend has no local layer in front of it and ignores Size.
	Size int
	// Distributed, when true, backs the cache with Redis so multiple
	// control-plane replicas share entries and the C10 token lock.
	Distributed bool
	// RedisAddr is used only when Distributed is true.
	RedisAddr string
}

// Cache is the interface both backends satisfy; callers never see which
// one is in play.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
	// Lock attempts a distributed mutual-exclusion lock for the given
	// key, returning a token to pass to Unlock and whether it was
	// acquired. Single-process caches always acquire (no contention to
	// guard against).
	Lock(key string, ttl time.Duration) (token string, ok bool)
	Unlock(key, token string) bool
}

// New builds the Cache described by cfg.
func New(cfg Config) (Cache, error) {
	if cfg.Distributed {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping().Err(); err != nil {
			return nil, err
		}
		logger.Info("cache backend selected", "backend", "redis", "addr", cfg.RedisAddr)
		return &redisCache{client: rdb}, nil
	}
	size := cfg.Size
	if size <= 0 {
		size = 1024
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	logger.Info("cache backend selected", "backend", "lru", "size", size)
	return &lruCache{lru: l}, nil
}
