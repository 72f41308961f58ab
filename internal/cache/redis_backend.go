// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package cache

import (
	"time"

	"github.com/go-redis/redis/v7"
	uuid "github.com/satori/go.uuid"
)

// unlockScript performs the compare-and-delete release: only the holder
// who set the token may clear it, preventing a slow caller from releasing
// a lock another replica has since re-acquired.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// redisCache is the multi-replica backend, used when Config.Distributed is
// set. The lock it implements is the cross-process "Redis token lock"
// layered under internal/health's in-process singleflight.
type redisCache struct {
	client *redis.Client
}

func (c *redisCache) Get(key string) ([]byte, bool) {
	b, err := c.client.Get(key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *redisCache) Set(key string, value []byte, ttl time.Duration) {
	c.client.Set(key, value, ttl)
}

func (c *redisCache) Delete(key string) {
	c.client.Del(key)
}

// Lock issues SET key token NX PX ttl, the single round-trip admission
// check for the cache-stampede guard.
func (c *redisCache) Lock(key string, ttl time.Duration) (string, bool) {
	token := uuid.NewV4().String()
	ok, err := c.client.SetNX(lockKey(key), token, ttl).Result()
	if err != nil || !ok {
		return "", false
	}
	return token, true
}

// Unlock runs the Lua compare-and-delete script so only the lock's own
// holder can release it.
func (c *redisCache) Unlock(key, token string) bool {
	res, err := c.client.Eval(unlockScript, []string{lockKey(key)}, token).Result()
	if err != nil {
		return false
	}
	n, _ := res.(int64)
	return n == 1
}

func lockKey(key string) string { return "lock:" + key }
