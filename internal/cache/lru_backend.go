// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type lruEntry struct {
	value   []byte
	expires time.Time
}

// lruCache is the single-process backend. Locks always succeed since
// there is no cross-process contention to guard against within one
// control-plane instance; the in-process singleflight group in
// internal/health handles intra-process collapsing separately.
type lruCache struct {
	lru *lru.Cache
	mu  sync.Mutex
}

func (c *lruCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	v, ok := c.lru.Get(key)
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	e := v.(lruEntry)
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.Delete(key)
		return nil, false
	}
	return e.value, true
}

func (c *lruCache) Set(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.lru.Add(key, lruEntry{value: value, expires: exp})
	c.mu.Unlock()
}

func (c *lruCache) Delete(key string) {
	c.mu.Lock()
	c.lru.Remove(key)
	c.mu.Unlock()
}

func (c *lruCache) Lock(key string, ttl time.Duration) (string, bool) {
	return "local", true
}

func (c *lruCache) Unlock(key, token string) bool { return true }
