// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package health implements the system-health probe: four subsystem
// checks behind in-process singleflight and a cross-replica Redis token
// lock. singleflight collapses concurrent callers within one instance;
// the Redis lock collapses concurrent callers across replicas racing on
// an expired cache entry; both are exercised, layered.
package health

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unclesp1d3r/cipherswarm/internal/cache"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
)

var logger = log.NewModuleLogger(log.Health)

// Status is one subsystem's probe outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusChecking  Status = "checking"
)

// Probe is one subsystem's result.
type Probe struct {
	Status    Status `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Report is the full four-subsystem result, cached as a unit.
type Report struct {
	Store       Probe `json:"store"`
	Cache       Probe `json:"cache"`
	ObjectStore Probe `json:"object_store"`
	Queue       Probe `json:"queue"`
}

// CheckFunc probes one subsystem under ctx's deadline.
type CheckFunc func(ctx context.Context) Probe

// Config names the probes to run and the cache/lock tunables.
type Config struct {
	Store       CheckFunc
	Cache       CheckFunc
	ObjectStore CheckFunc
	Queue       CheckFunc
	TTL         time.Duration // HEALTH_TTL_SECONDS
	LockTTL     time.Duration // HEALTH_LOCK_SECONDS
	ProbeTimeout time.Duration
}

const cacheKey = "system_health:report"

// Checker runs Config's probes behind singleflight + a distributed lock.
type Checker struct {
	cfg   Config
	cache cache.Cache
	group singleflight.Group
}

// New builds a Checker. c may be nil, in which case every call recomputes
// (no cross-call caching, no distributed lock — acceptable for tests and
// single-replica deployments without Redis).
func New(cfg Config, c cache.Cache) *Checker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	return &Checker{cfg: cfg, cache: c}
}

// Check returns the current health Report, computing it if the cache is
// cold. Under a thundering herd of concurrent callers, only one caller
// within the process actually runs the four probes (singleflight), and
// only one caller across replicas does so when the in-process cache is
// cold too (Redis token lock).
func (c *Checker) Check(ctx context.Context) (*Report, error) {
	if c.cache != nil {
		if b, ok := c.cache.Get(cacheKey); ok {
			var rep Report
			if json.Unmarshal(b, &rep) == nil {
				return &rep, nil
			}
		}
	}

	v, err, _ := c.group.Do(cacheKey, func() (interface{}, error) {
		return c.checkColdCache(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Report), nil
}

func (c *Checker) checkColdCache(ctx context.Context) (*Report, error) {
	if c.cache == nil {
		return c.runProbes(ctx), nil
	}

	token, acquired := c.cache.Lock(cacheKey, c.cfg.LockTTL)
	if !acquired {
		// Another replica holds the lock; return a checking placeholder
		// rather than doing redundant work or blocking indefinitely.
		return &Report{
			Store:       Probe{Status: StatusChecking},
			Cache:       Probe{Status: StatusChecking},
			ObjectStore: Probe{Status: StatusChecking},
			Queue:       Probe{Status: StatusChecking},
		}, nil
	}
	defer c.cache.Unlock(cacheKey, token)

	rep := c.runProbes(ctx)
	if b, err := json.Marshal(rep); err == nil {
		c.cache.Set(cacheKey, b, c.cfg.TTL)
	}
	return rep, nil
}

func (c *Checker) runProbes(ctx context.Context) *Report {
	run := func(fn CheckFunc) Probe {
		if fn == nil {
			return Probe{Status: StatusHealthy}
		}
		probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
		defer cancel()
		start := time.Now()
		p := fn(probeCtx)
		if p.LatencyMS == 0 {
			p.LatencyMS = time.Since(start).Milliseconds()
		}
		return p
	}
	rep := &Report{
		Store:       run(c.cfg.Store),
		Cache:       run(c.cfg.Cache),
		ObjectStore: run(c.cfg.ObjectStore),
		Queue:       run(c.cfg.Queue),
	}
	logger.Info("health probes complete", "store", rep.Store.Status, "cache", rep.Cache.Status,
		"object_store", rep.ObjectStore.Status, "queue", rep.Queue.Status)
	return rep
}
