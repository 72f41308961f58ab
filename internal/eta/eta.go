// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package eta computes current_eta and total_eta per campaign,
// cache-backed and keyed on a watermark of the underlying rows so any
// progress change invalidates naturally. Grounded on common/cache.go's
// CacheConfiger/Cache abstraction, adapted from a shard-count knob to a
// TTL+version keyed entry store.
package eta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/cache"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.ETA)

const cacheTTL = 30 * time.Second

// Estimate is the pair of values produced per campaign: CurrentETA based
// on running tasks, and TotalETA additionally accounting for pending and
// paused attacks.
type Estimate struct {
	CurrentETA time.Time `json:"current_eta"`
	TotalETA   time.Time `json:"total_eta"`
}

// Calculator computes and caches Estimates.
type Calculator struct {
	store *store.Store
	cache cache.Cache
}

// New builds a Calculator. cache may be nil, in which case every call
// recomputes.
func New(st *store.Store, c cache.Cache) *Calculator {
	return &Calculator{store: st, cache: c}
}

// Estimate returns the cached or freshly computed ETA pair for campaignID.
func (c *Calculator) Estimate(ctx context.Context, campaignID uuid.UUID) (*Estimate, error) {
	key, err := c.cacheKey(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if b, ok := c.cache.Get(key); ok {
			var est Estimate
			if json.Unmarshal(b, &est) == nil {
				return &est, nil
			}
		}
	}

	est, err := c.compute(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if b, err := json.Marshal(est); err == nil {
			c.cache.Set(key, b, cacheTTL)
		}
	}
	return est, nil
}

// cacheKey derives a cache key from (campaign_id, max(attacks.updated_at),
// max(tasks.updated_at)) so any attack or task write invalidates it.
func (c *Calculator) cacheKey(ctx context.Context, campaignID uuid.UUID) (string, error) {
	r := c.store.Read(ctx)
	attacksWM, err := r.MaxAttacksUpdatedAt(campaignID)
	if err != nil {
		return "", err
	}
	tasksWM, err := r.MaxTasksUpdatedAt(campaignID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("eta:%s:%d:%d", campaignID, attacksWM.UnixNano(), tasksWM.UnixNano()), nil
}

func (c *Calculator) compute(ctx context.Context, campaignID uuid.UUID) (*Estimate, error) {
	r := c.store.Read(ctx)

	running, err := r.RunningTasksForCampaign(campaignID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	currentETA := now
	for _, rt := range running {
		speed, ok, err := r.FastestBenchmarkForHashMode(rt.AttackHashMode)
		if err != nil {
			return nil, err
		}
		if !ok || speed <= 0 {
			continue
		}
		remaining := float64(rt.AttackComplexity) / speed
		finish := now.Add(time.Duration(remaining) * time.Second)
		if finish.After(currentETA) {
			currentETA = finish
		}
	}

	totalETA := currentETA
	pending, err := r.PendingOrPausedAttacksForCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		speed, ok, err := r.FastestBenchmarkForHashMode(p.HashMode)
		if err != nil {
			return nil, err
		}
		if !ok || speed <= 0 {
			continue
		}
		totalETA = totalETA.Add(time.Duration(float64(p.Complexity)/speed) * time.Second)
	}

	return &Estimate{CurrentETA: currentETA, TotalETA: totalETA}, nil
}
