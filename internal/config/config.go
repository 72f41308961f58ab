// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package config defines the control plane's typed startup configuration:
// global mutable state becomes one struct constructed at startup and
// passed down. Loaded via naoina/toml with CIPHERSWARM_<KEY> environment
// overrides applied after parse.
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/naoina/toml"
)

// tomlSettings keeps TOML keys identical to Go struct field names.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field %q is not defined in %s", field, rt.String())
	},
}

// StoreConfig names the relational store connection, persisted-state
// layout.
type StoreConfig struct {
	Dialect string
	DSN     string
}

// CacheConfig mirrors internal/cache.Config's field names so it loads
// directly off this struct.
type CacheConfig struct {
	Size        int
	Distributed bool
	RedisAddr   string
}

// KafkaConfig is the optional maintenance-tick audit sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config covers every tunable the control plane needs, plus the
// store/cache/Kafka connection settings.
type Config struct {
	Store StoreConfig
	Cache CacheConfig
	Kafka KafkaConfig

	ListenAddr string

	AgentOfflineSeconds  int
	TaskAbandonSeconds   int
	NStatusKeep          int
	HealthTTLSeconds     int
	HealthLockSeconds    int
	BenchmarkThresholds  map[int]float64
	RetentionAgentErrorsDays int
	RetentionAuditDays       int
	RetentionStatusDays      int

	PreemptableProgress float64
	PreemptionStarvationCap int

	// PropagateCrossProject defaults to true. Nothing reads it: crack
	// propagation always spans every hash list sharing the hash type,
	// whatever project owns it.
	PropagateCrossProject bool
}

// Default returns the built-in defaults, overridden by a config file and
// then environment variables in Load.
func Default() Config {
	return Config{
		Store:      StoreConfig{Dialect: "mysql"},
		Cache:      CacheConfig{Size: 4096},
		ListenAddr: ":8080",

		AgentOfflineSeconds:      120,
		TaskAbandonSeconds:       600,
		NStatusKeep:              10,
		HealthTTLSeconds:         60,
		HealthLockSeconds:        10,
		BenchmarkThresholds:      map[int]float64{},
		RetentionAgentErrorsDays: 30,
		RetentionAuditDays:       90,
		RetentionStatusDays:      7,

		PreemptableProgress:     0.5,
		PreemptionStarvationCap: 3,

		PropagateCrossProject: true,
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// CIPHERSWARM_<KEY> environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
			if _, ok := err.(*toml.LineError); ok {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return nil, err
		}
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides reads the handful of scalar keys directly as
// CIPHERSWARM_<KEY> environment variables, matching the
// AGENT_OFFLINE_SECONDS-style naming verbatim.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("CIPHERSWARM_AGENT_OFFLINE_SECONDS"); ok {
		cfg.AgentOfflineSeconds = v
	}
	if v, ok := envInt("CIPHERSWARM_TASK_ABANDON_SECONDS"); ok {
		cfg.TaskAbandonSeconds = v
	}
	if v, ok := envInt("CIPHERSWARM_N_STATUS_KEEP"); ok {
		cfg.NStatusKeep = v
	}
	if v, ok := envInt("CIPHERSWARM_HEALTH_TTL_SECONDS"); ok {
		cfg.HealthTTLSeconds = v
	}
	if v, ok := envInt("CIPHERSWARM_HEALTH_LOCK_SECONDS"); ok {
		cfg.HealthLockSeconds = v
	}
	if v, ok := envInt("CIPHERSWARM_RETENTION_AGENT_ERRORS_DAYS"); ok {
		cfg.RetentionAgentErrorsDays = v
	}
	if v, ok := envInt("CIPHERSWARM_RETENTION_AUDIT_DAYS"); ok {
		cfg.RetentionAuditDays = v
	}
	if v, ok := envInt("CIPHERSWARM_RETENTION_STATUS_DAYS"); ok {
		cfg.RetentionStatusDays = v
	}
	if v := os.Getenv("CIPHERSWARM_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("CIPHERSWARM_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Distributed = true
	}
	if v := os.Getenv("CIPHERSWARM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AgentOfflineDuration, TaskAbandonDuration, and friends expose the int
// seconds and days fields as time.Duration for callers building
// maintenance.Config.
func (c *Config) AgentOfflineDuration() time.Duration {
	return time.Duration(c.AgentOfflineSeconds) * time.Second
}

func (c *Config) TaskAbandonDuration() time.Duration {
	return time.Duration(c.TaskAbandonSeconds) * time.Second
}

func (c *Config) RetentionAgentErrorsDuration() time.Duration {
	return time.Duration(c.RetentionAgentErrorsDays) * 24 * time.Hour
}

func (c *Config) RetentionAuditDuration() time.Duration {
	return time.Duration(c.RetentionAuditDays) * 24 * time.Hour
}
