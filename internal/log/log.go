// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package log provides the module-scoped structured logger used throughout
// the control plane. It wraps go.uber.org/zap behind log.NewModuleLogger(module).
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module names, one per package that calls NewModuleLogger.
const (
	Store       = "store"
	Assignment  = "assignment"
	Preemption  = "preemption"
	Crack       = "crack"
	Status      = "status"
	ETA         = "eta"
	Maintenance = "maintenance"
	AgentAPI    = "agentapi"
	Health      = "health"
	Cache       = "cache"
	Audit       = "audit"
	Daemon      = "cipherswarmd"
)

var (
	base     *zap.Logger
	baseOnce sync.Once
)

func root() *zap.Logger {
	baseOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if os.Getenv("CIPHERSWARM_LOG_DEV") != "" {
			l, _ := zap.NewDevelopment()
			base = l
			return
		}
		l, err := cfg.Build()
		if err != nil {
			base = zap.NewNop()
			return
		}
		base = l
	})
	return base
}

// Logger is the handle returned by NewModuleLogger. It exposes a
// key/value varargs calling convention (logger.Error("message", "key", value,...)).
type Logger struct {
	z *zap.SugaredLogger
}

// NewModuleLogger returns a logger tagged with the given module name,
// matching the call-site shape `var logger = log.NewModuleLogger(log.Store)`.
func NewModuleLogger(module string) *Logger {
	return &Logger{z: root().Sugar().With("module", module)}
}

// NewWith returns a derived logger carrying additional key/value context
// (logger.NewWith("state", c.state)).
func (l *Logger) NewWith(kv ...interface{}) *Logger {
	return &Logger{z: l.z.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }
func (l *Logger) Crit(msg string, kv ...interface{}) {
	l.z.Errorw(msg, kv...)
	os.Exit(1)
}

// Sync flushes buffered log entries; call during graceful shutdown.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
