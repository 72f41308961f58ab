// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package agentapi implements the agent-facing REST handlers over the
// frozen wire contract: a Server struct wrapping the service layer,
// translated from an RPC-method-dispatch style to julienschmidt/httprouter
// REST routes.
package agentapi

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	uuid "github.com/satori/go.uuid"

	"github.com/unclesp1d3r/cipherswarm/internal/assignment"
	"github.com/unclesp1d3r/cipherswarm/internal/crackservice"
	d "github.com/unclesp1d3r/cipherswarm/internal/domain"
	"github.com/unclesp1d3r/cipherswarm/internal/eta"
	"github.com/unclesp1d3r/cipherswarm/internal/log"
	"github.com/unclesp1d3r/cipherswarm/internal/resourceref"
	"github.com/unclesp1d3r/cipherswarm/internal/statusservice"
	"github.com/unclesp1d3r/cipherswarm/internal/store"
)

var logger = log.NewModuleLogger(log.AgentAPI)

// Server wires the service layer into the REST surface.
type Server struct {
	store      *store.Store
	crack      *crackservice.Service
	status     *statusservice.Service
	assign     *assignment.Service
	eta        *eta.Calculator
	resolver   resourceref.Resolver
	RouteTimeout time.Duration
}

// Config constructs a Server.
type Config struct {
	Store        *store.Store
	Crack        *crackservice.Service
	Status       *statusservice.Service
	Assign       *assignment.Service
	ETA          *eta.Calculator
	Resolver     resourceref.Resolver
	RouteTimeout time.Duration
}

// New builds a Server from cfg.
func New(cfg Config) *Server {
	timeout := cfg.RouteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		store: cfg.Store, crack: cfg.Crack, status: cfg.Status, assign: cfg.Assign,
		eta: cfg.ETA, resolver: cfg.Resolver, RouteTimeout: timeout,
	}
}

// Handler returns the full http.Handler: middleware chain wrapping the
// route table (recover -> request-id -> CORS -> auth -> deadline ->
// handler).
func (s *Server) Handler() http.Handler {
	r := httprouter.New()

	r.GET("/api/v1/client/configuration", s.auth(s.handleConfiguration))
	r.GET("/api/v1/client/agents/:id", s.auth(s.handleGetAgent))
	r.PUT("/api/v1/client/agents/:id", s.auth(s.handleUpdateAgent))
	r.POST("/api/v1/client/agents/:id/heartbeat", s.auth(s.handleHeartbeat))
	r.POST("/api/v1/client/agents/:id/submit_benchmark", s.auth(s.handleSubmitBenchmark))
	r.POST("/api/v1/client/agents/:id/submit_error", s.auth(s.handleSubmitError))
	r.POST("/api/v1/client/agents/:id/shutdown", s.auth(s.handleShutdown))
	r.GET("/api/v1/client/crackers/check_for_cracker_update", s.auth(s.handleCheckForCrackerUpdate))
	r.GET("/api/v1/client/attacks/:id", s.auth(s.handleGetAttack))
	r.GET("/api/v1/client/attacks/:id/hash_list", s.auth(s.handleAttackHashList))
	r.GET("/api/v1/client/tasks/new", s.auth(s.handleNewTask))
	r.GET("/api/v1/client/tasks/:id", s.auth(s.handleGetTask))
	r.POST("/api/v1/client/tasks/:id/accept_task", s.auth(s.handleAcceptTask))
	r.POST("/api/v1/client/tasks/:id/exhausted", s.auth(s.handleExhausted))
	r.POST("/api/v1/client/tasks/:id/abandon", s.auth(s.handleAbandon))
	r.GET("/api/v1/client/tasks/:id/get_zaps", s.auth(s.handleGetZaps))
	r.POST("/api/v1/client/tasks/:id/submit_crack", s.auth(s.handleSubmitCrack))
	r.POST("/api/v1/client/tasks/:id/submit_status", s.auth(s.handleSubmitStatus))

	return s.recoverMiddleware(s.requestIDMiddleware(cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PUT"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)))
}

// agentFromContext is the key used to stash the authenticated agent.
type ctxKey string

const agentCtxKey ctxKey = "agent"

func agentFromContext(ctx context.Context) *d.Agent {
	a, _ := ctx.Value(agentCtxKey).(*d.Agent)
	return a
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.FromString(s)
}
