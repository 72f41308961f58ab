// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package agentapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	uuid "github.com/satori/go.uuid"
)

// requestIDCtxKey stores a per-request correlation ID, included in the
// structured access log line.
const requestIDCtxKey ctxKey = "request_id"

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", "recover", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewV4().String()
		ctx := context.WithValue(r.Context(), requestIDCtxKey, reqID)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logger.Info("request", "route", r.URL.Path, "method", r.Method,
			"request_id", reqID, "latency_ms", time.Since(start).Milliseconds())
	})
}

// auth resolves the bearer token ("csa_<agent_id>_<opaque>"),
// attaches the Agent and a deadline to the request context, then runs
// handle. A missing/unknown token short-circuits with 401.
func (s *Server) auth(handle func(http.ResponseWriter, *http.Request, httprouter.Params)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		authz := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authz, "Bearer ")
		if token == "" || !strings.HasPrefix(token, "csa_") {
			writeError(w, http.StatusUnauthorized, "missing or malformed bearer token", nil)
			return
		}

		agent, err := s.store.Read(r.Context()).GetAgentByToken(token)
		if err != nil {
			writeAPIError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.RouteTimeout)
		defer cancel()
		ctx = context.WithValue(ctx, agentCtxKey, agent)
		handle(w, r.WithContext(ctx), ps)
	}
}
