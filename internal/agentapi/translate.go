// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package agentapi

import (
	"encoding/json"
	"net/http"

	"github.com/unclesp1d3r/cipherswarm/internal/apierr"
)

// envelope is the compact JSON shape agents see on error.
type envelope struct {
	Error   string          `json:"error"`
	Details []apierr.Detail `json:"details,omitempty"`
}

// translate is the one place a *apierr.Error becomes an HTTP status, per
// "handlers translate to HTTP" policy.
func translate(err error) (int, envelope) {
	e, ok := apierr.As(err)
	if !ok {
		return http.StatusInternalServerError, envelope{Error: "internal error"}
	}
	status := http.StatusInternalServerError
	switch e.Kind {
	case apierr.KindNotFound:
		status = http.StatusNotFound
	case apierr.KindInvalidTransition, apierr.KindValidation:
		status = http.StatusUnprocessableEntity
	case apierr.KindAuthFailure:
		status = http.StatusUnauthorized
	case apierr.KindConflict:
		status = http.StatusConflict
	case apierr.KindTimeout:
		status = http.StatusGatewayTimeout
	case apierr.KindDependency:
		status = http.StatusServiceUnavailable
	case apierr.KindInternal:
		status = http.StatusInternalServerError
	}
	return status, envelope{Error: e.Msg, Details: e.Details}
}

func writeAPIError(w http.ResponseWriter, err error) {
	status, env := translate(err)
	writeJSON(w, status, env)
}

func writeError(w http.ResponseWriter, status int, msg string, details []apierr.Detail) {
	writeJSON(w, status, envelope{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
