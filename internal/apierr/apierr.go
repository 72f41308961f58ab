// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package apierr implements the error taxonomy: services return typed
// results, and exactly one place (agentapi.translate) turns a Kind into an
// HTTP status.
package apierr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a service failure so the REST layer can map it to an
// HTTP status in one place.
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindInvalidTransition Kind = "InvalidTransition"
	KindValidation        Kind = "ValidationError"
	KindAuthFailure       Kind = "AuthFailure"
	KindConflict          Kind = "Conflict"
	KindTimeout           Kind = "Timeout"
	KindDependency        Kind = "Dependency"
	KindInternal          Kind = "Internal"
)

// Detail is one field-level validation message.
type Detail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is the typed result every service method returns on failure.
type Error struct {
	Kind    Kind
	Msg     string
	Details []Detail
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// New constructs a typed error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a typed kind to an underlying cause, stack-annotated via
// pkg/errors.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, cause: pkgerrors.Wrap(cause, msg)}
}

// WithDetails attaches field-level validation messages.
func (e *Error) WithDetails(d ...Detail) *Error {
	e.Details = append(e.Details, d...)
	return e
}

// NotFound, Validation, Conflict, etc. are convenience constructors used
// pervasively at service call sites.
func NotFound(msg string) *Error          { return New(KindNotFound, msg) }
func InvalidTransition(msg string) *Error { return New(KindInvalidTransition, msg) }
func Validation(msg string) *Error        { return New(KindValidation, msg) }
func AuthFailure(msg string) *Error       { return New(KindAuthFailure, msg) }
func Conflict(msg string) *Error          { return New(KindConflict, msg) }
func Timeout(msg string) *Error           { return New(KindTimeout, msg) }
func Dependency(msg string) *Error        { return New(KindDependency, msg) }
func Internal(msg string) *Error          { return New(KindInternal, msg) }

// As attempts to extract an *Error from an arbitrary error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
