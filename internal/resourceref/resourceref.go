// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

// Package resourceref resolves attack resource references (wordlists,
// rulelists, charsets) to downloadable locations without owning storage,
// grounded on api/api_public_blockchain.go's Backend-interface pattern:
// API handlers reach a capability through a narrow interface rather than
// the concrete implementation behind it.
package resourceref

import (
	"context"

	uuid "github.com/satori/go.uuid"
)

// Resolved is what a resource reference turns into at the boundary: a
// presigned download location plus whether the requesting project may use
// it, Attack invariant ("resources referenced must be readable
// by agents in the owning project").
type Resolved struct {
	DownloadURL string
	Checksum    string
	Readable    bool
}

// Resolver turns a resource ID into a Resolved location. Production
// implementations live outside this repository (e.g. backed by an object
// store's presigned-URL API); the core only consumes the interface.
type Resolver interface {
	Resolve(ctx context.Context, resourceID uuid.UUID, projectID uuid.UUID) (*Resolved, error)
}
