// Copyright 2026 The CipherSwarm Authors
// This file is part of the cipherswarm library.
//
// Licensed under the GNU Lesser General Public License, Version 3.

package resourceref

import (
	"context"
	"fmt"

	uuid "github.com/satori/go.uuid"
)

// StaticResolver is a no-op/test double: every resource resolves to a
// deterministic placeholder URL and is always readable. Useful for tests
// and for local development without a real object store configured.
type StaticResolver struct {
	BaseURL string
}

// Resolve implements Resolver.
func (s *StaticResolver) Resolve(_ context.Context, resourceID, _ uuid.UUID) (*Resolved, error) {
	base := s.BaseURL
	if base == "" {
		base = "http://localhost/resources"
	}
	return &Resolved{
		DownloadURL: fmt.Sprintf("%s/%s", base, resourceID),
		Checksum:    "",
		Readable:    true,
	}, nil
}
