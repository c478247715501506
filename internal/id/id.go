// Package id wraps correlation-ID generation so callers depend on an
// interface instead of google/uuid directly.
package id

import "github.com/google/uuid"

// Generator produces opaque unique identifiers, used for run/session
// correlation IDs surfaced in logs and progress events.
type Generator interface {
	New() string
}

// UUIDGenerator generates RFC 4122 v4 identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
