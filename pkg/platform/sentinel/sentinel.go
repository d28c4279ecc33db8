package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the identity-provider
// adapter return these (optionally wrapped) so services can translate them
// into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist in the store it was asked of
// - ErrConflict: a uniqueness constraint (email, natural key) already holds
// - ErrInvalidState: entity in the wrong lifecycle state for the operation
// - ErrUnavailable: a backend (either database, redis, identity provider)
//   is unreachable; the whole invocation should fail and be retried
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
