// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across client, session and gateway layers.
var (
	// ErrConfiguration indicates a missing or invalid construction parameter.
	ErrConfiguration = errors.New("configuration error")

	// ErrClientRequired is returned when a model is built without a client to resolve references.
	ErrClientRequired = fmt.Errorf("%w: client instance required", ErrConfiguration)

	// ErrAuthentication indicates the status check or login exchange failed.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRPC indicates a privileged call failed after the session was established.
	ErrRPC = errors.New("rpc call failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates bad credentials or an unknown session handle.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates too many failed logins from one peer.
	ErrRateLimited = errors.New("rate limited")

	// ErrVersionMismatch indicates the client declared a stale protocol version key.
	ErrVersionMismatch = errors.New("version key mismatch")
)
