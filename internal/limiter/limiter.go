// Package limiter throttles repeated failed logins.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, login string, peerHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, login string, peerHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, login string, peerHash []byte) (bool, time.Duration, error)
}

// HashPeer returns a stable hash for a peer address so raw addresses are not kept.
func HashPeer(addr string) []byte {
	h := sha256.Sum256([]byte(addr))
	return h[:]
}
