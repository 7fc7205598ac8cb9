package limiter

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	fails        int
	updatedAt    time.Time
	blockedUntil time.Time
}

// Memory is an in-process Limiter with a sliding failure window and lockout.
type Memory struct {
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time

	mu   sync.Mutex
	byID map[string]*counter
}

// NewMemory constructs a limiter that blocks for blockFor after maxFails
// failures within window.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
		byID:     map[string]*counter{},
	}
}

func key(login string, peerHash []byte) string { return login + "\x00" + string(peerHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, login string, peerHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.byID[key(login, peerHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); c.blockedUntil.After(now) {
		return false, c.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (login, peer).
func (l *Memory) Success(_ context.Context, login string, peerHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byID, key(login, peerHash))
	return nil
}

// Failure records a failed attempt and blocks once maxFails is reached.
func (l *Memory) Failure(_ context.Context, login string, peerHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := key(login, peerHash)
	c, ok := l.byID[k]
	if !ok || now.Sub(c.updatedAt) > l.window {
		c = &counter{}
		l.byID[k] = c
	}
	c.fails++
	c.updatedAt = now
	if c.fails >= l.maxFails {
		c.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
