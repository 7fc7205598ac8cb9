package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/allegro-webapi/internal/crypto"
	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/limiter"
)

type account struct {
	userID  int64
	country int
	salt    []byte
	digest  []byte
}

// Auth checks WebAPI keys and credentials and issues session handles.
// Handles are HS256 JWTs whose subject is the WebAPI user id.
type Auth struct {
	keys     map[string]struct{}
	accounts map[string]account
	signKey  []byte
	ttl      time.Duration
	lim      limiter.Limiter
	now      func() time.Time
}

// NewAuth derives argon2 digests for every fixture account. A ttl <= 0 issues
// handles without expiry, which matches a client that never logs in again.
func NewAuth(f *Fixtures, signKey []byte, ttl time.Duration, lim limiter.Limiter) (*Auth, error) {
	if len(signKey) == 0 {
		return nil, fmt.Errorf("%w: signing key required", errs.ErrConfiguration)
	}
	a := &Auth{
		keys:     make(map[string]struct{}, len(f.WebAPIKeys)),
		accounts: make(map[string]account, len(f.Accounts)),
		signKey:  signKey,
		ttl:      ttl,
		lim:      lim,
		now:      time.Now,
	}
	for _, k := range f.WebAPIKeys {
		a.keys[k] = struct{}{}
	}
	for _, fa := range f.Accounts {
		hash := fa.PasswordHash
		if hash == "" {
			hash = crypto.WebAPIHash(fa.Password)
		}
		salt, err := crypto.RandBytes(16)
		if err != nil {
			return nil, err
		}
		a.accounts[fa.Login] = account{
			userID:  fa.UserID,
			country: fa.CountryID,
			salt:    salt,
			digest:  crypto.HashPassword([]byte(hash), salt),
		}
	}
	return a, nil
}

// CheckKey reports whether key is a known webapiKey.
func (a *Auth) CheckKey(key string) error {
	if _, ok := a.keys[key]; !ok {
		return fmt.Errorf("%w: unknown webapi key", errs.ErrUnauthorized)
	}
	return nil
}

// Login verifies a doLoginEnc request from peer and returns a session handle.
func (a *Auth) Login(ctx context.Context, login, passHash string, country int, peer string) (string, int64, error) {
	peerHash := limiter.HashPeer(peer)
	if a.lim != nil {
		allowed, _, err := a.lim.Allow(ctx, login, peerHash)
		if err != nil {
			return "", 0, err
		}
		if !allowed {
			return "", 0, errs.ErrRateLimited
		}
	}

	acc, ok := a.accounts[login]
	if !ok || acc.country != country || !crypto.VerifyPassword([]byte(passHash), acc.salt, acc.digest) {
		if a.lim != nil {
			if blocked, _, ferr := a.lim.Failure(ctx, login, peerHash); ferr == nil && blocked {
				return "", 0, errs.ErrRateLimited
			}
		}
		return "", 0, errs.ErrUnauthorized
	}
	if a.lim != nil {
		_ = a.lim.Success(ctx, login, peerHash)
	}

	handle, err := a.issue(acc.userID)
	if err != nil {
		return "", 0, err
	}
	return handle, acc.userID, nil
}

func (a *Auth) issue(userID int64) (string, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		ID:       jti.String(),
		Subject:  strconv.FormatInt(userID, 10),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signKey)
}

// Verify validates a session handle and returns its user id.
func (a *Auth) Verify(handle string) (int64, error) {
	if handle == "" {
		return 0, fmt.Errorf("%w: no session handle", errs.ErrUnauthorized)
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(handle, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.signKey, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("%w: invalid session handle", errs.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}
