// Package session owns the WebAPI login state and composes privileged calls.
//
// At most one status-check + login exchange is in flight per Manager; callers
// that arrive meanwhile wait for its outcome. Once a session exists it is
// reused until the Manager is discarded.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/allegro-webapi/internal/crypto"
	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/metrics"
	"github.com/and161185/allegro-webapi/internal/model"
	"github.com/and161185/allegro-webapi/internal/rpc"
)

// State is the authentication state of a Manager.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Config carries the account and API identity used for login.
type Config struct {
	WebAPIKey   string
	CountryCode int
	Credentials model.Credentials
	Hasher      crypto.Hasher // nil means crypto.WebAPIHash
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now for Session.ValidFrom.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

const loginKey = "login"

// Manager authenticates lazily and attaches the session handle to privileged calls.
type Manager struct {
	inv      rpc.Invoker
	key      string
	country  int
	login    string
	passHash string
	log      *zap.Logger
	now      func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	sess  *model.Session
	state State
}

// NewManager validates cfg and resolves the password hash once.
func NewManager(inv rpc.Invoker, cfg Config, opts ...Option) (*Manager, error) {
	if inv == nil {
		return nil, fmt.Errorf("%w: rpc invoker is required", errs.ErrConfiguration)
	}
	if cfg.WebAPIKey == "" {
		return nil, fmt.Errorf("%w: webapi key is required", errs.ErrConfiguration)
	}
	if cfg.CountryCode == 0 {
		return nil, fmt.Errorf("%w: country id is required", errs.ErrConfiguration)
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = crypto.WebAPIHash
	}
	m := &Manager{
		inv:      inv,
		key:      cfg.WebAPIKey,
		country:  cfg.CountryCode,
		login:    cfg.Credentials.Login,
		passHash: cfg.Credentials.Resolve(hasher),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// State reports the current authentication state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns the cached session, if any.
func (m *Manager) Session() (model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return model.Session{}, false
	}
	return *m.sess, true
}

// EnsureAuthenticated returns the cached session or joins/starts the single
// login exchange. A caller whose ctx ends stops waiting; the shared exchange
// keeps running for the others.
func (m *Manager) EnsureAuthenticated(ctx context.Context) (model.Session, error) {
	if s, ok := m.Session(); ok {
		return s, nil
	}
	ch := m.group.DoChan(loginKey, func() (any, error) {
		// a previous flight may have finished between the check above and DoChan
		if s, ok := m.Session(); ok {
			return s, nil
		}
		return m.authenticate(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return model.Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.Session{}, res.Err
		}
		return res.Val.(model.Session), nil
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) authenticate(ctx context.Context) (model.Session, error) {
	m.setState(Authenticating)
	start := time.Now()

	s, err := m.loginExchange(ctx)
	metrics.RecordLogin(err == nil)
	if err != nil {
		m.setState(Unauthenticated)
		m.log.Warn("webapi login failed",
			zap.String("login", m.login),
			zap.Duration("dur", time.Since(start)),
			zap.Error(err),
		)
		return model.Session{}, err
	}

	m.mu.Lock()
	m.sess = &s
	m.state = Authenticated
	m.mu.Unlock()

	m.log.Info("webapi session established",
		zap.String("login", m.login),
		zap.Int64("user_id", s.UserID),
		zap.Duration("dur", time.Since(start)),
	)
	return s, nil
}

func (m *Manager) loginExchange(ctx context.Context) (model.Session, error) {
	st, err := m.status(ctx)
	if err != nil {
		return model.Session{}, err
	}
	res, err := m.inv.Invoke(ctx, rpc.OpLoginEnc, rpc.Params{
		"userLogin":        m.login,
		"userHashPassword": m.passHash,
		"countryCode":      m.country,
		"webapiKey":        m.key,
		"localVersion":     st.VerKey,
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %s: %w", errs.ErrAuthentication, rpc.OpLoginEnc, err)
	}
	handle := res.String("sessionHandlePart")
	if handle == "" {
		return model.Session{}, fmt.Errorf("%w: %s: empty session handle", errs.ErrAuthentication, rpc.OpLoginEnc)
	}
	return model.Session{
		Handle:    handle,
		UserID:    res.Int64("userId"),
		ValidFrom: m.now(),
	}, nil
}

func (m *Manager) status(ctx context.Context) (model.ServerStatus, error) {
	res, err := m.inv.Invoke(ctx, rpc.OpQuerySysStatus, rpc.Params{
		"countryId": m.country,
		"webapiKey": m.key,
	})
	if err != nil {
		return model.ServerStatus{}, fmt.Errorf("%w: %s: %w", errs.ErrAuthentication, rpc.OpQuerySysStatus, err)
	}
	return model.ServerStatus{VerKey: res.Int64("verKey"), Info: res.String("info")}, nil
}

// Call authenticates if needed and invokes op with the session handle merged
// into a copy of params under the key op expects.
func (m *Manager) Call(ctx context.Context, op string, params rpc.Params) (rpc.Result, error) {
	s, err := m.EnsureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	p := params.Clone()
	p[rpc.SessionKey(op)] = s.Handle

	start := time.Now()
	res, err := m.inv.Invoke(ctx, op, p)
	metrics.RecordCall(op, err == nil, time.Since(start))
	if err != nil {
		m.log.Debug("webapi call failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrRPC, op, err)
	}
	return res, nil
}
