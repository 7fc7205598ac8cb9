package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/model"
	"github.com/and161185/allegro-webapi/internal/rpc"
	"github.com/and161185/allegro-webapi/internal/rpc/rpctest"
)

func newManager(t *testing.T, inv rpc.Invoker, creds model.Credentials) *Manager {
	t.Helper()
	m, err := NewManager(inv, Config{WebAPIKey: "key", CountryCode: 1, Credentials: creds},
		WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	inv := rpctest.WebAPI()
	creds := model.Credentials{Login: "u", Password: "p"}

	cases := []struct {
		name string
		inv  rpc.Invoker
		cfg  Config
	}{
		{"no invoker", nil, Config{WebAPIKey: "k", CountryCode: 1, Credentials: creds}},
		{"no key", inv, Config{CountryCode: 1, Credentials: creds}},
		{"no country", inv, Config{WebAPIKey: "k", Credentials: creds}},
		{"no login", inv, Config{WebAPIKey: "k", CountryCode: 1, Credentials: model.Credentials{Password: "p"}}},
		{"no password", inv, Config{WebAPIKey: "k", CountryCode: 1, Credentials: model.Credentials{Login: "u"}}},
	}
	for _, tc := range cases {
		_, err := NewManager(tc.inv, tc.cfg)
		require.ErrorIs(t, err, errs.ErrConfiguration, tc.name)
	}
}

func TestEnsureAuthenticated_StatusBeforeLogin(t *testing.T) {
	t.Parallel()

	inv := rpctest.WebAPI()
	m := newManager(t, inv, model.Credentials{Login: "testuser", Password: "password"})
	require.Equal(t, Unauthenticated, m.State())

	s, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.Equal(t, "session1", s.Handle)
	require.Equal(t, int64(1), s.UserID)
	require.Equal(t, Authenticated, m.State())

	require.Equal(t, []string{rpc.OpQuerySysStatus, rpc.OpLoginEnc}, inv.Order())
	require.Equal(t, rpc.Params{
		"userLogin":        "testuser",
		"userHashPassword": "XohImNooBHFR0OVvjcYpJ3NgPQ1qq73WKhHvch0VQtg=",
		"countryCode":      1,
		"webapiKey":        "key",
		"localVersion":     int64(123456),
	}, inv.Calls(rpc.OpLoginEnc)[0])
}

func TestEnsureAuthenticated_StatusCarriesKeyAndCountry(t *testing.T) {
	t.Parallel()

	var status rpc.Params
	inv := rpc.InvokerFunc(func(_ context.Context, op string, params rpc.Params) (rpc.Result, error) {
		switch op {
		case rpc.OpQuerySysStatus:
			status = params.Clone()
			return rpc.Result{"verKey": 77}, nil
		case rpc.OpLoginEnc:
			if params["localVersion"] != int64(77) {
				return nil, errors.New("stale localVersion")
			}
			return rpc.Result{"sessionHandlePart": "h", "userId": 9}, nil
		}
		return nil, errors.New("unexpected " + op)
	})
	m, err := NewManager(inv, Config{WebAPIKey: "key", CountryCode: 56, Credentials: model.Credentials{Login: "u", Password: "p"}})
	require.NoError(t, err)

	s, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.Session{Handle: "h", UserID: 9, ValidFrom: s.ValidFrom}, s)
	require.Equal(t, rpc.Params{"countryId": 56, "webapiKey": "key"}, status)
}

func TestEnsureAuthenticated_PasswordHashPassThrough(t *testing.T) {
	t.Parallel()

	inv := rpctest.WebAPI()
	m := newManager(t, inv, model.Credentials{Login: "testuser", PasswordHash: "passwordHash"})

	_, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.Equal(t, "passwordHash", inv.Calls(rpc.OpLoginEnc)[0]["userHashPassword"])
	require.Equal(t, 1, inv.Count(rpc.OpQuerySysStatus))
}

func TestEnsureAuthenticated_CustomHasher(t *testing.T) {
	t.Parallel()

	inv := rpctest.WebAPI()
	m, err := NewManager(inv, Config{
		WebAPIKey:   "key",
		CountryCode: 1,
		Credentials: model.Credentials{Login: "u", Password: "secret"},
		Hasher:      func(p string) string { return "h:" + p },
	})
	require.NoError(t, err)

	_, err = m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.Equal(t, "h:secret", inv.Calls(rpc.OpLoginEnc)[0]["userHashPassword"])
}

func TestEnsureAuthenticated_ConcurrentCallersShareOneLogin(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	inv := rpctest.WebAPI().
		Handle(rpc.OpLoginEnc, func(context.Context, rpc.Params) (rpc.Result, error) {
			<-release
			return rpc.Result{"sessionHandlePart": "session1", "userId": 1}, nil
		}).
		Return(rpc.OpShowItemInfoExt, rpc.Result{"itemListInfoExt": rpc.Result{"itId": 1}})
	m := newManager(t, inv, model.Credentials{Login: "u", Password: "p"})

	const n = 16
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Call(context.Background(), rpc.OpShowItemInfoExt, rpc.Params{"itemId": 1})
			errCh <- err
		}()
	}

	require.Eventually(t, func() bool { return m.State() == Authenticating }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	require.Equal(t, 1, inv.Count(rpc.OpQuerySysStatus))
	require.Equal(t, 1, inv.Count(rpc.OpLoginEnc))
	calls := inv.Calls(rpc.OpShowItemInfoExt)
	require.Len(t, calls, n)
	for _, p := range calls {
		require.Equal(t, "session1", p[rpc.KeySessionHandle])
	}
}

func TestEnsureAuthenticated_FailureReachesAllWaitersAndIsRetryable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	boom := errors.New("bad credentials")
	inv := rpctest.WebAPI().
		Handle(rpc.OpLoginEnc, func(context.Context, rpc.Params) (rpc.Result, error) {
			<-release
			return nil, boom
		})
	m := newManager(t, inv, model.Credentials{Login: "u", Password: "p"})

	const n = 4
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.EnsureAuthenticated(context.Background())
			errCh <- err
		}()
	}
	require.Eventually(t, func() bool { return m.State() == Authenticating }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.ErrorIs(t, err, errs.ErrAuthentication)
		require.ErrorIs(t, err, boom)
	}
	// a goroutine scheduled after the failed attempt starts its own; each
	// attempt still pairs one status check with one login
	logins := inv.Count(rpc.OpLoginEnc)
	require.GreaterOrEqual(t, logins, 1)
	require.Equal(t, logins, inv.Count(rpc.OpQuerySysStatus))
	require.Equal(t, Unauthenticated, m.State())
	_, ok := m.Session()
	require.False(t, ok)

	inv.Return(rpc.OpLoginEnc, rpc.Result{"sessionHandlePart": "session2", "userId": 1})
	s, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.Equal(t, "session2", s.Handle)
	require.Equal(t, logins+1, inv.Count(rpc.OpQuerySysStatus))
	require.Equal(t, logins+1, inv.Count(rpc.OpLoginEnc))
}

func TestEnsureAuthenticated_StatusFailureSkipsLogin(t *testing.T) {
	t.Parallel()

	inv := rpctest.WebAPI().Fail(rpc.OpQuerySysStatus, errors.New("maintenance"))
	m := newManager(t, inv, model.Credentials{Login: "u", Password: "p"})

	_, err := m.Call(context.Background(), rpc.OpShowUser, rpc.Params{"userId": 1})
	require.ErrorIs(t, err, errs.ErrAuthentication)
	require.NotErrorIs(t, err, errs.ErrRPC)
	require.Zero(t, inv.Count(rpc.OpLoginEnc))
	require.Zero(t, inv.Count(rpc.OpShowUser))
}

func TestEnsureAuthenticated_EmptyHandleIsAuthError(t *testing.T) {
	t.Parallel()

	inv := rpctest.WebAPI().Return(rpc.OpLoginEnc, rpc.Result{"userId": 1})
	m := newManager(t, inv, model.Credentials{Login: "u", Password: "p"})

	_, err := m.EnsureAuthenticated(context.Background())
	require.ErrorIs(t, err, errs.ErrAuthentication)
}

func TestEnsureAuthenticated_CancelledWaiterDoesNotAbortLogin(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	inv := rpctest.WebAPI().
		Handle(rpc.OpLoginEnc, func(ctx context.Context, _ rpc.Params) (rpc.Result, error) {
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return rpc.Result{"sessionHandlePart": "session1", "userId": 1}, nil
		})
	m := newManager(t, inv, model.Credentials{Login: "u", Password: "p"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.EnsureAuthenticated(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return m.State() == Authenticating }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	s, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.Equal(t, "session1", s.Handle)
	require.Equal(t, 1, inv.Count(rpc.OpLoginEnc))
}

func TestCall_SessionKeyPerOperationAndParamsUntouched(t *testing.T) {
	t.Parallel()

	inv := rpctest.WebAPI().
		Return(rpc.OpGetCategoryPath, rpc.Result{}).
		Return(rpc.OpGetSiteJournal, rpc.Result{})
	m := newManager(t, inv, model.Credentials{Login: "u", Password: "p"})

	params := rpc.Params{"categoryId": 2}
	_, err := m.Call(context.Background(), rpc.OpGetCategoryPath, params)
	require.NoError(t, err)
	require.Equal(t, rpc.Params{"sessionId": "session1", "categoryId": 2}, inv.Calls(rpc.OpGetCategoryPath)[0])
	require.Equal(t, rpc.Params{"categoryId": 2}, params)

	_, err = m.Call(context.Background(), rpc.OpGetSiteJournal, rpc.Params{"infoType": 1})
	require.NoError(t, err)
	require.Equal(t, rpc.Params{"sessionHandle": "session1", "infoType": 1}, inv.Calls(rpc.OpGetSiteJournal)[0])
	require.Equal(t, 1, inv.Count(rpc.OpLoginEnc))
}

func TestCall_RPCErrorKeepsSession(t *testing.T) {
	t.Parallel()

	boom := errors.New("item not found")
	inv := rpctest.WebAPI().Fail(rpc.OpShowItemInfoExt, boom)
	m := newManager(t, inv, model.Credentials{Login: "u", Password: "p"})

	_, err := m.Call(context.Background(), rpc.OpShowItemInfoExt, rpc.Params{"itemId": 1})
	require.ErrorIs(t, err, errs.ErrRPC)
	require.ErrorIs(t, err, boom)
	require.Equal(t, Authenticated, m.State())

	_, err = m.Call(context.Background(), rpc.OpShowItemInfoExt, rpc.Params{"itemId": 2})
	require.ErrorIs(t, err, errs.ErrRPC)
	require.Equal(t, 1, inv.Count(rpc.OpLoginEnc))
}

func TestSession_ValidFromUsesClock(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(rpctest.WebAPI(), Config{
		WebAPIKey:   "key",
		CountryCode: 1,
		Credentials: model.Credentials{Login: "u", Password: "p"},
	}, WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	s, err := m.EnsureAuthenticated(context.Background())
	require.NoError(t, err)
	require.Equal(t, at, s.ValidFrom)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "unauthenticated", Unauthenticated.String())
	require.Equal(t, "authenticating", Authenticating.String())
	require.Equal(t, "authenticated", Authenticated.String())
}
