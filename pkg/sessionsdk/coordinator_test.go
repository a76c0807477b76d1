package sessionsdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

type scriptedRenew struct {
	calls   atomic.Int32
	release chan struct{}
	result  Session
	err     error
}

func (s *scriptedRenew) renew(ctx context.Context, refreshToken string) (Session, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return Session{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func newTestCoordinator(t *testing.T, store tokenstore.Store, r *scriptedRenew) *RefreshCoordinator {
	t.Helper()

	m, err := newMetrics(nil)
	require.NoError(t, err)

	return &RefreshCoordinator{
		store:   store,
		renew:   r.renew,
		timeout: time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: m,
	}
}

func TestCoordinatorSingleFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(ctx, Session{AccessToken: "a0", RefreshToken: "r0"}))

	r := &scriptedRenew{
		release: make(chan struct{}),
		result:  Session{AccessToken: "a1", RefreshToken: "r1"},
	}
	rc := newTestCoordinator(t, store, r)

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = rc.Refresh(ctx, "a0")
		}()
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(r.release)
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		require.Equal(t, "a1", results[i])
	}
	require.EqualValues(t, 1, r.calls.Load())

	got, ok := store.Read(ctx)
	require.True(t, ok)
	require.Equal(t, Session{AccessToken: "a1", RefreshToken: "r1"}, got)
}

func TestCoordinatorReusesNewerToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(ctx, Session{AccessToken: "a1", RefreshToken: "r1"}))

	r := &scriptedRenew{}
	rc := newTestCoordinator(t, store, r)

	tok, err := rc.Refresh(ctx, "a0")
	require.NoError(t, err)
	require.Equal(t, "a1", tok)
	require.Zero(t, r.calls.Load())
}

func TestCoordinatorFailureClearsSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(ctx, Session{AccessToken: "a0", RefreshToken: "r0"}))

	cause := &AuthError{Op: "refresh", StatusCode: 401, Message: "revoked"}
	r := &scriptedRenew{err: cause}
	rc := newTestCoordinator(t, store, r)

	var invalid atomic.Int32
	rc.onInvalid = func(error) { invalid.Add(1) }

	_, err := rc.Refresh(ctx, "a0")
	require.ErrorIs(t, err, ErrSessionInvalid)

	var rerr *RefreshError
	require.ErrorAs(t, err, &rerr)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "revoked", authErr.Message)

	_, ok := store.Read(ctx)
	require.False(t, ok)
	require.EqualValues(t, 1, invalid.Load())

	// Later callers find no session and never reach the network.
	_, err = rc.Refresh(ctx, "a0")
	require.ErrorIs(t, err, ErrSessionInvalid)
	require.EqualValues(t, 1, r.calls.Load())
	require.EqualValues(t, 1, invalid.Load())
}

func TestCoordinatorWaiterCancellationDoesNotCancelRefresh(t *testing.T) {
	t.Parallel()

	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(context.Background(), Session{AccessToken: "a0", RefreshToken: "r0"}))

	r := &scriptedRenew{
		release: make(chan struct{}),
		result:  Session{AccessToken: "a1", RefreshToken: "r1"},
	}
	rc := newTestCoordinator(t, store, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rc.Refresh(ctx, "a0")
	require.ErrorIs(t, err, context.Canceled)

	close(r.release)
	require.Eventually(t, func() bool {
		s, ok := store.Read(context.Background())
		return ok && s.AccessToken == "a1"
	}, time.Second, time.Millisecond)
}

func TestCoordinatorLogoutDuringRefresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(ctx, Session{AccessToken: "a0", RefreshToken: "r0"}))

	r := &scriptedRenew{
		release: make(chan struct{}),
		result:  Session{AccessToken: "a1", RefreshToken: "r1"},
	}
	rc := newTestCoordinator(t, store, r)

	done := make(chan error, 1)
	go func() {
		_, err := rc.Refresh(ctx, "a0")
		done <- err
	}()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, store.Clear(ctx))
	close(r.release)

	require.ErrorIs(t, <-done, ErrSessionInvalid)
	_, ok := store.Read(ctx)
	require.False(t, ok, "refresh must not resurrect a logged out session")
}

func TestCoordinatorFailedRefreshKeepsNewerSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("login while on the wire", func(t *testing.T) {
		store := tokenstore.NewMemory()
		require.NoError(t, store.Write(ctx, Session{AccessToken: "a0", RefreshToken: "r0"}))

		r := &scriptedRenew{
			release: make(chan struct{}),
			err:     &AuthError{Op: "refresh", StatusCode: 401, Message: "revoked"},
		}
		rc := newTestCoordinator(t, store, r)

		var invalid atomic.Int32
		rc.onInvalid = func(error) { invalid.Add(1) }

		type result struct {
			tok string
			err error
		}
		done := make(chan result, 1)
		go func() {
			tok, err := rc.Refresh(ctx, "a0")
			done <- result{tok, err}
		}()

		require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
		require.NoError(t, store.Write(ctx, Session{AccessToken: "new-a", RefreshToken: "new-r"}))
		close(r.release)

		res := <-done
		require.NoError(t, res.err)
		require.Equal(t, "new-a", res.tok)

		got, ok := store.Read(ctx)
		require.True(t, ok, "a failed refresh must not erase a newer login")
		require.Equal(t, Session{AccessToken: "new-a", RefreshToken: "new-r"}, got)
		require.Zero(t, invalid.Load())
	})

	t.Run("logout while on the wire", func(t *testing.T) {
		store := tokenstore.NewMemory()
		require.NoError(t, store.Write(ctx, Session{AccessToken: "a0", RefreshToken: "r0"}))

		r := &scriptedRenew{
			release: make(chan struct{}),
			err:     errors.New("connection reset"),
		}
		rc := newTestCoordinator(t, store, r)

		var invalid atomic.Int32
		rc.onInvalid = func(error) { invalid.Add(1) }

		done := make(chan error, 1)
		go func() {
			_, err := rc.Refresh(ctx, "a0")
			done <- err
		}()

		require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
		require.NoError(t, store.Clear(ctx))
		close(r.release)

		require.ErrorIs(t, <-done, ErrSessionInvalid)
		require.Zero(t, invalid.Load(), "the user logged out, the session was not lost")
	})
}

func TestSameOrigin(t *testing.T) {
	t.Parallel()

	origin, err := url.Parse("https://API.example.com/v1")
	require.NoError(t, err)

	tests := []struct {
		target string
		want   bool
	}{
		{"https://api.example.com/api/orders", true},
		{"https://api.example.com:443/api/orders", true},
		{"HTTPS://api.example.com/x", true},
		{"http://api.example.com/api/orders", false},
		{"https://api.example.com:8443/api/orders", false},
		{"https://evil.example.com/api/orders", false},
		{"https://api.example.com.evil.test/", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			u, err := url.Parse(tt.target)
			require.NoError(t, err)
			require.Equal(t, tt.want, sameOrigin(origin, u))
		})
	}

	require.False(t, sameOrigin(nil, origin))
}

func TestCoordinatorTimeoutIsFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(ctx, Session{AccessToken: "a0", RefreshToken: "r0"}))

	r := &scriptedRenew{release: make(chan struct{})}
	t.Cleanup(func() { close(r.release) })

	rc := newTestCoordinator(t, store, r)
	rc.timeout = 20 * time.Millisecond

	_, err := rc.Refresh(ctx, "a0")
	require.ErrorIs(t, err, ErrSessionInvalid)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	_, ok := store.Read(ctx)
	require.False(t, ok)
}

func TestCoordinatorStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(ctx, Session{AccessToken: "a0", RefreshToken: "r0"}))

	r := &scriptedRenew{
		release: make(chan struct{}),
		result:  Session{AccessToken: "a1", RefreshToken: "r1"},
	}
	rc := newTestCoordinator(t, store, r)

	rc.Start("a0")
	rc.Start("a0")

	// A waiter joins the background flight.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(r.release)
	}()
	tok, err := rc.Refresh(ctx, "a0")
	require.NoError(t, err)
	require.Equal(t, "a1", tok)
	require.EqualValues(t, 1, r.calls.Load())
}
