package sessionsdk

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/dealerdesk/pkg/slogx"
	"github.com/aussiebroadwan/dealerdesk/pkg/tokenstore"
	"golang.org/x/sync/singleflight"
)

// flightKey is the only key used on the group: a client has one session, so
// there is only ever one thing to refresh.
const flightKey = "session"

// RefreshCoordinator makes sure at most one refresh call is in flight per
// client. Every caller that asks while one is running receives its result.
type RefreshCoordinator struct {
	store     tokenstore.Store
	renew     func(ctx context.Context, refreshToken string) (Session, error)
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics
	onInvalid func(error)

	group singleflight.Group
}

// Refresh returns an access token newer than stale, starting a refresh or
// joining the one in flight. ctx only bounds the wait; the refresh itself
// runs to completion under its own timeout so an impatient caller cannot
// cancel it for everyone else.
//
// A failed refresh has already cleared the session; the error matches
// ErrSessionInvalid.
func (rc *RefreshCoordinator) Refresh(ctx context.Context, stale string) (string, error) {
	ch := rc.group.DoChan(flightKey, func() (any, error) {
		return rc.run(stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Start begins a refresh in the background unless one is already running.
func (rc *RefreshCoordinator) Start(stale string) {
	// DoChan's channel is buffered, dropping it leaks nothing.
	rc.group.DoChan(flightKey, func() (any, error) {
		return rc.run(stale)
	})
}

// run is one refresh episode. It executes inside the flight, so only one
// run is active at a time.
func (rc *RefreshCoordinator) run(stale string) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
	defer cancel()
	ctx = slogx.WithContext(ctx, rc.logger)

	// Persisting and clearing must finish even when the refresh ran out the
	// clock.
	persistCtx := context.WithoutCancel(ctx)

	cur, ok := rc.store.Read(ctx)
	if !ok {
		rc.metrics.refreshes.WithLabelValues(outcomeAbsent).Inc()
		return nil, ErrSessionInvalid
	}

	// A previous episode already replaced the token the caller saw.
	if stale != "" && cur.AccessToken != stale {
		rc.metrics.refreshes.WithLabelValues(outcomeReused).Inc()
		return cur.AccessToken, nil
	}

	start := time.Now()
	next, err := rc.renew(ctx, cur.RefreshToken)
	rc.metrics.refreshDuration.Observe(time.Since(start).Seconds())

	// Logout or a fresh login may have replaced the record while the
	// refresh was on the wire; theirs wins whether the refresh worked or not.
	if latest, ok := rc.store.Read(persistCtx); !ok {
		rc.metrics.refreshes.WithLabelValues(outcomeAbsent).Inc()
		return nil, ErrSessionInvalid
	} else if latest.RefreshToken != cur.RefreshToken {
		rc.metrics.refreshes.WithLabelValues(outcomeReused).Inc()
		return latest.AccessToken, nil
	}

	if err != nil {
		rc.metrics.refreshes.WithLabelValues(outcomeFailure).Inc()
		return nil, rc.invalidate(persistCtx, err)
	}

	if err := rc.store.Write(persistCtx, next); err != nil {
		// The new token is still good for this process.
		rc.logger.Error("failed to persist refreshed session", "err", err)
	}

	rc.metrics.refreshes.WithLabelValues(outcomeSuccess).Inc()
	rc.logger.Debug("session refreshed", "took", time.Since(start))
	return next.AccessToken, nil
}

func (rc *RefreshCoordinator) invalidate(ctx context.Context, cause error) error {
	rc.logger.Warn("session refresh failed, clearing session", "err", cause)

	if err := rc.store.Clear(ctx); err != nil {
		rc.logger.Error("failed to clear session", "err", err)
	}

	rerr := &RefreshError{Err: cause}
	if rc.onInvalid != nil {
		rc.onInvalid(rerr)
	}
	return rerr
}
