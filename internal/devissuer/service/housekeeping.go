package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/dealerdesk/internal/devissuer/store"
)

// HousekeepingService periodically purges expired refresh and reset tokens.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{Store: st, Logger: logger, Interval: interval}
}

// Start sweeps once right away, then every Interval until Stop.
func (s *HousekeepingService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		tick := time.NewTicker(s.Interval)
		defer tick.Stop()

		for {
			s.Cleanup(ctx)

			select {
			case <-tick.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop cancels the running sweep and waits for it to return. It is a no-op
// before Start.
func (s *HousekeepingService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.Logger.Info("housekeeping stopped")
}

// Cleanup deletes expired rows. A failing table does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) (refresh, reset int64) {
	var err error
	if refresh, err = s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx); err != nil && ctx.Err() == nil {
		s.Logger.Error("purge refresh tokens", "error", err)
	}
	if reset, err = s.Store.ResetTokens().DeleteExpiredResetTokens(ctx); err != nil && ctx.Err() == nil {
		s.Logger.Error("purge reset tokens", "error", err)
	}

	if refresh+reset > 0 {
		s.Logger.Info("purged expired tokens",
			slog.Int64("refresh_tokens", refresh),
			slog.Int64("reset_tokens", reset),
		)
	}
	return refresh, reset
}
