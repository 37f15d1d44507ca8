// Package scheduler runs the periodic cache warm-up jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinDash/internal/domain/models"
	"CoinDash/internal/usecase"
	"CoinDash/pkg/cache"
	applogger "CoinDash/pkg/logger"

	"github.com/robfig/cron/v3"
)

// SeriesWarmer reloads cached series and coin lists from the backing store.
type SeriesWarmer interface {
	WarmSeries(ctx context.Context, kind models.SeriesKind, from, to string, symbols []string) error
	WarmCoins(ctx context.Context, scope models.CoinScope) error
}

const warmLockKey = "lock:warm"

// Scheduler keeps the dashboard's default view hot in the cache.
type Scheduler struct {
	cron   *cron.Cron
	warmer SeriesWarmer
	dash   *usecase.DashboardUseCase
	locker cache.Service
	preset string
	l      *applogger.Logger

	timeout time.Duration
	lockTTL time.Duration
}

// NewScheduler builds a seconds-precision cron scheduler. preset is the range
// preset warmed for the default coins. locker, when set, keeps replicas
// sharing a cache from warming at the same time.
func NewScheduler(warmer SeriesWarmer, dash *usecase.DashboardUseCase, locker cache.Service, preset string, l *applogger.Logger) *Scheduler {
	if l == nil {
		l = applogger.Nop()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		warmer:  warmer,
		dash:    dash,
		locker:  locker,
		preset:  preset,
		l:       l.With(applogger.String("component", "scheduler")),
		timeout: 2 * time.Minute,
		lockTTL: 5 * time.Minute,
	}
}

// Register adds the warm-up job on spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.warmTask); err != nil {
		return fmt.Errorf("register warm task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", applogger.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.l.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes the warm-up immediately, e.g. at startup.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.Warm(ctx)
}

func (s *Scheduler) warmTask() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.Warm(ctx); err != nil {
		s.l.Error("cache warm-up failed", applogger.Error(err))
	}
}

// Warm reloads both coin lists and the default coins' series over the
// configured preset. Every step runs even when an earlier one fails.
func (s *Scheduler) Warm(ctx context.Context) error {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, warmLockKey, s.lockTTL)
		if err != nil {
			s.l.Warn("warm lock unavailable, warming anyway", applogger.Error(err))
		} else if !ok {
			s.l.Debug("warm-up already running elsewhere")
			return nil
		} else {
			defer func() {
				if err := s.locker.Unlock(context.Background(), warmLockKey); err != nil {
					s.l.Warn("release warm lock", applogger.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	var errs []error
	for _, scope := range []models.CoinScope{models.ScopeCurrent, models.ScopeAll} {
		if err := s.warmer.WarmCoins(ctx, scope); err != nil {
			errs = append(errs, fmt.Errorf("coins %s: %w", scope, err))
		}
	}

	rng, err := s.dash.ResolveRange(usecase.RangeParams{Range: s.preset})
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	coins, err := s.dash.ResolveCoins(nil)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	for _, kind := range []models.SeriesKind{models.SeriesPrices, models.SeriesMarketCaps, models.SeriesVolumes} {
		if err := s.warmer.WarmSeries(ctx, kind, rng.Start, rng.End, coins); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.l.Info("cache warmed",
		applogger.String("start", rng.Start),
		applogger.String("end", rng.End),
		applogger.Int("coins", len(coins)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}
