package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/pkg/util"
)

// DashboardConfig holds the defaults applied to dashboard requests.
type DashboardConfig struct {
	DefaultCoins []string
	DefaultStart time.Time
	Earliest     time.Time
	MaxRangeDays int
	MaxCoins     int
}

// DashboardUseCase serves the market series, coin lists and indicators
// the dashboard charts are drawn from.
type DashboardUseCase struct {
	store domrepo.SeriesStore
	cfg   DashboardConfig
	now   func() time.Time
}

func NewDashboardUseCase(store domrepo.SeriesStore, cfg DashboardConfig) *DashboardUseCase {
	return &DashboardUseCase{store: store, cfg: cfg, now: time.Now}
}

// RangeParams are the raw range inputs of a request. Range is a preset
// (7d, 1m, 3m, 6m, 1y, all) and wins over Start and End.
type RangeParams struct {
	Start string
	End   string
	Range string
}

type SeriesParams struct {
	Kind  models.SeriesKind
	Range RangeParams
	Coins []string
}

type SeriesResult struct {
	Range   models.DateRange
	Symbols []string
	Rows    []models.ChartRow
}

// ResolveRange applies the configured defaults to p.
func (uc *DashboardUseCase) ResolveRange(p RangeParams) (models.DateRange, error) {
	from, to, err := util.ResolveRange(p.Start, p.End, p.Range, uc.now(), util.RangeOptions{
		DefaultStart: uc.cfg.DefaultStart,
		Earliest:     uc.cfg.Earliest,
		MaxDays:      uc.cfg.MaxRangeDays,
	})
	if err != nil {
		return models.DateRange{}, fmt.Errorf("%w: %v", domrepo.ErrInvalidRange, err)
	}
	return models.DateRange{Start: from, End: to}, nil
}

// ResolveCoins normalises coins, falling back to the default set.
func (uc *DashboardUseCase) ResolveCoins(coins []string) ([]string, error) {
	out := util.NormalizeSymbols(coins)
	if len(out) == 0 {
		out = util.NormalizeSymbols(uc.cfg.DefaultCoins)
	}
	if uc.cfg.MaxCoins > 0 && len(out) > uc.cfg.MaxCoins {
		return nil, fmt.Errorf("%w: %d > %d", domrepo.ErrTooManyCoins, len(out), uc.cfg.MaxCoins)
	}
	return out, nil
}

func (uc *DashboardUseCase) resolve(p SeriesParams) (models.DateRange, []string, error) {
	if !p.Kind.Valid() {
		return models.DateRange{}, nil, fmt.Errorf("unknown series type %q", p.Kind)
	}
	rng, err := uc.ResolveRange(p.Range)
	if err != nil {
		return models.DateRange{}, nil, err
	}
	coins, err := uc.ResolveCoins(p.Coins)
	if err != nil {
		return models.DateRange{}, nil, err
	}
	return rng, coins, nil
}

// Series returns one market series as chart rows. A symbol without a value
// on a date is left out of that row.
func (uc *DashboardUseCase) Series(ctx context.Context, p SeriesParams) (*SeriesResult, error) {
	rng, coins, err := uc.resolve(p)
	if err != nil {
		return nil, err
	}
	points, err := uc.store.GetSeries(ctx, p.Kind, rng.Start, rng.End, coins)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p.Kind, err)
	}
	return &SeriesResult{Range: rng, Symbols: coins, Rows: chartRows(points, coins)}, nil
}

func chartRows(points []models.TimePoint, symbols []string) []models.ChartRow {
	out := make([]models.ChartRow, len(points))
	for i, p := range points {
		row := models.ChartRow{
			Date:    p.Date,
			Symbols: symbols,
			Values:  make(map[string]*float64, len(symbols)),
		}
		for _, sym := range symbols {
			if v, ok := p.Value(sym); ok {
				row.Values[sym] = models.Float(v)
			}
		}
		out[i] = row
	}
	return out
}

func (uc *DashboardUseCase) Coins(ctx context.Context, scope models.CoinScope) ([]string, error) {
	if scope == "" {
		scope = models.ScopeCurrent
	}
	coins, err := uc.store.ListCoins(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list coins: %w", err)
	}
	return coins, nil
}

// Stats compares the first and last value of every coin over the window.
// Coins missing either value are skipped.
func (uc *DashboardUseCase) Stats(ctx context.Context, p SeriesParams) ([]models.CoinStats, error) {
	rng, coins, err := uc.resolve(p)
	if err != nil {
		return nil, err
	}
	points, err := uc.store.GetSeries(ctx, p.Kind, rng.Start, rng.End, coins)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p.Kind, err)
	}
	return coinStats(points, coins), nil
}

func coinStats(points []models.TimePoint, coins []string) []models.CoinStats {
	out := make([]models.CoinStats, 0, len(coins))
	if len(points) == 0 {
		return out
	}
	first, last := points[0], points[len(points)-1]
	for _, sym := range coins {
		cur, ok := last.Value(sym)
		if !ok {
			continue
		}
		prev, ok := first.Value(sym)
		if !ok {
			continue
		}
		st := models.CoinStats{Symbol: sym, Current: cur, First: prev, Change: cur - prev}
		// A zero first value has no meaningful percent change.
		if prev != 0 {
			st.ChangePercent = st.Change / prev * 100
		}
		st.IsPositive = st.ChangePercent > 0
		st.IsNegative = st.ChangePercent < 0
		out = append(out, st)
	}
	return out
}

func (uc *DashboardUseCase) Indicators(ctx context.Context) (models.IndicatorCatalog, error) {
	cat, err := uc.store.ListIndicators(ctx)
	if err != nil {
		return cat, fmt.Errorf("list indicators: %w", err)
	}
	return cat, nil
}

// Indicator returns one precomputed indicator as chart rows. Coins default
// to the coins that carry the indicator in the latest snapshot.
func (uc *DashboardUseCase) Indicator(ctx context.Context, name string, rp RangeParams, coins []string) (*SeriesResult, error) {
	rng, err := uc.ResolveRange(rp)
	if err != nil {
		return nil, err
	}
	cat, err := uc.Indicators(ctx)
	if err != nil {
		return nil, err
	}
	carriers := make([]string, 0, len(cat.Combinations))
	for _, c := range cat.Combinations {
		for _, ind := range c.Indicators {
			if ind == name {
				carriers = append(carriers, c.Coin)
				break
			}
		}
	}
	if len(carriers) == 0 {
		return nil, fmt.Errorf("%w: %s", domrepo.ErrIndicatorNotFound, name)
	}

	syms := util.NormalizeSymbols(coins)
	if len(syms) == 0 {
		syms = carriers
	}
	if uc.cfg.MaxCoins > 0 && len(syms) > uc.cfg.MaxCoins {
		return nil, fmt.Errorf("%w: %d > %d", domrepo.ErrTooManyCoins, len(syms), uc.cfg.MaxCoins)
	}

	points, err := uc.store.GetIndicator(ctx, name, rng.Start, rng.End, syms)
	if err != nil {
		return nil, fmt.Errorf("get indicator %s: %w", name, err)
	}
	return &SeriesResult{Range: rng, Symbols: syms, Rows: chartRows(points, syms)}, nil
}
