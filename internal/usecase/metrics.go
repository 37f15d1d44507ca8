package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"CoinDash/internal/domain/models"
	domrepo "CoinDash/internal/domain/repository"
	"CoinDash/internal/formula"
	"CoinDash/internal/services/evaluator"
	"CoinDash/internal/services/shaper"
	"CoinDash/pkg/cache"
	applogger "CoinDash/pkg/logger"

	"github.com/google/uuid"
)

// EvalCachePrefix prefixes cached evaluation results. Any change to the saved
// metric set drops every key under it.
const EvalCachePrefix = "eval:"

// MetricsUseCase manages saved metrics and evaluates them over market data.
type MetricsUseCase struct {
	store   domrepo.MetricStore
	series  domrepo.SeriesStore
	dash    *DashboardUseCase
	events  domrepo.MetricEventPublisher
	cache   cache.Service
	evalTTL time.Duration
	metrics domrepo.Metrics
	l       *applogger.Logger

	// mu serialises load-modify-save cycles on the metric list.
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func NewMetricsUseCase(
	store domrepo.MetricStore,
	series domrepo.SeriesStore,
	dash *DashboardUseCase,
	events domrepo.MetricEventPublisher,
	c cache.Service,
	evalTTL time.Duration,
	m domrepo.Metrics,
	l *applogger.Logger,
) *MetricsUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &MetricsUseCase{
		store:   store,
		series:  series,
		dash:    dash,
		events:  events,
		cache:   c,
		evalTTL: evalTTL,
		metrics: m,
		l:       l,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

func (uc *MetricsUseCase) List(ctx context.Context) ([]models.MetricDefinition, error) {
	out, err := uc.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	return out, nil
}

func (uc *MetricsUseCase) Get(ctx context.Context, id string) (*models.MetricDefinition, error) {
	all, err := uc.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domrepo.ErrMetricNotFound, id)
}

type CreateMetricParams struct {
	Name        string
	Formula     string
	Description string
}

// Create validates and saves a new metric. The formula must compile, may only
// reference built-in variables and other saved metrics, and must not depend
// on itself.
func (uc *MetricsUseCase) Create(ctx context.Context, p CreateMetricParams) (*models.MetricDefinition, error) {
	name := strings.TrimSpace(p.Name)
	src := strings.TrimSpace(p.Formula)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domrepo.ErrInvalidMetric)
	}
	if src == "" {
		return nil, fmt.Errorf("%w: formula is required", domrepo.ErrInvalidFormula)
	}
	expr, err := formula.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domrepo.ErrInvalidFormula, err)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	saved, err := uc.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}

	def := models.MetricDefinition{
		ID:          uc.newID(),
		Name:        name,
		Formula:     src,
		Description: strings.TrimSpace(p.Description),
		CreatedAt:   uc.now().UTC(),
	}

	known := make(map[string]struct{}, len(saved))
	for _, m := range saved {
		if strings.EqualFold(strings.TrimSpace(m.Name), name) {
			return nil, fmt.Errorf("%w: %s", domrepo.ErrDuplicateMetricName, name)
		}
		if m.Variable() == def.Variable() {
			return nil, fmt.Errorf("%w: %s is already bound to %q", domrepo.ErrDuplicateMetricName, def.Variable(), m.Name)
		}
		known[m.Variable()] = struct{}{}
	}
	if v := unknownVariable(expr, known, def.Variable()); v != "" {
		return nil, fmt.Errorf("%w: unknown variable %q", domrepo.ErrInvalidFormula, v)
	}

	next := append(append(make([]models.MetricDefinition, 0, len(saved)+1), saved...), def)
	if err := evaluator.NewPlan(next).Errors()[def.Name]; err != nil {
		return nil, fmt.Errorf("%w: %v", domrepo.ErrInvalidFormula, err)
	}

	if err := uc.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save metrics: %w", err)
	}
	uc.changed(ctx, models.MetricCreated, def)
	return &def, nil
}

// unknownVariable returns the first variable of expr that is neither built
// in nor in known. self counts as known so that self-reference is reported as
// a cycle instead.
func unknownVariable(expr *formula.Expr, known map[string]struct{}, self string) string {
	for _, v := range expr.Variables() {
		if evaluator.IsBuiltin(v) || v == self {
			continue
		}
		if _, ok := known[v]; ok {
			continue
		}
		return v
	}
	return ""
}

// Delete removes a saved metric. A metric still referenced through its
// custom_ variable by another saved metric is kept and ErrMetricInUse names
// the dependents.
func (uc *MetricsUseCase) Delete(ctx context.Context, id string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	saved, err := uc.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load metrics: %w", err)
	}
	idx := -1
	for i, m := range saved {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", domrepo.ErrMetricNotFound, id)
	}
	removed := saved[idx]
	if deps := dependents(saved, removed); len(deps) > 0 {
		return fmt.Errorf("%w: %s is used by %s", domrepo.ErrMetricInUse, removed.Name, strings.Join(deps, ", "))
	}
	next := append(append(make([]models.MetricDefinition, 0, len(saved)-1), saved[:idx]...), saved[idx+1:]...)
	if err := uc.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	uc.changed(ctx, models.MetricDeleted, removed)
	return nil
}

// dependents lists the names of saved metrics whose formula reads target's
// variable. Formulas that no longer compile are skipped.
func dependents(saved []models.MetricDefinition, target models.MetricDefinition) []string {
	v := target.Variable()
	var out []string
	for _, m := range saved {
		if m.ID == target.ID {
			continue
		}
		expr, err := formula.Compile(m.Formula)
		if err != nil {
			continue
		}
		if slices.Contains(expr.Variables(), v) {
			out = append(out, m.Name)
		}
	}
	return out
}

// changed invalidates cached evaluations and announces the change. Neither
// step fails the write that already happened.
func (uc *MetricsUseCase) changed(ctx context.Context, typ models.MetricEventType, m models.MetricDefinition) {
	if err := InvalidateEvaluations(ctx, uc.cache); err != nil {
		uc.l.Warn("evaluation cache invalidate failed", applogger.Error(err))
	}
	if uc.events == nil {
		return
	}
	ev := models.MetricEvent{Type: typ, Metric: m, At: uc.now().UTC()}
	if err := uc.events.Publish(ctx, ev); err != nil {
		uc.l.Error("publish metric event failed",
			applogger.String("type", string(typ)),
			applogger.String("metric_id", m.ID),
			applogger.Error(err),
		)
		if uc.metrics != nil {
			uc.metrics.RecordError("metric_event_publish")
		}
	}
}

// InvalidateEvaluations drops every cached evaluation result.
func InvalidateEvaluations(ctx context.Context, c cache.Service) error {
	if c == nil {
		return nil
	}
	return c.DeleteByPattern(ctx, cache.BuildPattern(EvalCachePrefix))
}

type InlineFormula struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
}

type EvaluateParams struct {
	Range RangeParams
	Coins []string
	// Metrics selects saved metrics by id or name. Empty with no Formulas
	// selects every saved metric.
	Metrics  []string
	Formulas []InlineFormula
}

// Evaluate runs the selected saved metrics and inline formulas over the
// requested coins and range. Every saved metric is in scope for custom_
// references whether or not it is selected.
func (uc *MetricsUseCase) Evaluate(ctx context.Context, p EvaluateParams) (*models.EvaluationResult, error) {
	rng, err := uc.dash.ResolveRange(p.Range)
	if err != nil {
		return nil, err
	}
	coins, err := uc.dash.ResolveCoins(p.Coins)
	if err != nil {
		return nil, err
	}
	saved, err := uc.List(ctx)
	if err != nil {
		return nil, err
	}
	defs, selected, err := selectMetrics(saved, p.Metrics, p.Formulas)
	if err != nil {
		return nil, err
	}

	key := evalKey(rng, coins, defs, selected)
	if res, ok := uc.cachedEvaluation(ctx, key); ok {
		return res, nil
	}

	rows, err := uc.shapedRows(ctx, rng, coins)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	plan := evaluator.NewPlan(defs)
	series := plan.Evaluate(rows, coins)
	planErrs := plan.Errors()
	failures := evaluator.Failures(series)

	res := &models.EvaluationResult{
		Range:   rng,
		Symbols: coins,
		Metrics: make(map[string][]models.ChartRow, len(selected)),
	}
	total, failed := 0, 0
	for _, name := range selected {
		res.Metrics[name] = evaluator.Reshape(series, name, coins)
		if perr, ok := planErrs[name]; ok {
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[name] = perr.Error()
		}
		total += len(rows) * len(coins)
		failed += failures[name]
	}
	if uc.metrics != nil {
		uc.metrics.RecordCells(total, failed)
		uc.metrics.RecordEvaluation(time.Since(start).Seconds())
	}

	uc.storeEvaluation(ctx, key, res)
	return res, nil
}

// selectMetrics returns the definitions to plan (saved first, then inline)
// and the names to report.
func selectMetrics(saved []models.MetricDefinition, picks []string, inline []InlineFormula) ([]models.MetricDefinition, []string, error) {
	defs := make([]models.MetricDefinition, 0, len(saved)+len(inline))
	defs = append(defs, saved...)

	var selected []string
	if len(picks) == 0 && len(inline) == 0 {
		for _, m := range saved {
			selected = append(selected, m.Name)
		}
	}
	for _, pick := range picks {
		found := false
		for _, m := range saved {
			if m.ID == pick || m.Name == pick {
				selected = append(selected, m.Name)
				found = true
				break
			}
		}
		if !found {
			return nil, nil, fmt.Errorf("%w: %s", domrepo.ErrMetricNotFound, pick)
		}
	}

	for _, f := range inline {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("%w: inline formula name is required", domrepo.ErrInvalidMetric)
		}
		for _, d := range defs {
			if strings.EqualFold(d.Name, name) {
				return nil, nil, fmt.Errorf("%w: %s", domrepo.ErrDuplicateMetricName, name)
			}
		}
		defs = append(defs, models.MetricDefinition{ID: "inline:" + name, Name: name, Formula: f.Formula})
		selected = append(selected, name)
	}
	return defs, dedupe(selected), nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func evalKey(rng models.DateRange, coins []string, defs []models.MetricDefinition, selected []string) string {
	type formulaKey struct{ N, F string }
	fs := make([]formulaKey, len(defs))
	for i, d := range defs {
		fs[i] = formulaKey{d.Name, d.Formula}
	}
	b, _ := json.Marshal(struct {
		R models.DateRange
		C []string
		D []formulaKey
		S []string
	}{rng, coins, fs, selected})
	return EvalCachePrefix + cache.HashKey(string(b))
}

func (uc *MetricsUseCase) cachedEvaluation(ctx context.Context, key string) (*models.EvaluationResult, bool) {
	if uc.cache == nil {
		return nil, false
	}
	var res models.EvaluationResult
	err := uc.cache.Get(ctx, key, &res)
	if uc.metrics != nil {
		uc.metrics.RecordCache("evaluation", err == nil)
	}
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			uc.l.Warn("evaluation cache get error", applogger.Error(err))
		}
		return nil, false
	}
	return &res, true
}

func (uc *MetricsUseCase) storeEvaluation(ctx context.Context, key string, res *models.EvaluationResult) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, key, res, uc.evalTTL); err != nil {
		uc.l.Warn("evaluation cache set error", applogger.Error(err))
	}
}

// shapedRows fetches the three market series concurrently and shapes them.
func (uc *MetricsUseCase) shapedRows(ctx context.Context, rng models.DateRange, coins []string) ([]models.ShapedRow, error) {
	kinds := []models.SeriesKind{models.SeriesPrices, models.SeriesMarketCaps, models.SeriesVolumes}
	results := make([][]models.TimePoint, len(kinds))
	errs := make([]error, len(kinds))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(i int, kind models.SeriesKind) {
			defer wg.Done()
			results[i], errs[i] = uc.series.GetSeries(ctx, kind, rng.Start, rng.End, coins)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("get %s: %w", kind, errs[i])
				cancel()
			}
		}(i, kind)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return shaper.Shape(results[0], results[1], results[2], coins), nil
}

type PreviewParams struct {
	Range   RangeParams
	Formula string
	Coin    string
}

const previewMetric = "preview"

// Preview evaluates an unsaved formula for one coin with every saved metric
// in scope. Compile errors and unknown variables are reported in the result,
// not as an error.
func (uc *MetricsUseCase) Preview(ctx context.Context, p PreviewParams) (*models.PreviewResult, error) {
	coins, err := uc.dash.ResolveCoins([]string{p.Coin})
	if err != nil {
		return nil, err
	}
	coin := coins[0]
	res := &models.PreviewResult{Coin: coin, Points: []models.PreviewPoint{}}

	expr, err := formula.Compile(p.Formula)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}

	rng, err := uc.dash.ResolveRange(p.Range)
	if err != nil {
		return nil, err
	}
	saved, err := uc.List(ctx)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(saved))
	for _, m := range saved {
		known[m.Variable()] = struct{}{}
	}
	if v := unknownVariable(expr, known, ""); v != "" {
		res.Error = fmt.Sprintf("unknown variable %q", v)
	}

	rows, err := uc.shapedRows(ctx, rng, []string{coin})
	if err != nil {
		return nil, err
	}

	// The preview runs first in the plan so a saved metric with the same name
	// cannot shadow it.
	defs := make([]models.MetricDefinition, 0, len(saved)+1)
	defs = append(defs, models.MetricDefinition{ID: previewMetric, Name: previewMetric, Formula: p.Formula})
	for _, m := range saved {
		if m.Name != previewMetric {
			defs = append(defs, m)
		}
	}
	series := evaluator.NewPlan(defs).Evaluate(rows, []string{coin})

	res.Points = make([]models.PreviewPoint, len(rows))
	for i, r := range rows {
		res.Points[i] = models.PreviewPoint{Date: r.Date, Value: series.Cell(previewMetric, coin, i)}
	}
	return res, nil
}
