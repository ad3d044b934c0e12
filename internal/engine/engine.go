// Package engine runs the forecasting and replenishment pipeline: per-SKU
// preprocessing, model selection and forecasting on a worker pool, then one
// global constraint build, solve and validation per run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AniruddhAgrahari/smartstock/internal/cache"
	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/forecast"
	"github.com/AniruddhAgrahari/smartstock/internal/metrics"
	"github.com/AniruddhAgrahari/smartstock/internal/optimize"
	"github.com/AniruddhAgrahari/smartstock/internal/policy"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
	"github.com/AniruddhAgrahari/smartstock/internal/timeseries"
	"github.com/AniruddhAgrahari/smartstock/internal/validate"
	"github.com/AniruddhAgrahari/smartstock/pkg/telemetry"
)

// ErrInvalidHorizon is returned for a horizon below one period.
var ErrInvalidHorizon = errors.New("horizon must be positive")

// Stage names used for metrics and spans.
const (
	stageForecast = "forecast"
	stageBuild    = "build"
	stageOptimize = "optimize"
	stageValidate = "validate"
	stagePolicy   = "policy"
	stageEvaluate = "evaluate"
)

// Engine is safe for concurrent use. It holds no state between runs other
// than the optional forecast cache.
type Engine struct {
	settings  settings.Settings
	solver    optimize.Solver
	solverSet bool
	cache     cache.ForecastCache
	cached    bool
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSolver injects the optimization backend. A nil solver selects the
// greedy heuristic regardless of settings.SolverBackend.
func WithSolver(s optimize.Solver) Option {
	return func(e *Engine) {
		e.solver, e.solverSet = s, true
	}
}

// WithForecastCache reuses forecasts across runs with identical data and
// forecast settings.
func WithForecastCache(c cache.ForecastCache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache, e.cached = c, true
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates s and creates an engine. The settings are copied so the
// caller may reuse its value.
func New(s settings.Settings, opts ...Option) (*Engine, error) {
	s = s.Clone()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine settings: %w", err)
	}
	e := &Engine{
		settings: s,
		cache:    cache.NewNoopForecastCache(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if !e.solverSet {
		e.solver = optimize.NewSolver(s)
	}
	return e, nil
}

// InvalidateForecasts drops every cached forecast. It is a no-op without a
// forecast cache.
func (e *Engine) InvalidateForecasts(ctx context.Context) error {
	if err := e.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidate forecast cache: %w", err)
	}
	log.Info().Bool("cached", e.cached).Msg("forecast cache invalidated")
	return nil
}

// Settings returns a copy of the engine settings.
func (e *Engine) Settings() settings.Settings {
	return e.settings.Clone()
}

// Forecast preprocesses and forecasts every SKU in records. SKUs that cannot
// be forecast are listed in Excluded; the call only fails on a bad horizon
// or a cancelled context.
func (e *Engine) Forecast(ctx context.Context, records []domain.DemandRecord, horizon int) (*domain.PlanResult, error) {
	res := e.newResult(horizon)
	ctx, span := telemetry.StartSpan(ctx, "engine.forecast_run",
		telemetry.AttrRunID.String(res.RunID), telemetry.AttrHorizon.Int(horizon))
	defer span.End()

	err := e.forecastInto(ctx, res, records, horizon)
	telemetry.RecordError(span, err)
	e.metrics.RunFinished("forecast", err)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("run_id", res.RunID).
		Int("forecasts", len(res.Forecasts)).
		Int("excluded", len(res.Excluded)).
		Msg("forecast run finished")
	return res, nil
}

// Plan runs the full pipeline for req. Per-SKU failures are isolated into
// Excluded; infeasible constraints, solver failures and plans that cannot be
// validated abort the run.
func (e *Engine) Plan(ctx context.Context, req domain.PlanRequest) (*domain.PlanResult, error) {
	res := e.newResult(req.Horizon)
	if req.RunID != "" {
		res.RunID = req.RunID
	}
	ctx, span := telemetry.StartSpan(ctx, "engine.plan",
		telemetry.AttrRunID.String(res.RunID), telemetry.AttrHorizon.Int(req.Horizon))
	defer span.End()

	err := e.plan(ctx, res, req)
	telemetry.RecordError(span, err)
	e.metrics.RunFinished("plan", err)
	if err != nil {
		log.Warn().Err(err).Str("run_id", res.RunID).Msg("plan run failed")
		return nil, fmt.Errorf("plan run %s: %w", res.RunID, err)
	}

	ev := log.Info().
		Str("run_id", res.RunID).
		Int("forecasts", len(res.Forecasts)).
		Int("excluded", len(res.Excluded)).
		Int("warnings", len(res.Warnings))
	if res.Plan != nil {
		ev = ev.Str("status", string(res.Plan.SolverStatus)).Str("total_cost", res.Plan.TotalCost.StringFixed(2))
	}
	ev.Msg("plan run finished")
	return res, nil
}

func (e *Engine) plan(ctx context.Context, res *domain.PlanResult, req domain.PlanRequest) error {
	s := e.settings
	if err := e.forecastInto(ctx, res, req.Records, req.Horizon); err != nil {
		return err
	}
	if len(res.Forecasts) == 0 {
		res.Warnings = append(res.Warnings, "no SKU could be forecast; nothing to plan")
		return nil
	}

	start := time.Now()
	_, buildSpan := telemetry.StartSpan(ctx, "engine.build")
	p, failures, err := constraints.NewBuilder(s).Build(req.Items, res.Forecasts, req.Constraints, req.Horizon)
	telemetry.RecordError(buildSpan, err)
	buildSpan.End()
	e.metrics.ObserveStage(stageBuild, start)
	if err != nil {
		return err
	}
	e.exclude(res, failures...)
	for _, c := range p.Ignored {
		res.Warnings = append(res.Warnings, fmt.Sprintf("ignored constraint %s: it names nothing in this run", c))
	}
	if len(p.SKUs) == 0 {
		res.Warnings = append(res.Warnings, "no forecast SKU has item data; nothing to plan")
		return nil
	}

	limit := req.SolverTimeLimit
	if limit <= 0 {
		limit = s.SolverTimeLimit
	}
	start = time.Now()
	solveCtx, solveSpan := telemetry.StartSpan(ctx, "engine.optimize", telemetry.AttrSKUs.Int(len(p.SKUs)))
	raw, err := optimize.New(s, e.solver).Optimize(solveCtx, p, limit)
	solveSpan.SetAttributes(telemetry.AttrBackend.String(raw.Backend), telemetry.AttrStatus.String(string(raw.Status)))
	telemetry.RecordError(solveSpan, err)
	solveSpan.End()
	e.metrics.ObserveStage(stageOptimize, start)
	if err != nil {
		e.metrics.Solved(e.backendName(), "error")
		return err
	}
	e.metrics.Solved(raw.Backend, string(raw.Status))
	if raw.Warning != nil {
		res.Warnings = append(res.Warnings, raw.Warning.Error())
	}

	start = time.Now()
	_, valSpan := telemetry.StartSpan(ctx, "engine.validate")
	plan, err := validate.New(s).Validate(p, raw)
	telemetry.RecordError(valSpan, err)
	valSpan.End()
	e.metrics.ObserveStage(stageValidate, start)
	if err != nil {
		return err
	}
	res.Plan = plan

	start = time.Now()
	res.Policies = policy.NewAdvisor(s).Recommend(p, res.Forecasts)
	e.metrics.ObserveStage(stagePolicy, start)
	return nil
}

// Evaluate scores every candidate model per SKU without forecasting.
func (e *Engine) Evaluate(ctx context.Context, records []domain.DemandRecord) (*domain.EvaluationReport, error) {
	report := &domain.EvaluationReport{RunID: uuid.NewString(), CreatedAt: e.now().UTC()}
	ctx, span := telemetry.StartSpan(ctx, "engine.evaluate", telemetry.AttrRunID.String(report.RunID))
	defer span.End()

	bySKU, skus := domain.GroupRecords(records)
	selector := forecast.NewSelector(e.settings)
	evals := make([]*domain.ModelEvaluation, len(skus))
	failures := make([]*domain.SKUFailure, len(skus))

	start := time.Now()
	err := runPool(ctx, e.settings.Workers, len(skus), func(i int) {
		sku := skus[i]
		ts, err := timeseries.Preprocess(sku, bySKU[sku], e.settings)
		if err != nil {
			f := domain.NewSKUFailure(sku, domain.StagePreprocess, err)
			failures[i] = &f
			return
		}
		sel, err := selector.Select(ts)
		if err != nil {
			f := domain.NewSKUFailure(sku, domain.StageForecast, err)
			failures[i] = &f
			return
		}
		ev := evaluation(sku, sel)
		ev.Series = timeseries.Describe(ts)
		evals[i] = ev
	})
	e.metrics.ObserveStage(stageEvaluate, start)
	telemetry.RecordError(span, err)
	e.metrics.RunFinished("evaluate", err)
	if err != nil {
		return nil, err
	}

	for i := range skus {
		if evals[i] != nil {
			report.SKUs = append(report.SKUs, *evals[i])
		}
		if failures[i] != nil {
			report.Excluded = append(report.Excluded, *failures[i])
			e.metrics.SKUExcluded(failures[i].Stage)
		}
	}
	log.Info().
		Str("run_id", report.RunID).
		Int("skus", len(report.SKUs)).
		Int("excluded", len(report.Excluded)).
		Msg("evaluation run finished")
	return report, nil
}

func evaluation(sku string, sel forecast.Selection) *domain.ModelEvaluation {
	ev := &domain.ModelEvaluation{
		SKU:      sku,
		Metric:   sel.Metric,
		Holdout:  sel.Holdout,
		Score:    sel.Score,
		Fallback: sel.Fallback,
	}
	if sel.Model != nil {
		ev.Selected = string(sel.Model.Kind())
	}
	for _, c := range sel.Evaluations {
		ev.Candidates = append(ev.Candidates, domain.CandidateScore{
			Model:     string(c.Model),
			Score:     c.Score,
			NumParams: c.NumParams,
			Error:     c.Err,
			Selected:  c.Selected,
		})
	}
	return ev
}

type skuOutcome struct {
	forecast *domain.Forecast
	failure  *domain.SKUFailure
	hit      bool
}

// forecastInto fills res.Forecasts and res.Excluded, both sorted by SKU.
func (e *Engine) forecastInto(ctx context.Context, res *domain.PlanResult, records []domain.DemandRecord, horizon int) error {
	if horizon < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidHorizon, horizon)
	}

	bySKU, skus := domain.GroupRecords(records)
	forecaster := forecast.NewForecaster(e.settings)
	fingerprint := e.settings.ForecastFingerprint()
	outcomes := make([]skuOutcome, len(skus))

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "engine.forecast", telemetry.AttrSKUs.Int(len(skus)))
	defer span.End()

	err := runPool(ctx, e.settings.Workers, len(skus), func(i int) {
		sku := skus[i]
		outcomes[i] = e.forecastSKU(ctx, forecaster, sku, bySKU[sku], horizon, fingerprint)
	})
	e.metrics.ObserveStage(stageForecast, start)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	hits := 0
	for _, o := range outcomes {
		if o.forecast != nil {
			res.Forecasts = append(res.Forecasts, *o.forecast)
		}
		if o.failure != nil {
			e.exclude(res, *o.failure)
		}
		if o.hit {
			hits++
		}
	}
	span.SetAttributes(telemetry.AttrExcluded.Int(len(res.Excluded)), telemetry.AttrCacheHits.Int(hits))
	return nil
}

func (e *Engine) forecastSKU(ctx context.Context, f *forecast.Forecaster, sku string, records []domain.DemandRecord, horizon int, fingerprint string) skuOutcome {
	key := cache.ForecastKey(sku, records, horizon, fingerprint)
	if e.cached {
		fc, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("sku", sku).Msg("forecast cache read failed")
		}
		e.metrics.CacheLookup(ok)
		if ok {
			return skuOutcome{forecast: &fc, hit: true}
		}
	}

	ts, err := timeseries.Preprocess(sku, records, e.settings)
	if err != nil {
		failure := domain.NewSKUFailure(sku, domain.StagePreprocess, err)
		return skuOutcome{failure: &failure}
	}
	fc, _, err := f.Run(ts, horizon)
	if err != nil {
		failure := domain.NewSKUFailure(sku, domain.StageForecast, err)
		return skuOutcome{failure: &failure}
	}
	e.metrics.Selected(fc.Model)

	if e.cached {
		if err := e.cache.Set(ctx, key, fc); err != nil {
			log.Warn().Err(err).Str("sku", sku).Msg("forecast cache write failed")
		}
	}
	return skuOutcome{forecast: &fc}
}

func (e *Engine) exclude(res *domain.PlanResult, failures ...domain.SKUFailure) {
	for _, f := range failures {
		log.Debug().Str("run_id", res.RunID).Str("sku", f.SKU).Str("stage", f.Stage).Msg(f.Reason)
		e.metrics.SKUExcluded(f.Stage)
		res.Excluded = append(res.Excluded, f)
	}
	sort.SliceStable(res.Excluded, func(i, j int) bool { return res.Excluded[i].SKU < res.Excluded[j].SKU })
}

func (e *Engine) newResult(horizon int) *domain.PlanResult {
	return &domain.PlanResult{
		RunID:     uuid.NewString(),
		CreatedAt: e.now().UTC(),
		Horizon:   horizon,
	}
}

func (e *Engine) backendName() string {
	if e.solver == nil {
		return settings.BackendGreedy
	}
	return e.solver.Name()
}
