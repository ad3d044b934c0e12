package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/engine"
	"github.com/AniruddhAgrahari/smartstock/internal/forecast"
	"github.com/AniruddhAgrahari/smartstock/internal/policy"
	"github.com/AniruddhAgrahari/smartstock/internal/repository"
	"github.com/AniruddhAgrahari/smartstock/internal/storage"
)

// ErrNoRepository is returned by operations that need a storage backend the
// service was built without.
var ErrNoRepository = errors.New("no repository configured")

type PlanningService struct {
	engine  *engine.Engine
	history repository.HistoryRepository
	items   repository.ItemRepository
	runs    repository.PlanRunRepository
	archive *storage.PlanArchive
	now     func() time.Time
}

type Option func(*PlanningService)

func WithHistory(repo repository.HistoryRepository) Option {
	return func(s *PlanningService) { s.history = repo }
}

func WithItems(repo repository.ItemRepository) Option {
	return func(s *PlanningService) { s.items = repo }
}

func WithRuns(repo repository.PlanRunRepository) Option {
	return func(s *PlanningService) { s.runs = repo }
}

// WithArchive stores every completed plan in object storage.
func WithArchive(archive *storage.PlanArchive) Option {
	return func(s *PlanningService) { s.archive = archive }
}

func WithClock(now func() time.Time) Option {
	return func(s *PlanningService) { s.now = now }
}

func NewPlanningService(eng *engine.Engine, opts ...Option) *PlanningService {
	s := &PlanningService{engine: eng, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunRequest plans from stored history. Zero filter fields select everything.
type RunRequest struct {
	SKUs            []string
	From            time.Time
	To              time.Time
	Horizon         int
	Constraints     []domain.Constraint
	SolverTimeLimit time.Duration
}

// ModelInfo describes one forecast model variant.
type ModelInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (s *PlanningService) Forecast(ctx context.Context, records []domain.DemandRecord, horizon int) (*domain.PlanResult, error) {
	return s.engine.Forecast(ctx, records, horizon)
}

func (s *PlanningService) Evaluate(ctx context.Context, records []domain.DemandRecord) (*domain.EvaluationReport, error) {
	return s.engine.Evaluate(ctx, records)
}

// InvalidateForecasts clears the engine's forecast cache, forcing the next
// runs to refit every model.
func (s *PlanningService) InvalidateForecasts(ctx context.Context) error {
	return s.engine.InvalidateForecasts(ctx)
}

// Models lists the selectable variants and whether the current settings
// enable them.
func (s *PlanningService) Models() []ModelInfo {
	enabled := make(map[string]bool)
	for _, m := range s.engine.Settings().Models {
		enabled[m] = true
	}
	out := make([]ModelInfo, 0, len(forecast.Candidates))
	for _, k := range forecast.Candidates {
		out = append(out, ModelInfo{Name: string(k), Enabled: enabled[string(k)]})
	}
	return out
}

// Plan runs one planning request over inline data. The run is tracked and
// archived when the service has a run repository or an archive.
func (s *PlanningService) Plan(ctx context.Context, req domain.PlanRequest) (*domain.PlanRun, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	run := &domain.PlanRun{
		ID:        req.RunID,
		Status:    domain.RunRunning,
		Horizon:   req.Horizon,
		StartedAt: s.now().UTC(),
	}
	if s.runs != nil {
		if err := s.runs.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create plan run: %w", err)
		}
	}

	res, err := s.engine.Plan(ctx, req)
	if err != nil {
		run.Fail(err, s.now().UTC())
		s.finish(ctx, run)
		return run, err
	}

	if s.archive != nil {
		key, err := s.archive.Save(ctx, res)
		if err != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Msg("planning: archive plan failed")
		}
		run.ArchiveKey = key
	}
	run.Complete(res, s.now().UTC())
	s.finish(ctx, run)
	return run, nil
}

// RunFromDB loads history and items from the repositories and plans them.
func (s *PlanningService) RunFromDB(ctx context.Context, rr RunRequest) (*domain.PlanRun, error) {
	if s.history == nil || s.items == nil {
		return nil, ErrNoRepository
	}

	var (
		records []domain.DemandRecord
		items   []domain.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.history.ListDemand(gctx, domain.HistoryFilter{SKUs: rr.SKUs, From: rr.From, To: rr.To})
		if err != nil {
			return fmt.Errorf("failed to load demand history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		items, err = s.items.ListItems(gctx, rr.SKUs)
		if err != nil {
			return fmt.Errorf("failed to load items: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().Int("records", len(records)).Int("items", len(items)).Msg("planning: loaded stored data")
	return s.Plan(ctx, domain.PlanRequest{
		Records:         records,
		Items:           items,
		Horizon:         rr.Horizon,
		Constraints:     rr.Constraints,
		SolverTimeLimit: rr.SolverTimeLimit,
	})
}

// GetRun returns a stored run. A completed run whose result is not stored
// inline is read back from the archive.
func (s *PlanningService) GetRun(ctx context.Context, id string) (*domain.PlanRun, error) {
	if s.runs == nil {
		return nil, ErrNoRepository
	}
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Result == nil && run.ArchiveKey != "" && s.archive != nil {
		res, err := s.archive.Load(ctx, run.ArchiveKey)
		if err != nil {
			log.Warn().Err(err).Str("run_id", id).Msg("planning: archive load failed")
		} else {
			run.Result = res
		}
	}
	return run, nil
}

func (s *PlanningService) ListRuns(ctx context.Context, limit int) ([]domain.PlanRun, error) {
	if s.runs == nil {
		return nil, ErrNoRepository
	}
	return s.runs.ListRuns(ctx, limit)
}

// Transfers recommends stock moves between locations. Without inline
// locations the stored ones for skus are used.
func (s *PlanningService) Transfers(ctx context.Context, locations []domain.StockLocation, skus []string) ([]domain.TransferRecommendation, error) {
	if len(locations) == 0 {
		if s.items == nil {
			return nil, ErrNoRepository
		}
		var err error
		locations, err = s.items.ListStockLocations(ctx, skus)
		if err != nil {
			return nil, fmt.Errorf("failed to load stock locations: %w", err)
		}
	}
	return policy.Transfers(locations), nil
}

// Import stores demand records, items and stock locations together.
func (s *PlanningService) Import(ctx context.Context, records []domain.DemandRecord, items []domain.Item, locations []domain.StockLocation) (int, error) {
	if (len(records) > 0 && s.history == nil) || ((len(items) > 0 || len(locations) > 0) && s.items == nil) {
		return 0, ErrNoRepository
	}

	var saved int
	g, gctx := errgroup.WithContext(ctx)
	if len(records) > 0 {
		g.Go(func() error {
			n, err := s.history.SaveDemand(gctx, records)
			saved = n
			return err
		})
	}
	if len(items) > 0 {
		g.Go(func() error { return s.items.UpsertItems(gctx, items) })
	}
	if len(locations) > 0 {
		g.Go(func() error { return s.items.UpsertStockLocations(gctx, locations) })
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("import failed: %w", err)
	}
	return saved, nil
}

// finish stores the final state of a tracked run. The plan outcome is
// returned regardless, so a failed update is only logged.
func (s *PlanningService) finish(ctx context.Context, run *domain.PlanRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.FinishRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("planning: finish plan run failed")
	}
}
