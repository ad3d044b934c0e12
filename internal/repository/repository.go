package repository

import (
	"context"
	"errors"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// HistoryRepository reads and stores demand history.
type HistoryRepository interface {
	ListDemand(ctx context.Context, filter domain.HistoryFilter) ([]domain.DemandRecord, error)
	SaveDemand(ctx context.Context, records []domain.DemandRecord) (int, error)
}

// ItemRepository reads and stores item economics and stock per location.
type ItemRepository interface {
	ListItems(ctx context.Context, skus []string) ([]domain.Item, error)
	UpsertItems(ctx context.Context, items []domain.Item) error
	ListStockLocations(ctx context.Context, skus []string) ([]domain.StockLocation, error)
	UpsertStockLocations(ctx context.Context, locs []domain.StockLocation) error
}

// PlanRunRepository tracks planning runs.
type PlanRunRepository interface {
	CreateRun(ctx context.Context, run *domain.PlanRun) error
	FinishRun(ctx context.Context, run *domain.PlanRun) error
	GetRun(ctx context.Context, id string) (*domain.PlanRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.PlanRun, error)
}
