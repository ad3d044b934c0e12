package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/repository"
)

// The repositories only use portable SQL, so they are exercised against an
// in-memory SQLite database.
func testDB(t *testing.T) *DB {
	t.Helper()
	conn, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	db := Wrap(conn)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

var (
	_ repository.HistoryRepository = (*historyRepository)(nil)
	_ repository.ItemRepository    = (*itemRepository)(nil)
	_ repository.PlanRunRepository = (*planRunRepository)(nil)
)

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(testDB(t))

	n, err := repo.SaveDemand(ctx, []domain.DemandRecord{
		{SKU: "B", Timestamp: day(1), Quantity: 4},
		{SKU: "A", Timestamp: day(2), Quantity: 2},
		{SKU: "A", Timestamp: day(1), Quantity: 1},
		{SKU: "A", Timestamp: day(3), Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// overwrite
	_, err = repo.SaveDemand(ctx, []domain.DemandRecord{{SKU: "A", Timestamp: day(1), Quantity: 9}})
	require.NoError(t, err)

	all, err := repo.ListDemand(ctx, domain.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, domain.DemandRecord{SKU: "A", Timestamp: day(1), Quantity: 9}, all[0])
	assert.Equal(t, "B", all[3].SKU)

	tests := []struct {
		name   string
		filter domain.HistoryFilter
		want   int
	}{
		{"by sku", domain.HistoryFilter{SKUs: []string{"A"}}, 3},
		{"from", domain.HistoryFilter{From: day(2)}, 2},
		{"window", domain.HistoryFilter{SKUs: []string{"A", "B"}, From: day(1), To: day(2)}, 2},
		{"unknown sku", domain.HistoryFilter{SKUs: []string{"Z"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListDemand(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestItemRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewItemRepository(testDB(t))

	items := []domain.Item{
		{SKU: "B", UnitCost: decimal.NewFromFloat(7.25), OnHand: 3, OrderMultiple: 6},
		{SKU: "A", Name: "widget", Warehouse: "north", UnitCost: decimal.NewFromInt(2), LeadTimeDays: 4, SupplierReliability: 0.9},
	}
	require.NoError(t, repo.UpsertItems(ctx, items))

	items[0].OnHand = 5
	require.NoError(t, repo.UpsertItems(ctx, items[:1]))

	got, err := repo.ListItems(ctx, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].SKU)
	assert.Equal(t, "widget", got[0].Name)
	assert.Equal(t, 0.9, got[0].SupplierReliability)
	assert.True(t, decimal.NewFromFloat(7.25).Equal(got[1].UnitCost))
	assert.Equal(t, 5.0, got[1].OnHand)

	got, err = repo.ListItems(ctx, []string{"B"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 6.0, got[0].OrderMultiple)

	require.NoError(t, repo.UpsertStockLocations(ctx, []domain.StockLocation{
		{SKU: "A", Location: "south", OnHand: 4, DailyDemand: 2},
		{SKU: "A", Location: "north", OnHand: 100, DailyDemand: 2},
	}))
	locs, err := repo.ListStockLocations(ctx, []string{"A"})
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "north", locs[0].Location)
}

func TestPlanRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRunRepository(testDB(t))

	run := &domain.PlanRun{ID: "run-1", Status: domain.RunRunning, Horizon: 7, StartedAt: day(1)}
	require.NoError(t, repo.CreateRun(ctx, run))

	res := &domain.PlanResult{
		RunID:     "run-1",
		Horizon:   7,
		Forecasts: []domain.Forecast{{SKU: "A", Horizon: 7, Model: "arima"}},
		Plan: &domain.ReplenishmentPlan{
			Lines:        []domain.PlanLine{{SKU: "A", Quantity: 10, UnitCost: decimal.NewFromInt(2), LineCost: decimal.NewFromInt(20)}},
			TotalCost:    decimal.NewFromInt(20),
			SolverStatus: domain.StatusOptimal,
		},
	}
	run.Complete(res, day(2))
	run.ArchiveKey = "plans/run-1.json"
	require.NoError(t, repo.FinishRun(ctx, run))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)
	assert.Equal(t, 1, got.SKUCount)
	assert.Equal(t, "optimal", got.SolverStatus)
	assert.True(t, decimal.NewFromInt(20).Equal(got.TotalCost))
	assert.Equal(t, "plans/run-1.json", got.ArchiveKey)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, day(2), *got.CompletedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, 10.0, got.Result.Plan.Quantity("A"))

	failed := &domain.PlanRun{ID: "run-2", Status: domain.RunRunning, Horizon: 7, StartedAt: day(3)}
	require.NoError(t, repo.CreateRun(ctx, failed))
	failed.Fail(errors.New("infeasible constraints"), day(3))
	require.NoError(t, repo.FinishRun(ctx, failed))

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "infeasible constraints", runs[0].ErrorMessage)
	assert.Nil(t, runs[1].Result)

	_, err = repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.FinishRun(ctx, &domain.PlanRun{ID: "missing"}), repository.ErrNotFound)
}
