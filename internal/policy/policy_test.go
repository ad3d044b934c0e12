package policy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// z for a central 95% interval
const z95 = 1.959963984540054

func flatForecast(sku string, point, sigma float64, n int) domain.Forecast {
	fc := domain.Forecast{SKU: sku, Horizon: n, IntervalLevel: 0.95}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fc.Points = append(fc.Points, domain.ForecastPoint{
			Period: start.AddDate(0, 0, i),
			Point:  point,
			Lower:  point - z95*sigma,
			Upper:  point + z95*sigma,
		})
	}
	return fc
}

func TestEOQ(t *testing.T) {
	assert.Equal(t, 383.0, EOQ(3650, 20, 1))
	assert.Equal(t, 0.0, EOQ(0, 20, 1))
	assert.Equal(t, 0.0, EOQ(3650, 20, 0))
}

func TestSafetyStock(t *testing.T) {
	assert.InDelta(t, 6.5794145, SafetyStock(0.95, 2, 4), 1e-6)
	assert.Equal(t, 0.0, SafetyStock(0.95, 0, 4))
	assert.Equal(t, 0.0, SafetyStock(1, 2, 4))
}

func TestStockoutProbability(t *testing.T) {
	tests := []struct {
		name                      string
		stock, daily, sigma, lead float64
		want                      float64
	}{
		{"stock equals expected demand", 40, 10, 2, 4, 0.5},
		{"no demand with stock", 5, 0, 0, 4, 0},
		{"no demand without stock", 0, 0, 0, 4, 1},
		{"deterministic shortfall", 30, 10, 0, 4, 1},
		{"deterministic cover", 50, 10, 0, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StockoutProbability(tt.stock, tt.daily, tt.sigma, tt.lead), 1e-9)
		})
	}

	assert.Less(t, StockoutProbability(60, 10, 2, 4), 0.01)
}

func TestRecommend(t *testing.T) {
	s := settings.Default()
	a := NewAdvisor(s)

	p := &constraints.Problem{
		Frequency: settings.Daily,
		SKUs: []constraints.SKUModel{
			{SKU: "A", Cost: 4, OnHand: 30, LeadTimeDays: 4, ServiceLevel: 0.95, MaxQty: math.Inf(1)},
			{SKU: "B", Cost: 4, OnHand: 25, OnOrder: 15, LeadTimeDays: 4, ServiceLevel: 0.95, MaxQty: math.Inf(1)},
			{SKU: "C", Cost: 4, OnHand: 10, LeadTimeDays: 4, ServiceLevel: 0.95, MaxQty: math.Inf(1)},
		},
	}
	forecasts := []domain.Forecast{
		flatForecast("A", 10, 0, 7),
		flatForecast("B", 10, 2, 7),
	}

	got := a.Recommend(p, forecasts)
	require.Len(t, got, 3)

	polA := got[0]
	assert.Equal(t, "A", polA.SKU)
	assert.InDelta(t, 10, polA.DailyDemand, 1e-9)
	assert.Equal(t, 0.0, polA.SafetyStock)
	assert.Equal(t, 40.0, polA.ReorderPoint)
	assert.Equal(t, 383.0, polA.EOQ)
	assert.InDelta(t, 3, polA.DaysOfSupply, 1e-9)
	assert.True(t, polA.ShouldReorder)
	assert.Equal(t, 1.0, polA.StockoutProbability)

	polB := got[1]
	assert.InDelta(t, 2, polB.DemandStdDev, 1e-9)
	assert.Equal(t, 7.0, polB.SafetyStock)
	assert.Equal(t, 47.0, polB.ReorderPoint)
	assert.InDelta(t, 0.5, polB.StockoutProbability, 1e-9)
	assert.True(t, polB.ShouldReorder)

	polC := got[2]
	assert.Equal(t, 0.0, polC.DailyDemand)
	assert.Equal(t, 0.0, polC.ReorderPoint)
	assert.False(t, polC.ShouldReorder)
	assert.Equal(t, 0.0, polC.StockoutProbability)
}

func TestRecommendWeeklyBuckets(t *testing.T) {
	s := settings.Default()
	s.Frequency = settings.Weekly
	p := &constraints.Problem{
		Frequency: settings.Weekly,
		SKUs:      []constraints.SKUModel{{SKU: "A", Cost: 1, OnHand: 70, LeadTimeDays: 7, ServiceLevel: 0.9, MaxQty: math.Inf(1)}},
	}
	got := NewAdvisor(s).Recommend(p, []domain.Forecast{flatForecast("A", 70, 0, 4)})
	require.Len(t, got, 1)
	assert.InDelta(t, 10, got[0].DailyDemand, 1e-9)
	assert.InDelta(t, 7, got[0].DaysOfSupply, 1e-9)
}

func TestTransfers(t *testing.T) {
	locations := []domain.StockLocation{
		{SKU: "B", Location: "east", OnHand: 30, DailyDemand: 5},
		{SKU: "A", Location: "north", OnHand: 100, DailyDemand: 5},
		{SKU: "B", Location: "west", OnHand: 100, DailyDemand: 5},
		{SKU: "A", Location: "south", OnHand: 4, DailyDemand: 2},
		{SKU: "C", Location: "north", OnHand: 1, DailyDemand: 5},
		{SKU: "D", Location: "east", OnHand: 50, DailyDemand: 5},
		{SKU: "D", Location: "west", OnHand: 60, DailyDemand: 5},
	}

	got := Transfers(locations)
	require.Len(t, got, 2)

	assert.Equal(t, domain.TransferRecommendation{
		SKU:      "A",
		From:     "north",
		To:       "south",
		Quantity: 14,
		Reason:   "balancing inventory: 20.0 days vs 2.0 days",
		Priority: domain.PriorityHigh,
	}, got[0])

	assert.Equal(t, "B", got[1].SKU)
	assert.Equal(t, "west", got[1].From)
	assert.Equal(t, "east", got[1].To)
	assert.Equal(t, 35.0, got[1].Quantity)
	assert.Equal(t, domain.PriorityMedium, got[1].Priority)
}

func TestTransfersEmpty(t *testing.T) {
	assert.Empty(t, Transfers(nil))
}
