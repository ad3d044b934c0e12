package constraints

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// flatForecast has a constant point and a symmetric band of +/- z95*sigma.
func flatForecast(sku string, point, sigma float64, horizon int) domain.Forecast {
	fc := domain.Forecast{SKU: sku, Horizon: horizon, IntervalLevel: 0.95}
	half := 1.959963984540054 * sigma
	for i := 0; i < horizon; i++ {
		fc.Points = append(fc.Points, domain.ForecastPoint{Point: point, Lower: point - half, Upper: point + half})
	}
	return fc
}

func item(sku string, cost float64) domain.Item {
	return domain.Item{SKU: sku, UnitCost: decimal.NewFromFloat(cost)}
}

func TestBuildComputesTargets(t *testing.T) {
	s := settings.Default()
	it := item("A", 10)
	it.OnHand = 5
	it.OnOrder = 3

	p, failures, err := NewBuilder(s).Build(
		[]domain.Item{it},
		[]domain.Forecast{flatForecast("A", 10, 2, 4)},
		[]domain.Constraint{domain.LeadTime{SKU: "A", Days: 2}, domain.ServiceLevel{SKU: "A", Target: 0.9}},
		4,
	)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, p.SKUs, 1)

	m := p.SKUs[0]
	assert.InDelta(t, 2.0, m.LeadTimePeriods, 1e-9)
	assert.InDelta(t, 60.0, m.Demand, 1e-9, "40 over horizon plus 2 periods of lead time")
	assert.InDelta(t, math.Sqrt(4*4+2*4), m.Sigma, 1e-6)
	assert.InDelta(t, 60+1.2815515655446004*m.Sigma, m.Target, 1e-6)
	assert.InDelta(t, m.Target-8, m.NetRequirement, 1e-9)
	assert.InDelta(t, 0.25*10*4/365, m.HoldingCost, 1e-12)
	assert.InDelta(t, (10+m.HoldingCost)*9, m.StockoutPenalty, 1e-9)
	assert.Equal(t, 1.0, m.OrderMultiple)
	assert.True(t, math.IsInf(m.MaxQty, 1))
}

func TestBuildReliabilityStretchesLeadTime(t *testing.T) {
	it := item("A", 1)
	it.LeadTimeDays = 3
	it.SupplierReliability = 0.5

	p, _, err := NewBuilder(settings.Default()).Build([]domain.Item{it}, []domain.Forecast{flatForecast("A", 1, 0, 1)}, nil, 1)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, p.SKUs[0].LeadTimeDays, 1e-9)
}

func TestBuildRoundsMinimumToMultiple(t *testing.T) {
	s := settings.Default()
	s.OrderMultiples = map[string]float64{"A": 6}
	it := item("A", 1)
	it.MaxOrder = 40

	p, _, err := NewBuilder(s).Build(
		[]domain.Item{it},
		[]domain.Forecast{flatForecast("A", 1, 0, 1)},
		[]domain.Constraint{domain.SupplierMinimum{SKU: "A", MinQty: 13}},
		1,
	)
	require.NoError(t, err)
	assert.Equal(t, 18.0, p.SKUs[0].MinQty)
	assert.Equal(t, 36.0, p.SKUs[0].MaxQty)
}

func TestBuildMinimumsOverBudgetIsInfeasible(t *testing.T) {
	items := []domain.Item{item("A", 10), item("B", 20)}
	forecasts := []domain.Forecast{flatForecast("A", 5, 1, 2), flatForecast("B", 5, 1, 2)}
	cons := []domain.Constraint{
		domain.Budget{MaxSpend: decimal.NewFromInt(500)},
		domain.SupplierMinimum{SKU: "A", MinQty: 20},
		domain.SupplierMinimum{SKU: "B", MinQty: 20},
	}

	_, _, err := NewBuilder(settings.Default()).Build(items, forecasts, cons, 2)

	var inf *domain.InfeasibleConstraintsError
	require.True(t, errors.As(err, &inf))
	assert.Contains(t, inf.Constraint, "budget")
	assert.Contains(t, inf.Reason, "600.00")
}

func TestBuildTightestBudgetApplies(t *testing.T) {
	cons := []domain.Constraint{
		domain.Budget{MaxSpend: decimal.NewFromInt(900)},
		domain.Budget{MaxSpend: decimal.NewFromInt(300)},
	}
	p, _, err := NewBuilder(settings.Default()).Build([]domain.Item{item("A", 1)}, []domain.Forecast{flatForecast("A", 1, 0, 1)}, cons, 1)
	require.NoError(t, err)
	require.NotNil(t, p.Budget)
	assert.True(t, p.Budget.Equal(decimal.NewFromInt(300)))
}

func TestBuildCapacityHeadroom(t *testing.T) {
	a, b, c := item("A", 1), item("B", 1), item("C", 1)
	a.Warehouse, b.Warehouse, c.Warehouse = "north", "north", "south"
	a.OnHand, b.OnHand, c.OnHand = 30, 20, 500

	forecasts := []domain.Forecast{flatForecast("A", 1, 0, 1), flatForecast("B", 1, 0, 1), flatForecast("C", 1, 0, 1)}
	cons := []domain.Constraint{
		domain.Capacity{Warehouse: "north", MaxUnits: 100},
		domain.Capacity{Warehouse: "south", MaxUnits: 400},
		domain.Capacity{Warehouse: "east", MaxUnits: 10},
	}

	p, _, err := NewBuilder(settings.Default()).Build([]domain.Item{a, b, c}, forecasts, cons, 1)
	require.NoError(t, err)
	require.Len(t, p.Capacities, 2)
	assert.Equal(t, 50.0, p.Capacities[0].Headroom)
	assert.Equal(t, []string{"A", "B"}, p.Capacities[0].SKUs)
	assert.Equal(t, 0.0, p.Capacities[1].Headroom, "over-capacity warehouse has no headroom")
	assert.Len(t, p.Ignored, 1)
}

func TestBuildMinimumsOverCapacityIsInfeasible(t *testing.T) {
	it := item("A", 1)
	it.OnHand = 90
	cons := []domain.Constraint{
		domain.Capacity{MaxUnits: 100},
		domain.SupplierMinimum{SKU: "A", MinQty: 20},
	}
	_, _, err := NewBuilder(settings.Default()).Build([]domain.Item{it}, []domain.Forecast{flatForecast("A", 1, 0, 1)}, cons, 1)

	var inf *domain.InfeasibleConstraintsError
	require.True(t, errors.As(err, &inf))
	assert.Contains(t, inf.Constraint, "capacity")
}

func TestBuildMinimumAboveMaxOrderIsInfeasible(t *testing.T) {
	it := item("A", 1)
	it.MaxOrder = 10
	_, _, err := NewBuilder(settings.Default()).Build(
		[]domain.Item{it},
		[]domain.Forecast{flatForecast("A", 1, 0, 1)},
		[]domain.Constraint{domain.SupplierMinimum{SKU: "A", MinQty: 12}},
		1,
	)

	var inf *domain.InfeasibleConstraintsError
	require.True(t, errors.As(err, &inf))
	assert.Equal(t, "A", inf.SKU)
}

func TestBuildRejectsMalformedConstraints(t *testing.T) {
	tests := []struct {
		name string
		c    domain.Constraint
	}{
		{"negative budget", domain.Budget{MaxSpend: decimal.NewFromInt(-1)}},
		{"negative capacity", domain.Capacity{MaxUnits: -5}},
		{"negative minimum", domain.SupplierMinimum{SKU: "A", MinQty: -1}},
		{"negative lead time", domain.LeadTime{SKU: "A", Days: -2}},
		{"service level of one", domain.ServiceLevel{SKU: "A", Target: 1}},
		{"service level of zero", domain.ServiceLevel{SKU: "A", Target: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewBuilder(settings.Default()).Build(
				[]domain.Item{item("A", 1)}, []domain.Forecast{flatForecast("A", 1, 0, 1)}, []domain.Constraint{tt.c}, 1)
			var inf *domain.InfeasibleConstraintsError
			assert.True(t, errors.As(err, &inf), "got %v", err)
		})
	}
}

func TestBuildIgnoresUnknownSKUsAndReportsMissingItems(t *testing.T) {
	cons := []domain.Constraint{domain.SupplierMinimum{SKU: "ZZZ", MinQty: 1000}}
	forecasts := []domain.Forecast{flatForecast("B", 1, 0, 1), flatForecast("A", 1, 0, 1)}

	p, failures, err := NewBuilder(settings.Default()).Build([]domain.Item{item("A", 1)}, forecasts, cons, 1)
	require.NoError(t, err)
	require.Len(t, p.SKUs, 1)
	assert.Equal(t, "A", p.SKUs[0].SKU)
	assert.Equal(t, 0, p.Index("A"))
	assert.Equal(t, -1, p.Index("B"))
	require.Len(t, failures, 1)

	var missing *domain.MissingItemError
	assert.True(t, errors.As(failures[0], &missing))
	assert.Equal(t, []string{"supplier_minimum(ZZZ, 1000)"}, p.Ignored)
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 10.0, CeilToMultiple(7.3, 5))
	assert.Equal(t, 10.0, CeilToMultiple(10, 5))
	assert.Equal(t, 5.0, FloorToMultiple(7.3, 5))
	assert.Equal(t, 0.3, CeilToMultiple(0.3, 0))
	assert.Equal(t, 15.0, CeilToMultiple(15.000000000001, 5))
}
