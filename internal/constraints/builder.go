// Package constraints normalizes forecasts, item economics and caller
// constraints into a consistent planning problem and rejects constraint sets
// that cannot be satisfied before any solver runs.
package constraints

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// quantityEpsilon absorbs float noise when rounding to order multiples.
const quantityEpsilon = 1e-9

// SKUModel is the normalized planning data for one SKU. Quantities are in
// units, costs in currency per unit over the planning horizon.
type SKUModel struct {
	SKU       string
	Warehouse string

	UnitCost        decimal.Decimal
	Cost            float64
	HoldingCost     float64
	StockoutPenalty float64
	OrderingCost    float64

	OnHand  float64
	OnOrder float64

	LeadTimeDays    float64
	LeadTimePeriods float64
	ServiceLevel    float64

	Demand         float64 // expected demand over horizon plus lead time
	Sigma          float64
	Target         float64
	NetRequirement float64

	OrderMultiple float64
	MinQty        float64 // 0 when no supplier minimum applies
	MaxQty        float64 // +Inf when unlimited
}

// Position returns on-hand plus on-order stock.
func (m SKUModel) Position() float64 { return m.OnHand + m.OnOrder }

// CapacityLimit is the unit headroom left in a warehouse.
type CapacityLimit struct {
	Warehouse string // empty applies to every SKU
	MaxUnits  float64
	Headroom  float64
	SKUs      []string
}

// Problem is the normalized, internally consistent planning problem.
type Problem struct {
	Horizon    int
	Frequency  settings.Frequency
	SKUs       []SKUModel
	Budget     *decimal.Decimal
	Capacities []CapacityLimit
	// Ignored lists constraints that named SKUs or warehouses not in the run.
	Ignored []string
}

// Index returns the position of sku in SKUs, or -1.
func (p *Problem) Index(sku string) int {
	i := sort.Search(len(p.SKUs), func(i int) bool { return p.SKUs[i].SKU >= sku })
	if i < len(p.SKUs) && p.SKUs[i].SKU == sku {
		return i
	}
	return -1
}

// Builder assembles Problems for one run.
type Builder struct {
	settings settings.Settings
}

// NewBuilder creates a builder for the given run settings.
func NewBuilder(s settings.Settings) *Builder {
	return &Builder{settings: s}
}

type skuTerms struct {
	minQty       float64
	hasMin       bool
	leadDays     float64
	hasLead      bool
	serviceLevel float64
	hasService   bool
}

// Build normalizes the inputs. SKUs with a forecast but no item are returned
// as failures; an inconsistent constraint set returns an
// *domain.InfeasibleConstraintsError.
func (b *Builder) Build(items []domain.Item, forecasts []domain.Forecast, cons []domain.Constraint, horizon int) (*Problem, []domain.SKUFailure, error) {
	s := b.settings
	if horizon < 1 {
		return nil, nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}

	itemBySKU := make(map[string]domain.Item, len(items))
	for _, it := range items {
		if _, dup := itemBySKU[it.SKU]; dup {
			return nil, nil, fmt.Errorf("duplicate item for sku %s", it.SKU)
		}
		if it.UnitCost.IsNegative() {
			return nil, nil, &domain.InfeasibleConstraintsError{SKU: it.SKU, Constraint: "item", Reason: "negative unit cost"}
		}
		itemBySKU[it.SKU] = it
	}

	planned := make(map[string]bool, len(forecasts))
	for _, fc := range forecasts {
		planned[fc.SKU] = true
	}

	p := &Problem{Horizon: horizon, Frequency: s.Frequency}
	terms := make(map[string]*skuTerms)
	term := func(sku string) *skuTerms {
		t, ok := terms[sku]
		if !ok {
			t = &skuTerms{}
			terms[sku] = t
		}
		return t
	}
	capByWarehouse := make(map[string]float64)
	var capOrder []string

	for _, c := range cons {
		switch c := c.(type) {
		case domain.Budget:
			if c.MaxSpend.IsNegative() {
				return nil, nil, infeasible(c, "", "budget cannot be negative")
			}
			if p.Budget == nil || c.MaxSpend.LessThan(*p.Budget) {
				spend := c.MaxSpend
				p.Budget = &spend
			}
		case domain.Capacity:
			if c.MaxUnits < 0 || math.IsNaN(c.MaxUnits) {
				return nil, nil, infeasible(c, "", "capacity cannot be negative")
			}
			prev, seen := capByWarehouse[c.Warehouse]
			if !seen {
				capOrder = append(capOrder, c.Warehouse)
			}
			if !seen || c.MaxUnits < prev {
				capByWarehouse[c.Warehouse] = c.MaxUnits
			}
		case domain.SupplierMinimum:
			if c.MinQty < 0 || math.IsNaN(c.MinQty) {
				return nil, nil, infeasible(c, c.SKU, "minimum cannot be negative")
			}
			if !planned[c.SKU] {
				p.Ignored = append(p.Ignored, c.String())
				continue
			}
			t := term(c.SKU)
			t.minQty, t.hasMin = math.Max(t.minQty, c.MinQty), true
		case domain.LeadTime:
			if c.Days < 0 || math.IsNaN(c.Days) {
				return nil, nil, infeasible(c, c.SKU, "lead time cannot be negative")
			}
			if !planned[c.SKU] {
				p.Ignored = append(p.Ignored, c.String())
				continue
			}
			t := term(c.SKU)
			t.leadDays, t.hasLead = math.Max(t.leadDays, c.Days), true
		case domain.ServiceLevel:
			if !(c.Target > 0 && c.Target < 1) {
				return nil, nil, infeasible(c, c.SKU, "service level must be in (0,1)")
			}
			if !planned[c.SKU] {
				p.Ignored = append(p.Ignored, c.String())
				continue
			}
			t := term(c.SKU)
			t.serviceLevel, t.hasService = math.Max(t.serviceLevel, c.Target), true
		case nil:
			return nil, nil, fmt.Errorf("nil constraint")
		default:
			return nil, nil, fmt.Errorf("unsupported constraint %s", c.Kind())
		}
	}

	var failures []domain.SKUFailure
	sorted := append([]domain.Forecast(nil), forecasts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SKU < sorted[j].SKU })
	for _, fc := range sorted {
		it, ok := itemBySKU[fc.SKU]
		if !ok {
			failures = append(failures, domain.NewSKUFailure(fc.SKU, domain.StagePlan, &domain.MissingItemError{SKU: fc.SKU}))
			continue
		}
		t := terms[fc.SKU]
		if t == nil {
			t = &skuTerms{}
		}
		m, err := b.skuModel(fc, it, t, horizon)
		if err != nil {
			return nil, nil, err
		}
		p.SKUs = append(p.SKUs, m)
	}

	for _, w := range capOrder {
		limit := CapacityLimit{Warehouse: w, MaxUnits: capByWarehouse[w]}
		var position, minimum float64
		for _, m := range p.SKUs {
			if w != "" && m.Warehouse != w {
				continue
			}
			limit.SKUs = append(limit.SKUs, m.SKU)
			position += m.Position()
			minimum += m.MinQty
		}
		if len(limit.SKUs) == 0 {
			p.Ignored = append(p.Ignored, domain.Capacity{Warehouse: w, MaxUnits: limit.MaxUnits}.String())
			continue
		}
		// A warehouse already over capacity can still receive nothing.
		limit.Headroom = math.Max(0, limit.MaxUnits-position)
		if minimum > limit.Headroom+quantityEpsilon {
			return nil, nil, infeasible(domain.Capacity{Warehouse: w, MaxUnits: limit.MaxUnits}, "",
				fmt.Sprintf("supplier minimums total %g units but only %g units of headroom remain", minimum, limit.Headroom))
		}
		p.Capacities = append(p.Capacities, limit)
	}

	if p.Budget != nil {
		minSpend := decimal.Zero
		for _, m := range p.SKUs {
			minSpend = minSpend.Add(m.UnitCost.Mul(decimal.NewFromFloat(m.MinQty)))
		}
		if minSpend.GreaterThan(*p.Budget) {
			return nil, nil, infeasible(domain.Budget{MaxSpend: *p.Budget}, "",
				fmt.Sprintf("supplier minimums cost %s, exceeding the budget", minSpend.StringFixed(2)))
		}
	}

	return p, failures, nil
}

func (b *Builder) skuModel(fc domain.Forecast, it domain.Item, t *skuTerms, horizon int) (SKUModel, error) {
	s := b.settings
	periodDays := s.Frequency.Days()

	m := SKUModel{
		SKU:          fc.SKU,
		Warehouse:    it.Warehouse,
		UnitCost:     it.UnitCost,
		Cost:         it.UnitCost.InexactFloat64(),
		OrderingCost: it.OrderingCost,
		OnHand:       math.Max(0, it.OnHand),
		OnOrder:      math.Max(0, it.OnOrder),
		ServiceLevel: s.DefaultServiceLevel,
		MaxQty:       math.Inf(1),
	}
	if t.hasService {
		m.ServiceLevel = t.serviceLevel
	}

	m.LeadTimeDays = math.Max(0, it.LeadTimeDays)
	if t.hasLead {
		m.LeadTimeDays = t.leadDays
	}
	m.LeadTimeDays /= it.Reliability()
	m.LeadTimePeriods = m.LeadTimeDays / periodDays

	m.Demand, m.Sigma = protectionDemand(fc, m.LeadTimePeriods, s.IntervalLevel)
	m.Target = m.Demand + distuv.UnitNormal.Quantile(m.ServiceLevel)*m.Sigma
	m.NetRequirement = math.Max(0, m.Target-m.Position())

	m.HoldingCost = it.HoldingCost
	if m.HoldingCost <= 0 {
		m.HoldingCost = s.HoldingRate * m.Cost * float64(horizon) * periodDays / 365
	}
	m.StockoutPenalty = it.StockoutPenalty
	if m.StockoutPenalty <= 0 {
		m.StockoutPenalty = (m.Cost + m.HoldingCost) * m.ServiceLevel / (1 - m.ServiceLevel)
		if m.StockoutPenalty <= 0 {
			m.StockoutPenalty = m.ServiceLevel / (1 - m.ServiceLevel)
		}
	}

	m.OrderMultiple = s.OrderMultiple(fc.SKU, it.OrderMultiple)
	if t.hasMin && t.minQty > 0 {
		m.MinQty = CeilToMultiple(t.minQty, m.OrderMultiple)
	}
	if it.MaxOrder > 0 {
		m.MaxQty = FloorToMultiple(it.MaxOrder, m.OrderMultiple)
		if m.MinQty > m.MaxQty+quantityEpsilon {
			return m, infeasible(domain.SupplierMinimum{SKU: fc.SKU, MinQty: t.minQty}, fc.SKU,
				fmt.Sprintf("minimum %g exceeds the largest orderable quantity %g", m.MinQty, m.MaxQty))
		}
	}
	return m, nil
}

// protectionDemand returns the expected demand over the horizon plus lead
// time and its standard deviation, recovered from the forecast interval.
func protectionDemand(fc domain.Forecast, leadPeriods float64, defaultLevel float64) (float64, float64) {
	mean, sigma := PeriodStats(fc, defaultLevel)
	n := float64(len(fc.Points))
	return (n+leadPeriods)*mean, sigma * math.Sqrt(n+leadPeriods)
}

// PeriodStats returns the mean forecast per period and the per-period demand
// standard deviation implied by the interval bounds at the forecast's level
// (defaultLevel when unset). Lower bounds may have been floored at zero, so
// the upper half-width is used when it is wider.
func PeriodStats(fc domain.Forecast, defaultLevel float64) (mean, sigma float64) {
	if len(fc.Points) == 0 {
		return 0, 0
	}
	level := fc.IntervalLevel
	if !(level > 0 && level < 1) {
		level = defaultLevel
	}
	z := distuv.UnitNormal.Quantile(0.5 + level/2)

	var total, variance float64
	for _, p := range fc.Points {
		total += p.Point
		half := math.Max((p.Upper-p.Lower)/2, p.Upper-p.Point)
		s := math.Max(0, half) / z
		variance += s * s
	}
	n := float64(len(fc.Points))
	return total / n, math.Sqrt(variance / n)
}

// CeilToMultiple rounds q up to the next multiple of m.
func CeilToMultiple(q, m float64) float64 {
	if m <= 0 {
		return q
	}
	return math.Ceil(q/m-quantityEpsilon) * m
}

// FloorToMultiple rounds q down to the previous multiple of m.
func FloorToMultiple(q, m float64) float64 {
	if m <= 0 {
		return q
	}
	return math.Floor(q/m+quantityEpsilon) * m
}

func infeasible(c domain.Constraint, sku, reason string) *domain.InfeasibleConstraintsError {
	return &domain.InfeasibleConstraintsError{Constraint: c.String(), SKU: sku, Reason: reason}
}
