// Package policy derives classic inventory control figures (EOQ, safety stock,
// reorder point) for planned SKUs and recommends transfers between locations.
package policy

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AniruddhAgrahari/smartstock/internal/constraints"
	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

const daysPerYear = 365

// Advisor computes inventory policies
type Advisor struct {
	settings settings.Settings
}

// NewAdvisor creates an advisor for the given run settings
func NewAdvisor(s settings.Settings) *Advisor {
	return &Advisor{settings: s}
}

// Recommend returns one policy per SKU of p, in SKU order. SKUs without a
// forecast get a zero-demand policy.
func (a *Advisor) Recommend(p *constraints.Problem, forecasts []domain.Forecast) []domain.InventoryPolicy {
	bySKU := make(map[string]domain.Forecast, len(forecasts))
	for _, fc := range forecasts {
		bySKU[fc.SKU] = fc
	}
	freq := p.Frequency
	if !freq.Valid() {
		freq = a.settings.Frequency
	}

	out := make([]domain.InventoryPolicy, 0, len(p.SKUs))
	for _, m := range p.SKUs {
		mean, sigma := constraints.PeriodStats(bySKU[m.SKU], a.settings.IntervalLevel)
		daily := mean / freq.Days()
		dailySigma := sigma / math.Sqrt(freq.Days())
		out = append(out, a.policy(m, daily, dailySigma))
	}
	return out
}

func (a *Advisor) policy(m constraints.SKUModel, daily, dailySigma float64) domain.InventoryPolicy {
	lead := m.LeadTimeDays
	pol := domain.InventoryPolicy{
		SKU:          m.SKU,
		DailyDemand:  daily,
		DemandStdDev: dailySigma,
		LeadTimeDays: lead,
		ServiceLevel: m.ServiceLevel,
	}
	position := m.Position()

	orderingCost := m.OrderingCost
	if orderingCost <= 0 {
		orderingCost = a.settings.DefaultOrderingCost
	}
	pol.EOQ = EOQ(daily*daysPerYear, orderingCost, a.settings.HoldingRate*m.Cost)

	if daily > 0 && lead > 0 {
		pol.SafetyStock = math.Ceil(SafetyStock(m.ServiceLevel, dailySigma, lead))
		pol.ReorderPoint = math.Ceil(daily*lead + pol.SafetyStock)
	}
	if daily > 0 {
		pol.DaysOfSupply = position / daily
		pol.ShouldReorder = position <= pol.ReorderPoint
	}
	pol.StockoutProbability = StockoutProbability(position, daily, dailySigma, lead)
	return pol
}

// EOQ is the Wilson economic order quantity √(2DK/h), rounded up, for annual
// demand D, ordering cost K and annual holding cost per unit h.
func EOQ(annualDemand, orderingCost, holdingCost float64) float64 {
	if annualDemand <= 0 || holdingCost <= 0 || orderingCost <= 0 {
		return 0
	}
	return math.Ceil(math.Sqrt(2 * annualDemand * orderingCost / holdingCost))
}

// SafetyStock is z(serviceLevel)·σ·√L for daily demand deviation σ and lead
// time L in days.
func SafetyStock(serviceLevel, dailySigma, leadDays float64) float64 {
	if dailySigma <= 0 || leadDays <= 0 || !(serviceLevel > 0 && serviceLevel < 1) {
		return 0
	}
	return math.Max(0, distuv.UnitNormal.Quantile(serviceLevel)*dailySigma*math.Sqrt(leadDays))
}

// StockoutProbability is the chance that lead-time demand exceeds stock,
// assuming normally distributed daily demand.
func StockoutProbability(stock, daily, dailySigma, leadDays float64) float64 {
	if daily <= 0 {
		if stock > 0 {
			return 0
		}
		return 1
	}
	mu := daily * math.Max(leadDays, 0)
	sd := dailySigma * math.Sqrt(math.Max(leadDays, 0))
	if sd <= 0 {
		if stock < mu {
			return 1
		}
		return 0
	}
	return distuv.Normal{Mu: mu, Sigma: sd}.Survival(stock)
}
