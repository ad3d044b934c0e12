package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// DemandRecord is a single time-stamped demand observation for a SKU
type DemandRecord struct {
	SKU       string    `json:"sku" db:"sku"`
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Quantity  float64   `json:"quantity" db:"quantity"`
}

// SeriesPoint is one regularized period of a TimeSeries
type SeriesPoint struct {
	Period   time.Time `json:"period"`
	Quantity float64   `json:"quantity"`
	Imputed  bool      `json:"imputed,omitempty"`
	Outlier  bool      `json:"outlier,omitempty"`
	Original float64   `json:"original"`
}

// TimeSeries is a gap-free, strictly increasing series at a fixed frequency
type TimeSeries struct {
	SKU       string             `json:"sku"`
	Frequency settings.Frequency `json:"frequency"`
	Points    []SeriesPoint      `json:"points"`
}

// Len returns the number of periods.
func (ts TimeSeries) Len() int { return len(ts.Points) }

// Values returns the (possibly imputed or capped) quantities in period order.
func (ts TimeSeries) Values() []float64 {
	out := make([]float64, len(ts.Points))
	for i, p := range ts.Points {
		out[i] = p.Quantity
	}
	return out
}

// Last returns the start of the final period.
func (ts TimeSeries) Last() time.Time {
	if len(ts.Points) == 0 {
		return time.Time{}
	}
	return ts.Points[len(ts.Points)-1].Period
}

// ForecastPoint is the prediction for one future period
type ForecastPoint struct {
	Period   time.Time `json:"period"`
	Point    float64   `json:"point"`
	Lower    float64   `json:"lower"`
	Upper    float64   `json:"upper"`
	Adjusted bool      `json:"adjusted,omitempty"`
}

// Forecast is the horizon forecast for one SKU produced by its selected model
type Forecast struct {
	SKU            string             `json:"sku"`
	Horizon        int                `json:"horizon"`
	Model          string             `json:"model"`
	Params         map[string]float64 `json:"params,omitempty"`
	Score          float64            `json:"score"`
	Metric         string             `json:"metric"`
	IntervalMethod string             `json:"interval_method"`
	IntervalLevel  float64            `json:"interval_level"`
	Points         []ForecastPoint    `json:"points"`
	Adjustments    []string           `json:"adjustments,omitempty"`
}

// Total sums the point forecasts over the horizon.
func (f Forecast) Total() float64 {
	var total float64
	for _, p := range f.Points {
		total += p.Point
	}
	return total
}

// Item carries the economics and stock position of a SKU at one warehouse.
// Zero-valued optional fields (HoldingCost, StockoutPenalty, OrderMultiple,
// MaxOrder, SupplierReliability, LeadTimeDays) fall back to run defaults.
type Item struct {
	SKU                 string          `json:"sku" db:"sku" yaml:"sku"`
	Name                string          `json:"name,omitempty" db:"name" yaml:"name"`
	Warehouse           string          `json:"warehouse,omitempty" db:"warehouse" yaml:"warehouse"`
	UnitCost            decimal.Decimal `json:"unit_cost" db:"unit_cost" yaml:"unit_cost"`
	HoldingCost         float64         `json:"holding_cost,omitempty" db:"holding_cost" yaml:"holding_cost"`
	OrderingCost        float64         `json:"ordering_cost,omitempty" db:"ordering_cost" yaml:"ordering_cost"`
	StockoutPenalty     float64         `json:"stockout_penalty,omitempty" db:"stockout_penalty" yaml:"stockout_penalty"`
	OnHand              float64         `json:"on_hand" db:"on_hand" yaml:"on_hand"`
	OnOrder             float64         `json:"on_order,omitempty" db:"on_order" yaml:"on_order"`
	OrderMultiple       float64         `json:"order_multiple,omitempty" db:"order_multiple" yaml:"order_multiple"`
	MaxOrder            float64         `json:"max_order,omitempty" db:"max_order" yaml:"max_order"`
	LeadTimeDays        float64         `json:"lead_time_days,omitempty" db:"lead_time_days" yaml:"lead_time_days"`
	SupplierReliability float64         `json:"supplier_reliability,omitempty" db:"supplier_reliability" yaml:"supplier_reliability"`
}

// Position returns on-hand plus on-order stock.
func (it Item) Position() float64 {
	return it.OnHand + it.OnOrder
}

// Reliability returns the supplier reliability in (0,1], defaulting to 1.
func (it Item) Reliability() float64 {
	if it.SupplierReliability <= 0 || it.SupplierReliability > 1 {
		return 1
	}
	return it.SupplierReliability
}

// GroupRecords splits records by SKU. The returned SKU slice is sorted.
func GroupRecords(records []DemandRecord) (map[string][]DemandRecord, []string) {
	bySKU := make(map[string][]DemandRecord)
	var skus []string
	for _, r := range records {
		if _, ok := bySKU[r.SKU]; !ok {
			skus = append(skus, r.SKU)
		}
		bySKU[r.SKU] = append(bySKU[r.SKU], r)
	}
	sort.Strings(skus)
	return bySKU, skus
}
