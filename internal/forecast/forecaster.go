package forecast

import (
	"fmt"
	"math"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// Forecaster turns a selected model into a horizon forecast with an interval.
type Forecaster struct {
	settings settings.Settings
	selector *Selector
}

// NewForecaster creates a forecaster for the given run settings.
func NewForecaster(s settings.Settings) *Forecaster {
	return &Forecaster{settings: s, selector: NewSelector(s)}
}

// Run selects a model for ts and forecasts horizon periods.
func (f *Forecaster) Run(ts domain.TimeSeries, horizon int) (domain.Forecast, Selection, error) {
	sel, err := f.selector.Select(ts)
	if err != nil {
		return domain.Forecast{}, sel, err
	}
	fc, err := f.Forecast(ts, sel, horizon)
	return fc, sel, err
}

// Forecast produces horizon points from sel. Negative points are clamped to
// zero and inverted bounds are pulled back around the point; both are flagged
// on the point and described in Adjustments.
func (f *Forecaster) Forecast(ts domain.TimeSeries, sel Selection, horizon int) (domain.Forecast, error) {
	if horizon < 1 {
		return domain.Forecast{}, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	if sel.Model == nil {
		return domain.Forecast{}, fmt.Errorf("sku %s: no model selected", ts.SKU)
	}
	if ts.Len() == 0 {
		return domain.Forecast{}, fmt.Errorf("sku %s: empty series", ts.SKU)
	}

	level := f.settings.IntervalLevel
	pred := sel.Model.Predict(horizon)
	lo, hi := sel.Model.Band(horizon, level)

	fc := domain.Forecast{
		SKU:            ts.SKU,
		Horizon:        horizon,
		Model:          string(sel.Model.Kind()),
		Params:         sel.Model.Params(),
		Score:          sel.Score,
		Metric:         sel.Metric,
		IntervalMethod: sel.Model.IntervalMethod(),
		IntervalLevel:  level,
		Points:         make([]domain.ForecastPoint, horizon),
	}

	period := ts.Last()
	for i := 0; i < horizon; i++ {
		period = ts.Frequency.Next(period)
		point := pred[i]
		if math.IsNaN(point) || math.IsInf(point, 0) {
			return domain.Forecast{}, fmt.Errorf("sku %s: %s produced a non-finite forecast", ts.SKU, fc.Model)
		}
		p := domain.ForecastPoint{Period: period, Point: point, Lower: point + lo[i], Upper: point + hi[i]}

		if p.Point < 0 {
			fc.Adjustments = append(fc.Adjustments, fmt.Sprintf("period %d: negative point %.4g clamped to 0", i+1, p.Point))
			p.Point, p.Adjusted = 0, true
		}
		if p.Lower > p.Point || p.Upper < p.Point || math.IsNaN(p.Lower) || math.IsNaN(p.Upper) {
			fc.Adjustments = append(fc.Adjustments, fmt.Sprintf("period %d: interval [%.4g, %.4g] repaired around %.4g", i+1, p.Lower, p.Upper, p.Point))
			p.Lower = safeMin(p.Lower, p.Point)
			p.Upper = safeMax(p.Upper, p.Point)
			p.Adjusted = true
		}
		// Demand cannot be negative; the lower bound is floored silently.
		p.Lower = math.Max(0, p.Lower)
		fc.Points[i] = p
	}
	return fc, nil
}

func safeMin(bound, point float64) float64 {
	if math.IsNaN(bound) {
		return point
	}
	return math.Min(bound, point)
}

func safeMax(bound, point float64) float64 {
	if math.IsNaN(bound) {
		return point
	}
	return math.Max(bound, point)
}
