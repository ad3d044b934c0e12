package timeseries

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

// Describe computes summary statistics over the series values.
func Describe(ts domain.TimeSeries) domain.SeriesSummary {
	values := ts.Values()
	sum := domain.SeriesSummary{Periods: len(values)}
	if len(values) == 0 {
		return sum
	}
	var zeros int
	for _, p := range ts.Points {
		if p.Imputed {
			sum.Imputed++
		}
		if p.Outlier {
			sum.Outliers++
		}
		if p.Quantity == 0 {
			zeros++
		}
	}
	sum.Mean, sum.StdDev = stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		sum.StdDev = 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sum.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	sum.ZeroShare = float64(zeros) / float64(len(values))
	// Over a third of zero periods is treated as intermittent demand.
	sum.Intermittent = sum.ZeroShare > 1.0/3
	return sum
}
