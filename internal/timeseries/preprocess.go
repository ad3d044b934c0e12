// Package timeseries regularizes raw demand records into gap-free,
// fixed-frequency series.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// madScale converts a MAD-based deviation into a standard-normal z-score.
const madScale = 0.6745

// maxPeriods bounds the regularized span so a stray timestamp cannot allocate
// an unbounded series.
const maxPeriods = 100000

// Preprocess buckets, gap-fills and outlier-caps the records of one SKU.
func Preprocess(sku string, records []domain.DemandRecord, s settings.Settings) (domain.TimeSeries, error) {
	ts := domain.TimeSeries{SKU: sku, Frequency: s.Frequency}

	buckets := make(map[time.Time]float64, len(records))
	for _, r := range records {
		if r.SKU != sku {
			return ts, fmt.Errorf("record for sku %q passed to preprocessing of %q", r.SKU, sku)
		}
		if math.IsNaN(r.Quantity) || math.IsInf(r.Quantity, 0) {
			return ts, fmt.Errorf("sku %s: non-finite quantity at %s", sku, r.Timestamp.Format(time.RFC3339))
		}
		buckets[s.Frequency.Truncate(r.Timestamp)] += r.Quantity
	}
	if len(buckets) == 0 {
		return ts, &domain.InsufficientHistoryError{SKU: sku, Have: 0, Need: s.MinHistory}
	}

	periods := make([]time.Time, 0, len(buckets))
	for p := range buckets {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })

	first, last := periods[0], periods[len(periods)-1]
	for p := first; !p.After(last); p = s.Frequency.Next(p) {
		if len(ts.Points) >= maxPeriods {
			return ts, fmt.Errorf("sku %s: history spans more than %d periods", sku, maxPeriods)
		}
		raw, observed := buckets[p]
		ts.Points = append(ts.Points, domain.SeriesPoint{
			Period:   p,
			Quantity: math.Max(0, raw),
			Original: raw,
			Imputed:  !observed,
		})
	}

	if len(ts.Points) < s.MinHistory {
		return ts, &domain.InsufficientHistoryError{SKU: sku, Have: len(ts.Points), Need: s.MinHistory}
	}

	flagOutliers(ts.Points, s.OutlierThreshold, s.CapOutliers)
	fillGaps(ts.Points, s.ZeroFillGaps)
	return ts, nil
}

// PreprocessAll runs Preprocess per SKU. Failures are returned per SKU rather
// than aborting the batch.
func PreprocessAll(records []domain.DemandRecord, s settings.Settings) ([]domain.TimeSeries, []domain.SKUFailure) {
	bySKU, skus := domain.GroupRecords(records)
	var (
		out      []domain.TimeSeries
		failures []domain.SKUFailure
	)
	for _, sku := range skus {
		ts, err := Preprocess(sku, bySKU[sku], s)
		if err != nil {
			failures = append(failures, domain.NewSKUFailure(sku, domain.StagePreprocess, err))
			continue
		}
		out = append(out, ts)
	}
	return out, failures
}

// flagOutliers marks observed points whose robust z-score exceeds threshold
// and, when capping, pulls them back to the threshold boundary.
func flagOutliers(points []domain.SeriesPoint, threshold float64, capValues bool) {
	if threshold <= 0 {
		return
	}
	var observed []float64
	for _, p := range points {
		if !p.Imputed {
			observed = append(observed, p.Quantity)
		}
	}
	if len(observed) < 3 {
		return
	}
	med := Median(observed)
	deviations := make([]float64, len(observed))
	for i, v := range observed {
		deviations[i] = math.Abs(v - med)
	}
	mad := Median(deviations)
	if mad == 0 {
		return
	}

	bound := threshold * mad / madScale
	for i := range points {
		if points[i].Imputed {
			continue
		}
		z := madScale * (points[i].Quantity - med) / mad
		if math.Abs(z) <= threshold {
			continue
		}
		points[i].Outlier = true
		if !capValues {
			continue
		}
		if z > 0 {
			points[i].Quantity = med + bound
		} else {
			points[i].Quantity = math.Max(0, med-bound)
		}
	}
}

// fillGaps imputes missing periods. The first and last periods are always
// observed, so every gap has a known neighbour on both sides.
func fillGaps(points []domain.SeriesPoint, zeroFill bool) {
	prev := -1
	for i := range points {
		if !points[i].Imputed {
			if prev >= 0 && i-prev > 1 {
				lo, hi := points[prev].Quantity, points[i].Quantity
				span := float64(i - prev)
				for j := prev + 1; j < i; j++ {
					v := 0.0
					if !zeroFill {
						v = lo + (hi-lo)*float64(j-prev)/span
					}
					points[j].Quantity = v
					points[j].Original = v
				}
			}
			prev = i
		}
	}
}

// Median returns the median of values without modifying them.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
