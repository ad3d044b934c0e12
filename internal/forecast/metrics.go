package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// Score computes the named error metric of predicted against actual.
func Score(metric string, actual, predicted []float64) (float64, error) {
	if len(actual) != len(predicted) {
		return 0, fmt.Errorf("length mismatch: %d actual, %d predicted", len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return 0, fmt.Errorf("no points to score")
	}
	switch metric {
	case settings.MetricMAPE, "":
		return MAPE(actual, predicted), nil
	case settings.MetricSMAPE:
		return SMAPE(actual, predicted), nil
	case settings.MetricMAE:
		return floats.Distance(actual, predicted, 1) / float64(len(actual)), nil
	case settings.MetricRMSE:
		return floats.Distance(actual, predicted, 2) / math.Sqrt(float64(len(actual))), nil
	}
	return 0, fmt.Errorf("unsupported error metric %q", metric)
}

// MAPE is the mean absolute percentage error. A zero actual contributes 0
// when the prediction is also 0 and 100% otherwise.
func MAPE(actual, predicted []float64) float64 {
	var total float64
	for i, a := range actual {
		switch {
		case a != 0:
			total += math.Abs(a-predicted[i]) / math.Abs(a)
		case predicted[i] != 0:
			total++
		}
	}
	return 100 * total / float64(len(actual))
}

// SMAPE is the symmetric mean absolute percentage error in [0, 200].
func SMAPE(actual, predicted []float64) float64 {
	var total float64
	for i, a := range actual {
		denom := math.Abs(a) + math.Abs(predicted[i])
		if denom == 0 {
			continue
		}
		total += 2 * math.Abs(a-predicted[i]) / denom
	}
	return 100 * total / float64(len(actual))
}
