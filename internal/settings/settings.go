// Package settings holds the immutable run configuration threaded through every
// stage of the forecasting and replenishment engine.
package settings

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Frequency is the fixed period length a demand series is regularized to.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Days returns the nominal length of one period in days.
func (f Frequency) Days() float64 {
	switch f {
	case Weekly:
		return 7
	case Monthly:
		return 30.4375
	default:
		return 1
	}
}

// Truncate maps t onto the start of its period (UTC).
func (f Frequency) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch f {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Next returns the start of the period after the one starting at t.
func (f Frequency) Next(t time.Time) time.Time {
	switch f {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	return f == Daily || f == Weekly || f == Monthly
}

// Error metrics accepted by ErrorMetric.
const (
	MetricMAPE  = "mape"
	MetricSMAPE = "smape"
	MetricMAE   = "mae"
	MetricRMSE  = "rmse"
)

// Solver backends accepted by SolverBackend.
const (
	BackendSimplex = "simplex"
	BackendMILP    = "milp"
	BackendGreedy  = "greedy"
)

// Settings configures one engine run. It is passed by value; OrderMultiples
// and Models are copied by Clone before a run starts so callers cannot mutate
// a run in flight.
type Settings struct {
	// Preprocessing
	Frequency        Frequency
	MinHistory       int
	ZeroFillGaps     bool
	OutlierThreshold float64
	CapOutliers      bool

	// Model selection and forecasting
	ValidationWindow int
	ErrorMetric      string
	SeasonLength     int
	Models           []string
	TieTolerance     float64
	IntervalLevel    float64
	ARIMAOrder       [3]int

	// Constraint building
	DefaultServiceLevel  float64
	HoldingRate          float64 // annual holding cost as a fraction of unit cost
	DefaultOrderingCost  float64
	DefaultOrderMultiple float64
	OrderMultiples       map[string]float64

	// Optimization and validation
	SolverBackend   string
	SolverTimeLimit time.Duration
	MaxNodes        int
	IntegerOrders   bool
	SnapTolerance   float64

	Workers int
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Frequency:        Daily,
		MinHistory:       4,
		OutlierThreshold: 3.5,
		CapOutliers:      true,

		ValidationWindow: 7,
		ErrorMetric:      MetricMAPE,
		SeasonLength:     7,
		Models:           []string{"naive_seasonal", "exponential_smoothing", "arima", "decomposition"},
		TieTolerance:     1e-9,
		IntervalLevel:    0.95,
		ARIMAOrder:       [3]int{1, 1, 0},

		DefaultServiceLevel:  0.95,
		HoldingRate:          0.25,
		DefaultOrderingCost:  20,
		DefaultOrderMultiple: 1,

		SolverBackend:   BackendSimplex,
		SolverTimeLimit: 0,
		MaxNodes:        5000,
		SnapTolerance:   1e-6,

		Workers: runtime.NumCPU(),
	}
}

// Validate checks option ranges.
func (s Settings) Validate() error {
	if !s.Frequency.Valid() {
		return fmt.Errorf("unsupported frequency %q", s.Frequency)
	}
	if s.MinHistory < 2 {
		return fmt.Errorf("min history must be at least 2, got %d", s.MinHistory)
	}
	if s.ValidationWindow < 1 {
		return fmt.Errorf("validation window must be positive, got %d", s.ValidationWindow)
	}
	switch s.ErrorMetric {
	case MetricMAPE, MetricSMAPE, MetricMAE, MetricRMSE:
	default:
		return fmt.Errorf("unsupported error metric %q", s.ErrorMetric)
	}
	if s.SeasonLength < 1 {
		return fmt.Errorf("season length must be positive, got %d", s.SeasonLength)
	}
	if len(s.Models) == 0 {
		return fmt.Errorf("at least one forecast model must be enabled")
	}
	if s.IntervalLevel <= 0 || s.IntervalLevel >= 1 {
		return fmt.Errorf("interval level must be in (0,1), got %v", s.IntervalLevel)
	}
	if s.DefaultServiceLevel <= 0 || s.DefaultServiceLevel >= 1 {
		return fmt.Errorf("default service level must be in (0,1), got %v", s.DefaultServiceLevel)
	}
	if s.HoldingRate < 0 {
		return fmt.Errorf("holding rate cannot be negative")
	}
	if s.DefaultOrderMultiple <= 0 {
		return fmt.Errorf("default order multiple must be positive, got %v", s.DefaultOrderMultiple)
	}
	for sku, m := range s.OrderMultiples {
		if m <= 0 {
			return fmt.Errorf("order multiple for %s must be positive, got %v", sku, m)
		}
	}
	switch s.SolverBackend {
	case BackendSimplex, BackendMILP, BackendGreedy:
	default:
		return fmt.Errorf("unsupported solver backend %q", s.SolverBackend)
	}
	if s.SolverTimeLimit < 0 {
		return fmt.Errorf("solver time limit cannot be negative")
	}
	if s.ARIMAOrder[0] < 0 || s.ARIMAOrder[1] < 0 || s.ARIMAOrder[1] > 2 {
		return fmt.Errorf("invalid arima order %v", s.ARIMAOrder)
	}
	return nil
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.Models = append([]string(nil), s.Models...)
	if s.OrderMultiples != nil {
		c.OrderMultiples = make(map[string]float64, len(s.OrderMultiples))
		for k, v := range s.OrderMultiples {
			c.OrderMultiples[k] = v
		}
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}

// OrderMultiple resolves the order multiple for sku: explicit per-SKU setting,
// then the item's own case size, then the default.
func (s Settings) OrderMultiple(sku string, itemMultiple float64) float64 {
	if m, ok := s.OrderMultiples[sku]; ok && m > 0 {
		return m
	}
	if itemMultiple > 0 {
		return itemMultiple
	}
	return s.DefaultOrderMultiple
}

// ForecastFingerprint hashes the options that change forecast output. It is
// part of the forecast cache key.
func (s Settings) ForecastFingerprint() string {
	parts := []string{
		"freq=" + string(s.Frequency),
		fmt.Sprintf("min=%d", s.MinHistory),
		fmt.Sprintf("zero=%t", s.ZeroFillGaps),
		fmt.Sprintf("outlier=%g", s.OutlierThreshold),
		fmt.Sprintf("cap=%t", s.CapOutliers),
		fmt.Sprintf("window=%d", s.ValidationWindow),
		"metric=" + s.ErrorMetric,
		fmt.Sprintf("season=%d", s.SeasonLength),
		"models=" + strings.Join(s.Models, ","),
		fmt.Sprintf("tie=%g", s.TieTolerance),
		fmt.Sprintf("level=%g", s.IntervalLevel),
		fmt.Sprintf("arima=%v", s.ARIMAOrder),
	}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
