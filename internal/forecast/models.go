// Package forecast fits candidate demand models, selects one per SKU on a
// held-out window and produces horizon forecasts with uncertainty bands.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// Kind identifies a model variant.
type Kind string

const (
	NaiveSeasonal        Kind = "naive_seasonal"
	ExponentialSmoothing Kind = "exponential_smoothing"
	ARIMA                Kind = "arima"
	Decomposition        Kind = "decomposition"
	LastValue            Kind = "last_value"
)

// Candidates lists the selectable variants in their default order.
var Candidates = []Kind{NaiveSeasonal, ExponentialSmoothing, ARIMA, Decomposition}

// Interval methods reported on a Forecast.
const (
	IntervalAnalytic         = "analytic"
	IntervalResidualQuantile = "residual_quantile"
)

// ErrTooShort is returned when a series is too short for a variant.
var ErrTooShort = errors.New("series too short for model")

// ParseKind validates a model name.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case NaiveSeasonal, ExponentialSmoothing, ARIMA, Decomposition, LastValue:
		return k, nil
	}
	return "", fmt.Errorf("unknown forecast model %q", name)
}

// Model is a variant fitted to a series. The implementations are closed to
// this package and constructed only through Fit.
type Model interface {
	Kind() Kind
	Params() map[string]float64
	NumParams() int
	// Residuals are the in-sample one-step errors.
	Residuals() []float64
	Predict(h int) []float64
	// Band returns per-step offsets from the point forecast at the given
	// coverage level; lo is at most 0 and hi at least 0.
	Band(h int, level float64) (lo, hi []float64)
	IntervalMethod() string
	model()
}

// Fit fits variant kind to y.
func Fit(kind Kind, y []float64, s settings.Settings) (Model, error) {
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s: non-finite value in series", kind)
		}
	}
	switch kind {
	case NaiveSeasonal:
		return fitNaiveSeasonal(y, s.SeasonLength)
	case ExponentialSmoothing:
		return fitHolt(y)
	case ARIMA:
		return fitARIMA(y, s.ARIMAOrder[0], s.ARIMAOrder[1])
	case Decomposition:
		return fitDecomposition(y, s.SeasonLength)
	case LastValue:
		return fitLastValue(y)
	}
	return nil, fmt.Errorf("unknown forecast model %q", kind)
}

func zScore(level float64) float64 {
	return distuv.UnitNormal.Quantile(0.5 + level/2)
}

// residualSigma is the residual standard error corrected for k fitted parameters.
func residualSigma(res []float64, k int) float64 {
	if len(res) == 0 {
		return 0
	}
	dof := len(res) - k
	if dof < 1 {
		dof = len(res)
	}
	return math.Sqrt(floats.Dot(res, res) / float64(dof))
}

// symmetricBand scales sigma by the per-step standard deviation factors.
func symmetricBand(sigma float64, factors []float64, level float64) ([]float64, []float64) {
	z := zScore(level)
	lo := make([]float64, len(factors))
	hi := make([]float64, len(factors))
	for i, f := range factors {
		hi[i] = z * sigma * f
		lo[i] = -hi[i]
	}
	return lo, hi
}

// lastValue repeats the final observation.
type lastValue struct {
	last      float64
	residuals []float64
}

func fitLastValue(y []float64) (*lastValue, error) {
	if len(y) == 0 {
		return nil, ErrTooShort
	}
	m := &lastValue{last: y[len(y)-1]}
	for t := 1; t < len(y); t++ {
		m.residuals = append(m.residuals, y[t]-y[t-1])
	}
	return m, nil
}

func (m *lastValue) Kind() Kind                 { return LastValue }
func (m *lastValue) Params() map[string]float64 { return map[string]float64{"last": m.last} }
func (m *lastValue) NumParams() int             { return 0 }
func (m *lastValue) Residuals() []float64       { return m.residuals }
func (m *lastValue) IntervalMethod() string     { return IntervalAnalytic }
func (m *lastValue) model()                     {}

func (m *lastValue) Predict(h int) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = m.last
	}
	return out
}

func (m *lastValue) Band(h int, level float64) ([]float64, []float64) {
	factors := make([]float64, h)
	for i := range factors {
		factors[i] = math.Sqrt(float64(i + 1))
	}
	return symmetricBand(residualSigma(m.residuals, 0), factors, level)
}

// naiveSeasonal repeats the last full season.
type naiveSeasonal struct {
	season    int
	tail      []float64
	residuals []float64
}

func fitNaiveSeasonal(y []float64, season int) (*naiveSeasonal, error) {
	if season < 2 {
		return nil, fmt.Errorf("naive seasonal needs a season of at least 2, got %d", season)
	}
	if len(y) < season+1 {
		return nil, fmt.Errorf("%w: naive seasonal needs %d points, got %d", ErrTooShort, season+1, len(y))
	}
	m := &naiveSeasonal{season: season, tail: append([]float64(nil), y[len(y)-season:]...)}
	for t := season; t < len(y); t++ {
		m.residuals = append(m.residuals, y[t]-y[t-season])
	}
	return m, nil
}

func (m *naiveSeasonal) Kind() Kind { return NaiveSeasonal }
func (m *naiveSeasonal) Params() map[string]float64 {
	return map[string]float64{"season": float64(m.season)}
}
func (m *naiveSeasonal) NumParams() int         { return 1 }
func (m *naiveSeasonal) Residuals() []float64   { return m.residuals }
func (m *naiveSeasonal) IntervalMethod() string { return IntervalAnalytic }
func (m *naiveSeasonal) model()                 {}

func (m *naiveSeasonal) Predict(h int) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = m.tail[i%m.season]
	}
	return out
}

func (m *naiveSeasonal) Band(h int, level float64) ([]float64, []float64) {
	factors := make([]float64, h)
	for i := range factors {
		factors[i] = math.Sqrt(float64(i/m.season + 1))
	}
	return symmetricBand(residualSigma(m.residuals, 0), factors, level)
}

// holt is Holt's linear exponential smoothing; beta = 0 is simple smoothing.
type holt struct {
	alpha, beta  float64
	level, trend float64
	residuals    []float64
}

var (
	holtAlphas = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	holtBetas  = []float64{0, 0.05, 0.1, 0.2, 0.3}
)

func fitHolt(y []float64) (*holt, error) {
	if len(y) < 3 {
		return nil, fmt.Errorf("%w: exponential smoothing needs 3 points, got %d", ErrTooShort, len(y))
	}
	var best *holt
	bestSSE := math.Inf(1)
	for _, a := range holtAlphas {
		for _, b := range holtBetas {
			m := runHolt(y, a, b)
			sse := floats.Dot(m.residuals, m.residuals)
			// Strict improvement keeps the earliest, simplest grid point on ties.
			if sse < bestSSE-1e-12 {
				best, bestSSE = m, sse
			}
		}
	}
	return best, nil
}

func runHolt(y []float64, alpha, beta float64) *holt {
	level, trend := y[0], 0.0
	if beta > 0 {
		trend = y[1] - y[0]
	}
	residuals := make([]float64, 0, len(y)-1)
	for t := 1; t < len(y); t++ {
		fc := level + trend
		residuals = append(residuals, y[t]-fc)
		prev := level
		level = alpha*y[t] + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
	}
	return &holt{alpha: alpha, beta: beta, level: level, trend: trend, residuals: residuals}
}

func (m *holt) Kind() Kind { return ExponentialSmoothing }
func (m *holt) Params() map[string]float64 {
	return map[string]float64{"alpha": m.alpha, "beta": m.beta, "level": m.level, "trend": m.trend}
}

func (m *holt) NumParams() int {
	if m.beta == 0 {
		return 1
	}
	return 2
}

func (m *holt) Residuals() []float64   { return m.residuals }
func (m *holt) IntervalMethod() string { return IntervalAnalytic }
func (m *holt) model()                 {}

func (m *holt) Predict(h int) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = m.level + float64(i+1)*m.trend
	}
	return out
}

func (m *holt) Band(h int, level float64) ([]float64, []float64) {
	factors := make([]float64, h)
	var acc float64
	for i := range factors {
		if i > 0 {
			c := m.alpha * (1 + float64(i)*m.beta)
			acc += c * c
		}
		factors[i] = math.Sqrt(1 + acc)
	}
	return symmetricBand(residualSigma(m.residuals, m.NumParams()), factors, level)
}

// arima is ARIMA(p,d,0): an AR(p) model with drift on the d-times
// differenced series.
type arima struct {
	p, d      int
	phi       []float64
	mean      float64
	history   []float64
	residuals []float64
}

func fitARIMA(y []float64, p, d int) (*arima, error) {
	w := difference(y, d)
	if len(w) < p+3 {
		return nil, fmt.Errorf("%w: arima(%d,%d,0) needs %d points, got %d", ErrTooShort, p, d, p+d+3, len(y))
	}
	mean := stat.Mean(w, nil)
	centered := make([]float64, len(w))
	for i, v := range w {
		centered[i] = v - mean
	}
	phi, err := fitAR(centered, p)
	if err != nil {
		return nil, fmt.Errorf("arima(%d,%d,0): %w", p, d, err)
	}
	m := &arima{p: p, d: d, phi: phi, mean: mean, history: append([]float64(nil), y...)}
	for t := p; t < len(centered); t++ {
		fc := 0.0
		for i, c := range phi {
			fc += c * centered[t-1-i]
		}
		m.residuals = append(m.residuals, centered[t]-fc)
	}
	return m, nil
}

func (m *arima) Kind() Kind { return ARIMA }

func (m *arima) Params() map[string]float64 {
	params := map[string]float64{"p": float64(m.p), "d": float64(m.d), "mean": m.mean}
	for i, c := range m.phi {
		params[fmt.Sprintf("phi%d", i+1)] = c
	}
	return params
}

func (m *arima) NumParams() int         { return m.p + 1 }
func (m *arima) Residuals() []float64   { return m.residuals }
func (m *arima) IntervalMethod() string { return IntervalAnalytic }
func (m *arima) model()                 {}

func (m *arima) Predict(h int) []float64 {
	// Forecast the stationary series, then integrate back d times.
	w := difference(m.history, m.d)
	ext := append([]float64(nil), w...)
	for i := 0; i < h; i++ {
		fc := m.mean
		for j, c := range m.phi {
			fc += c * (ext[len(ext)-1-j] - m.mean)
		}
		ext = append(ext, fc)
	}
	future := ext[len(w):]

	for level := m.d; level > 0; level-- {
		base := difference(m.history, level-1)
		last := base[len(base)-1]
		for i := range future {
			last += future[i]
			future[i] = last
		}
	}
	return future
}

// Band uses the psi weights of the combined AR and differencing polynomial.
func (m *arima) Band(h int, level float64) ([]float64, []float64) {
	poly := append([]float64(nil), m.phi...)
	for i := 0; i < m.d; i++ {
		// multiply by (1 - B): c'_j = c_j - c_{j-1} with c_0 = -1
		next := make([]float64, len(poly)+1)
		for j := range next {
			cur, prev := 0.0, -1.0
			if j < len(poly) {
				cur = poly[j]
			}
			if j > 0 {
				prev = poly[j-1]
			}
			next[j] = cur - prev
		}
		poly = next
	}
	psi := make([]float64, h)
	psi[0] = 1
	for j := 1; j < h; j++ {
		for i := 1; i <= len(poly) && i <= j; i++ {
			psi[j] += poly[i-1] * psi[j-i]
		}
	}
	factors := make([]float64, h)
	var acc float64
	for i := range factors {
		acc += psi[i] * psi[i]
		factors[i] = math.Sqrt(acc)
	}
	return symmetricBand(residualSigma(m.residuals, m.NumParams()), factors, level)
}

func difference(y []float64, d int) []float64 {
	out := append([]float64(nil), y...)
	for i := 0; i < d && len(out) > 0; i++ {
		next := make([]float64, len(out)-1)
		for t := 1; t < len(out); t++ {
			next[t-1] = out[t] - out[t-1]
		}
		out = next
	}
	return out
}

// fitAR estimates AR(p) coefficients from the sample autocorrelations with
// the Levinson-Durbin recursion.
func fitAR(centered []float64, p int) ([]float64, error) {
	if p == 0 {
		return nil, nil
	}
	var c0 float64
	for _, v := range centered {
		c0 += v * v
	}
	if c0 == 0 {
		return nil, errors.New("constant series has no autocorrelation")
	}
	acf := make([]float64, p+1)
	acf[0] = 1
	for k := 1; k <= p; k++ {
		var ck float64
		for t := k; t < len(centered); t++ {
			ck += centered[t] * centered[t-k]
		}
		acf[k] = ck / c0
	}

	phi := make([]float64, p+1)
	prev := make([]float64, p+1)
	v := 1.0
	for k := 1; k <= p; k++ {
		num := acf[k]
		for j := 1; j < k; j++ {
			num -= prev[j] * acf[k-j]
		}
		if v <= 1e-12 {
			return nil, errors.New("numerical instability in Levinson-Durbin")
		}
		phi[k] = num / v
		for j := 1; j < k; j++ {
			phi[j] = prev[j] - phi[k]*prev[k-j]
		}
		v *= 1 - phi[k]*phi[k]
		copy(prev, phi)
	}
	return phi[1:], nil
}

// decomposition is an additive linear trend plus seasonal indices.
type decomposition struct {
	season      int
	intercept   float64
	slope       float64
	indices     []float64
	n           int
	residuals   []float64
	sortedResid []float64
}

func fitDecomposition(y []float64, season int) (*decomposition, error) {
	if season < 2 {
		return nil, fmt.Errorf("decomposition needs a season of at least 2, got %d", season)
	}
	if len(y) < 2*season {
		return nil, fmt.Errorf("%w: decomposition needs %d points, got %d", ErrTooShort, 2*season, len(y))
	}
	// Joint least squares on [1, t, phase dummies] keeps the trend unbiased
	// by the seasonal pattern.
	n, cols := len(y), season+1
	design := mat.NewDense(n, cols, nil)
	for t := 0; t < n; t++ {
		design.Set(t, 0, 1)
		design.Set(t, 1, float64(t))
		if phase := t % season; phase > 0 {
			design.Set(t, 1+phase, 1)
		}
	}
	var coef mat.VecDense
	if err := coef.SolveVec(design, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("decomposition least squares: %w", err)
	}

	indices := make([]float64, season)
	for phase := 1; phase < season; phase++ {
		indices[phase] = coef.AtVec(1 + phase)
	}
	// Center the indices so the trend carries the level.
	shift := stat.Mean(indices, nil)
	for i := range indices {
		indices[i] -= shift
	}
	alpha, beta := coef.AtVec(0)+shift, coef.AtVec(1)

	m := &decomposition{season: season, intercept: alpha, slope: beta, indices: indices, n: len(y)}
	for t, v := range y {
		m.residuals = append(m.residuals, v-m.at(t))
	}
	m.sortedResid = append([]float64(nil), m.residuals...)
	sort.Float64s(m.sortedResid)
	return m, nil
}

func (m *decomposition) at(t int) float64 {
	return m.intercept + m.slope*float64(t) + m.indices[t%m.season]
}

func (m *decomposition) Kind() Kind { return Decomposition }

func (m *decomposition) Params() map[string]float64 {
	params := map[string]float64{
		"season":    float64(m.season),
		"intercept": m.intercept,
		"slope":     m.slope,
	}
	for i, v := range m.indices {
		params[fmt.Sprintf("s%d", i)] = v
	}
	return params
}

func (m *decomposition) NumParams() int         { return 2 + m.season - 1 }
func (m *decomposition) Residuals() []float64   { return m.residuals }
func (m *decomposition) IntervalMethod() string { return IntervalResidualQuantile }
func (m *decomposition) model()                 {}

func (m *decomposition) Predict(h int) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = m.at(m.n + i)
	}
	return out
}

// Band scales the empirical residual quantiles by sqrt(h).
func (m *decomposition) Band(h int, level float64) ([]float64, []float64) {
	qlo := stat.Quantile((1-level)/2, stat.LinInterp, m.sortedResid, nil)
	qhi := stat.Quantile((1+level)/2, stat.LinInterp, m.sortedResid, nil)
	lo := make([]float64, h)
	hi := make([]float64, h)
	for i := range lo {
		f := math.Sqrt(float64(i + 1))
		lo[i] = math.Min(0, qlo) * f
		hi[i] = math.Max(0, qhi) * f
	}
	return lo, hi
}
