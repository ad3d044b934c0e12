package forecast

import (
	"fmt"
	"math"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/settings"
)

// Evaluation is the holdout result of one candidate.
type Evaluation struct {
	Model     Kind    `json:"model"`
	Score     float64 `json:"score"`
	NumParams int     `json:"num_params"`
	Err       string  `json:"error,omitempty"`
	Selected  bool    `json:"selected"`
}

// Selection is the chosen model refit on the full series.
type Selection struct {
	Model       Model
	Score       float64
	Metric      string
	Holdout     int
	Fallback    bool
	Evaluations []Evaluation
}

// Selector picks the best candidate per series on a held-out tail.
type Selector struct {
	settings settings.Settings
}

// NewSelector creates a selector for the given run settings.
func NewSelector(s settings.Settings) *Selector {
	return &Selector{settings: s}
}

// Holdout returns the validation window length for a series of n points.
func (sel *Selector) Holdout(n int) int {
	h := sel.settings.ValidationWindow
	if third := n / 3; third < h {
		h = third
	}
	if h < 1 {
		h = 1
	}
	return h
}

// Select fits every candidate on the training part, scores it on the holdout
// and refits the winner on the whole series. It only fails when the series is
// shorter than the minimum history; otherwise it falls back to last_value.
func (sel *Selector) Select(ts domain.TimeSeries) (Selection, error) {
	s := sel.settings
	y := ts.Values()
	n := len(y)
	if n < s.MinHistory || n < 2 {
		return Selection{}, &domain.InsufficientHistoryError{SKU: ts.SKU, Have: n, Need: max(s.MinHistory, 2)}
	}

	holdout := sel.Holdout(n)
	train, test := y[:n-holdout], y[n-holdout:]
	out := Selection{Metric: s.ErrorMetric, Holdout: holdout}

	best := -1
	for _, name := range s.Models {
		ev := Evaluation{Model: Kind(name)}
		score, params, err := sel.evaluate(name, train, test)
		if err != nil {
			ev.Err = err.Error()
			out.Evaluations = append(out.Evaluations, ev)
			continue
		}
		ev.Score, ev.NumParams = score, params
		out.Evaluations = append(out.Evaluations, ev)
		if best < 0 || sel.better(ev, out.Evaluations[best]) {
			best = len(out.Evaluations) - 1
		}
	}

	if best >= 0 {
		winner := out.Evaluations[best]
		model, err := Fit(winner.Model, y, s)
		if err == nil {
			out.Evaluations[best].Selected = true
			out.Model, out.Score = model, winner.Score
			return out, nil
		}
		out.Evaluations[best].Err = fmt.Sprintf("refit failed: %v", err)
	}

	// Every candidate failed; repeat the last observation.
	model, err := Fit(LastValue, y, s)
	if err != nil {
		return Selection{}, fmt.Errorf("sku %s: fallback model: %w", ts.SKU, err)
	}
	out.Model, out.Fallback = model, true
	if score, err := Score(s.ErrorMetric, test, repeat(train[len(train)-1], len(test))); err == nil {
		out.Score = score
	}
	return out, nil
}

func (sel *Selector) evaluate(name string, train, test []float64) (float64, int, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return 0, 0, err
	}
	model, err := Fit(kind, train, sel.settings)
	if err != nil {
		return 0, 0, err
	}
	pred := model.Predict(len(test))
	score, err := Score(sel.settings.ErrorMetric, test, pred)
	if err != nil {
		return 0, 0, err
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, 0, fmt.Errorf("%s produced a non-finite score", kind)
	}
	return score, model.NumParams(), nil
}

// better reports whether a beats b. Scores within the relative tie tolerance
// go to the model with fewer parameters; remaining ties keep candidate order.
func (sel *Selector) better(a, b Evaluation) bool {
	diff := math.Abs(a.Score - b.Score)
	scale := math.Max(math.Abs(a.Score), math.Abs(b.Score))
	if diff <= sel.settings.TieTolerance*scale || diff == 0 {
		return a.NumParams < b.NumParams
	}
	return a.Score < b.Score
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
