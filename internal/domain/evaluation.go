package domain

import "time"

// CandidateScore is the holdout score of one forecast model candidate.
type CandidateScore struct {
	Model     string  `json:"model"`
	Score     float64 `json:"score"`
	NumParams int     `json:"num_params"`
	Error     string  `json:"error,omitempty"`
	Selected  bool    `json:"selected"`
}

// SeriesSummary describes the regularized series a model was fit on.
type SeriesSummary struct {
	Periods      int     `json:"periods"`
	Imputed      int     `json:"imputed"`
	Outliers     int     `json:"outliers"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	P90          float64 `json:"p90"`
	ZeroShare    float64 `json:"zero_share"`
	Intermittent bool    `json:"intermittent"`
}

// ModelEvaluation reports how every candidate scored for one SKU.
type ModelEvaluation struct {
	SKU        string           `json:"sku"`
	Metric     string           `json:"metric"`
	Holdout    int              `json:"holdout"`
	Selected   string           `json:"selected"`
	Score      float64          `json:"score"`
	Fallback   bool             `json:"fallback"`
	Candidates []CandidateScore `json:"candidates"`
	Series     SeriesSummary    `json:"series"`
}

// EvaluationReport is the result of a model evaluation run.
type EvaluationReport struct {
	RunID     string            `json:"run_id"`
	CreatedAt time.Time         `json:"created_at"`
	SKUs      []ModelEvaluation `json:"skus"`
	Excluded  []SKUFailure      `json:"excluded,omitempty"`
}
