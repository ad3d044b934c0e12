package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

const historyCSV = `sku,timestamp,quantity
A,2024-01-01,10
A,2024-01-02,12
A,2024-01-03,9
A,2024-01-04,11
A,2024-01-05,10
A,2024-01-06,13
A,2024-01-07,10
A,2024-01-08,12
B,2024-01-01,5
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("APP_DATA_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HISTORY_FILE", "")
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"planner"}, args...))
	return out.String(), err
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	hist := writeFile(t, dir, "history.csv", historyCSV)
	items := writeFile(t, dir, "items.csv", "sku,unit_cost\nA,4\nB,4\n")
	cons := writeFile(t, dir, "constraints.yaml", "budget: 1000\n")

	out, err := run(t, "plan", "--history", hist, "--items", items, "--constraints", cons, "--horizon", "3")
	require.NoError(t, err)

	var res domain.PlanResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Forecasts, 1)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "B", res.Excluded[0].SKU)
	require.NotNil(t, res.Plan)
	assert.Equal(t, domain.StatusOptimal, res.Plan.SolverStatus)
}

func TestPlanCommandWritesFile(t *testing.T) {
	dir := t.TempDir()
	hist := writeFile(t, dir, "history.csv", historyCSV)
	items := writeFile(t, dir, "items.csv", "sku,unit_cost\nA,4\n")
	outPath := filepath.Join(dir, "plan.json")

	out, err := run(t, "plan", "--history", hist, "--items", items, "--horizon", "2", "--out", outPath)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id"`)
}

func TestCommandsNeedHistory(t *testing.T) {
	for _, cmd := range []string{"plan", "forecast", "evaluate"} {
		t.Run(cmd, func(t *testing.T) {
			_, err := run(t, cmd)
			assert.ErrorIs(t, err, errNoHistory)
		})
	}
}

func TestForecastAndEvaluateCommands(t *testing.T) {
	hist := writeFile(t, t.TempDir(), "history.csv", historyCSV)

	out, err := run(t, "forecast", "--history", hist, "--horizon", "2")
	require.NoError(t, err)
	var res domain.PlanResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Forecasts, 1)
	assert.Len(t, res.Forecasts[0].Points, 2)

	out, err = run(t, "evaluate", "--history", hist)
	require.NoError(t, err)
	var report domain.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.SKUs, 1)
}

func TestModelsAndTransfersCommands(t *testing.T) {
	out, err := run(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "arima"`)

	locs := writeFile(t, t.TempDir(), "locations.csv",
		"sku,location,on_hand,daily_demand\nA,north,200,2\nA,south,2,4\n")
	out, err = run(t, "transfers", "--locations", locs)
	require.NoError(t, err)
	var transfers []domain.TransferRecommendation
	require.NoError(t, json.Unmarshal([]byte(out), &transfers))
	require.Len(t, transfers, 1)
	assert.Equal(t, "north", transfers[0].From)

	out, err = run(t, "cache", "flush")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "invalidated"`)
}
