// Package history reads demand history, item economics and stock locations
// from CSV or XLSX exports.
package history

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// table is a header-indexed set of rows.
type table struct {
	source string
	colMap map[string]int
	rows   [][]string
}

func newTable(source string, rows [][]string) (*table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header row", source)
	}
	t := &table{source: source, colMap: make(map[string]int), rows: rows[1:]}
	for i, col := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if name != "" {
			t.colMap[name] = i
		}
	}
	return t, nil
}

func readCSV(source string, r io.Reader) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read CSV: %w", source, err)
	}
	return newTable(source, rows)
}

func (t *table) has(col string) bool {
	_, ok := t.colMap[col]
	return ok
}

func (t *table) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing column(s) %s", t.source, strings.Join(missing, ", "))
	}
	return nil
}

func (t *table) cell(row []string, col string) string {
	i, ok := t.colMap[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// number parses an optional numeric cell; empty cells are zero.
func (t *table) number(line int, row []string, col string) (float64, error) {
	v := t.cell(row, col)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s line %d: invalid %s %q", t.source, line, col, v)
	}
	return f, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ParseTimestamp accepts RFC 3339 and the common date layouts of spreadsheet
// exports. Times without a zone are UTC.
func ParseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

// ReadRecords reads demand records with the columns sku, timestamp and
// quantity. A quantity_change column may replace quantity: it holds signed
// stock movements, and only outbound movements (negative values) count as
// demand.
func ReadRecords(r io.Reader) ([]domain.DemandRecord, error) {
	t, err := readCSV("history", r)
	if err != nil {
		return nil, err
	}
	return t.records()
}

func (t *table) records() ([]domain.DemandRecord, error) {
	if err := t.require("sku", "timestamp"); err != nil {
		return nil, err
	}
	movements := !t.has("quantity") && t.has("quantity_change")
	if !movements {
		if err := t.require("quantity"); err != nil {
			return nil, err
		}
	}

	out := make([]domain.DemandRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		if blank(row) {
			continue
		}
		sku := t.cell(row, "sku")
		if sku == "" {
			return nil, fmt.Errorf("%s line %d: empty sku", t.source, line)
		}
		ts, err := ParseTimestamp(t.cell(row, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", t.source, line, err)
		}

		var qty float64
		if movements {
			change, err := t.number(line, row, "quantity_change")
			if err != nil {
				return nil, err
			}
			if change >= 0 {
				continue
			}
			qty = -change
		} else if qty, err = t.number(line, row, "quantity"); err != nil {
			return nil, err
		}
		out = append(out, domain.DemandRecord{SKU: sku, Timestamp: ts, Quantity: qty})
	}
	return out, nil
}

// ReadItems reads item economics. sku and unit_cost are required; the other
// columns match the domain.Item JSON names and default to zero.
func ReadItems(r io.Reader) ([]domain.Item, error) {
	t, err := readCSV("items", r)
	if err != nil {
		return nil, err
	}
	if err := t.require("sku", "unit_cost"); err != nil {
		return nil, err
	}

	var out []domain.Item
	for i, row := range t.rows {
		line := i + 2
		if blank(row) {
			continue
		}
		it := domain.Item{
			SKU:       t.cell(row, "sku"),
			Name:      t.cell(row, "name"),
			Warehouse: t.cell(row, "warehouse"),
		}
		if it.SKU == "" {
			return nil, fmt.Errorf("items line %d: empty sku", line)
		}
		if it.UnitCost, err = decimal.NewFromString(t.cell(row, "unit_cost")); err != nil {
			return nil, fmt.Errorf("items line %d: invalid unit_cost: %w", line, err)
		}

		fields := []struct {
			col string
			dst *float64
		}{
			{"holding_cost", &it.HoldingCost},
			{"ordering_cost", &it.OrderingCost},
			{"stockout_penalty", &it.StockoutPenalty},
			{"on_hand", &it.OnHand},
			{"on_order", &it.OnOrder},
			{"order_multiple", &it.OrderMultiple},
			{"max_order", &it.MaxOrder},
			{"lead_time_days", &it.LeadTimeDays},
			{"supplier_reliability", &it.SupplierReliability},
		}
		for _, f := range fields {
			if *f.dst, err = t.number(line, row, f.col); err != nil {
				return nil, err
			}
		}
		out = append(out, it)
	}
	return out, nil
}

// ReadStockLocations reads sku, location, on_hand and daily_demand rows.
func ReadStockLocations(r io.Reader) ([]domain.StockLocation, error) {
	t, err := readCSV("locations", r)
	if err != nil {
		return nil, err
	}
	if err := t.require("sku", "location", "on_hand", "daily_demand"); err != nil {
		return nil, err
	}

	var out []domain.StockLocation
	for i, row := range t.rows {
		line := i + 2
		if blank(row) {
			continue
		}
		loc := domain.StockLocation{SKU: t.cell(row, "sku"), Location: t.cell(row, "location")}
		if loc.SKU == "" || loc.Location == "" {
			return nil, fmt.Errorf("locations line %d: sku and location are required", line)
		}
		if loc.OnHand, err = t.number(line, row, "on_hand"); err != nil {
			return nil, err
		}
		if loc.DailyDemand, err = t.number(line, row, "daily_demand"); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// LoadRecordsFile reads demand history from a .csv or .xlsx file.
func LoadRecordsFile(path string) ([]domain.DemandRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		t, err := readXLSX(path)
		if err != nil {
			return nil, err
		}
		return t.records()
	case ".csv", "":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history file: %w", err)
		}
		defer f.Close()
		return ReadRecords(f)
	}
	return nil, errors.New("unsupported history file type " + filepath.Ext(path))
}

// LoadItemsFile reads item economics from a CSV file.
func LoadItemsFile(path string) ([]domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open items file: %w", err)
	}
	defer f.Close()
	return ReadItems(f)
}

// LoadStockLocationsFile reads per-location stock from a CSV file.
func LoadStockLocationsFile(path string) ([]domain.StockLocation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open locations file: %w", err)
	}
	defer f.Close()
	return ReadStockLocations(f)
}

// LoadConstraintsFile reads a YAML or JSON constraint spec.
func LoadConstraintsFile(path string) (domain.ConstraintSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ConstraintSpec{}, fmt.Errorf("failed to open constraints file: %w", err)
	}
	defer f.Close()
	return domain.LoadConstraintSpec(f)
}
