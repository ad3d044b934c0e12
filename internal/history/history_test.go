package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

func TestReadRecords(t *testing.T) {
	in := "SKU,Timestamp,Quantity\n" +
		"A,2024-01-01,10\n" +
		"\n" +
		"A,2024-01-02T08:30:00Z,12.5\n" +
		"B,2024-01-03 10:00:00,3\n"
	recs, err := ReadRecords(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, domain.DemandRecord{SKU: "A", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Quantity: 10}, recs[0])
	assert.Equal(t, 12.5, recs[1].Quantity)
	assert.Equal(t, time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), recs[2].Timestamp)
}

func TestReadRecordsMovements(t *testing.T) {
	in := "sku,timestamp,quantity_change\n" +
		"A,2024-01-01,-4\n" +
		"A,2024-01-01,20\n" +
		"A,2024-01-02,-6\n"
	recs, err := ReadRecords(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2, "restocks are not demand")
	assert.Equal(t, 4.0, recs[0].Quantity)
	assert.Equal(t, 6.0, recs[1].Quantity)
}

func TestReadRecordsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "missing header"},
		{"missing column", "sku,timestamp\nA,2024-01-01\n", "quantity"},
		{"bad timestamp", "sku,timestamp,quantity\nA,yesterday,1\n", "line 2"},
		{"bad quantity", "sku,timestamp,quantity\nA,2024-01-01,lots\n", "invalid quantity"},
		{"empty sku", "sku,timestamp,quantity\n,2024-01-01,1\n", "empty sku"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRecords(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadItems(t *testing.T) {
	in := "sku,unit_cost,warehouse,on_hand,order_multiple,lead_time_days,supplier_reliability\n" +
		"A,2.50,north,10,6,4,0.8\n" +
		"B,7,,0,,,\n"
	items, err := ReadItems(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.True(t, decimal.RequireFromString("2.5").Equal(items[0].UnitCost))
	assert.Equal(t, "north", items[0].Warehouse)
	assert.Equal(t, 10.0, items[0].OnHand)
	assert.Equal(t, 6.0, items[0].OrderMultiple)
	assert.Equal(t, 0.8, items[0].SupplierReliability)
	assert.Zero(t, items[1].OrderMultiple)

	_, err = ReadItems(strings.NewReader("sku,unit_cost\nA,free\n"))
	assert.Error(t, err)
	_, err = ReadItems(strings.NewReader("sku\nA\n"))
	assert.ErrorContains(t, err, "unit_cost")
}

func TestReadStockLocations(t *testing.T) {
	in := "sku,location,on_hand,daily_demand\nA,north,100,2\nA,south,4,2\n"
	locs, err := ReadStockLocations(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []domain.StockLocation{
		{SKU: "A", Location: "north", OnHand: 100, DailyDemand: 2},
		{SKU: "A", Location: "south", OnHand: 4, DailyDemand: 2},
	}, locs)

	_, err = ReadStockLocations(strings.NewReader("sku,location,on_hand,daily_demand\nA,,1,1\n"))
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "history.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("sku,timestamp,quantity\nA,2024-01-01,3\n"), 0o644))
	recs, err := LoadRecordsFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	xlsxPath := filepath.Join(dir, "history.xlsx")
	wb := excelize.NewFile()
	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]interface{}{"sku", "timestamp", "quantity"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A2", &[]interface{}{"A", "2024-01-01", "5"}))
	require.NoError(t, wb.SetSheetRow("Sheet1", "A3", &[]interface{}{"B", "2024-01-02", "7"}))
	require.NoError(t, wb.SaveAs(xlsxPath))
	require.NoError(t, wb.Close())

	recs, err = LoadRecordsFile(xlsxPath)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "B", recs[1].SKU)
	assert.Equal(t, 7.0, recs[1].Quantity)

	_, err = LoadRecordsFile(filepath.Join(dir, "history.parquet"))
	assert.Error(t, err)

	yamlPath := filepath.Join(dir, "constraints.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("budget: 500\nsupplier_minimums:\n  A: 10\n"), 0o644))
	spec, err := LoadConstraintsFile(yamlPath)
	require.NoError(t, err)
	require.NotNil(t, spec.Budget)
	assert.Equal(t, 500.0, *spec.Budget)
	assert.Len(t, spec.Constraints(), 2)
}
