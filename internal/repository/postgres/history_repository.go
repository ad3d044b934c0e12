package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

type historyRepository struct {
	db *DB
}

func NewHistoryRepository(db *DB) *historyRepository {
	return &historyRepository{db: db}
}

// ListDemand returns demand records ordered by SKU and timestamp.
func (r *historyRepository) ListDemand(ctx context.Context, filter domain.HistoryFilter) ([]domain.DemandRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.SKUs) > 0 {
		where = append(where, "sku IN (?)")
		args = append(args, filter.SKUs)
	}
	if !filter.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, filter.To.UTC())
	}

	query := "SELECT sku, ts, quantity FROM demand_history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sku, ts"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	var records []domain.DemandRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list demand history: %w", err)
	}
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
	return records, nil
}

// SaveDemand upserts records; a repeated (sku, ts) overwrites the quantity.
func (r *historyRepository) SaveDemand(ctx context.Context, records []domain.DemandRecord) (int, error) {
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
			INSERT INTO demand_history (sku, ts, quantity)
			VALUES (?, ?, ?)
			ON CONFLICT (sku, ts)
			DO UPDATE SET quantity = EXCLUDED.quantity
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, rec.SKU, rec.Timestamp.UTC(), rec.Quantity); err != nil {
				return fmt.Errorf("failed to insert demand for %s: %w", rec.SKU, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
