package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

const itemColumns = `sku, name, warehouse, unit_cost, holding_cost, ordering_cost,
	stockout_penalty, on_hand, on_order, order_multiple, max_order,
	lead_time_days, supplier_reliability`

type itemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *itemRepository {
	return &itemRepository{db: db}
}

// ListItems returns the items for skus, or every item when skus is empty.
func (r *itemRepository) ListItems(ctx context.Context, skus []string) ([]domain.Item, error) {
	query, args, err := bySKU("SELECT "+itemColumns+" FROM items", skus, "sku")
	if err != nil {
		return nil, err
	}
	var items []domain.Item
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (r *itemRepository) UpsertItems(ctx context.Context, items []domain.Item) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO items (` + itemColumns + `)
			VALUES (:sku, :name, :warehouse, :unit_cost, :holding_cost, :ordering_cost,
				:stockout_penalty, :on_hand, :on_order, :order_multiple, :max_order,
				:lead_time_days, :supplier_reliability)
			ON CONFLICT (sku)
			DO UPDATE SET
				name = EXCLUDED.name,
				warehouse = EXCLUDED.warehouse,
				unit_cost = EXCLUDED.unit_cost,
				holding_cost = EXCLUDED.holding_cost,
				ordering_cost = EXCLUDED.ordering_cost,
				stockout_penalty = EXCLUDED.stockout_penalty,
				on_hand = EXCLUDED.on_hand,
				on_order = EXCLUDED.on_order,
				order_multiple = EXCLUDED.order_multiple,
				max_order = EXCLUDED.max_order,
				lead_time_days = EXCLUDED.lead_time_days,
				supplier_reliability = EXCLUDED.supplier_reliability
		`
		for _, it := range items {
			if _, err := tx.NamedExecContext(ctx, query, it); err != nil {
				return fmt.Errorf("failed to upsert item %s: %w", it.SKU, err)
			}
		}
		return nil
	})
}

// ListStockLocations returns per-location stock ordered by SKU and location.
func (r *itemRepository) ListStockLocations(ctx context.Context, skus []string) ([]domain.StockLocation, error) {
	query, args, err := bySKU("SELECT sku, location, on_hand, daily_demand FROM stock_locations", skus, "sku, location")
	if err != nil {
		return nil, err
	}
	var locs []domain.StockLocation
	if err := r.db.SelectContext(ctx, &locs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list stock locations: %w", err)
	}
	return locs, nil
}

func (r *itemRepository) UpsertStockLocations(ctx context.Context, locs []domain.StockLocation) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO stock_locations (sku, location, on_hand, daily_demand)
			VALUES (:sku, :location, :on_hand, :daily_demand)
			ON CONFLICT (sku, location)
			DO UPDATE SET on_hand = EXCLUDED.on_hand, daily_demand = EXCLUDED.daily_demand
		`
		for _, loc := range locs {
			if _, err := tx.NamedExecContext(ctx, query, loc); err != nil {
				return fmt.Errorf("failed to upsert stock for %s at %s: %w", loc.SKU, loc.Location, err)
			}
		}
		return nil
	})
}

func bySKU(base string, skus []string, orderBy string) (string, []interface{}, error) {
	if len(skus) == 0 {
		return base + " ORDER BY " + orderBy, nil, nil
	}
	query, args, err := sqlx.In(base+" WHERE sku IN (?) ORDER BY "+orderBy, skus)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build sku filter: %w", err)
	}
	return query, args, nil
}
