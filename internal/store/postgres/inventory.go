package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) ApplyStockPosting(ctx context.Context, posting domain.StockPosting) error {
	if posting.Empty() {
		return nil
	}
	return s.serializable(ctx, func(tx *sql.Tx) error {
		return applyPosting(ctx, tx, posting, time.Now().UTC())
	})
}

type lockedRow struct {
	name  string
	stock int
}

// applyPosting locks every touched product and variant row in id order,
// checks the resulting stock figures, then writes them with the movements.
func applyPosting(ctx context.Context, tx *sql.Tx, posting domain.StockPosting, now time.Time) error {
	if posting.Empty() {
		return nil
	}
	productIDs := make([]string, 0, len(posting.Changes))
	variantIDs := make([]string, 0, len(posting.Changes))
	for _, ch := range posting.Changes {
		if ch.VariantID != "" {
			variantIDs = append(variantIDs, ch.VariantID)
		}
		productIDs = append(productIDs, ch.ProductID)
	}
	slices.Sort(productIDs)
	productIDs = slices.Compact(productIDs)
	slices.Sort(variantIDs)
	variantIDs = slices.Compact(variantIDs)

	products, err := lockRows(ctx, tx, `
		SELECT id, name, stock FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE
	`, productIDs)
	if err != nil {
		return err
	}
	variants := map[string]lockedRow{}
	if len(variantIDs) > 0 {
		variants, err = lockRows(ctx, tx, `
			SELECT id, name, stock FROM product_variants WHERE id = ANY($1) ORDER BY id FOR UPDATE
		`, variantIDs)
		if err != nil {
			return err
		}
	}

	productDelta := make(map[string]int, len(productIDs))
	variantDelta := make(map[string]int, len(variantIDs))
	costs := make(map[string]int64)
	for _, ch := range posting.Changes {
		p, ok := products[ch.ProductID]
		if !ok {
			return fmt.Errorf("product %s: %w", ch.ProductID, store.ErrNotFound)
		}
		if ch.VariantID != "" {
			v, ok := variants[ch.VariantID]
			if !ok {
				return fmt.Errorf("variant %s: %w", ch.VariantID, store.ErrNotFound)
			}
			variantDelta[ch.VariantID] += ch.Delta
			if v.stock+variantDelta[ch.VariantID] < 0 {
				return fmt.Errorf("%w: %s - %s", store.ErrInsufficientStock, p.name, v.name)
			}
			continue
		}
		productDelta[ch.ProductID] += ch.Delta
		if p.stock+productDelta[ch.ProductID] < 0 {
			return fmt.Errorf("%w: %s", store.ErrInsufficientStock, p.name)
		}
		if ch.CostPriceCents > 0 {
			costs[ch.ProductID] = ch.CostPriceCents
		}
	}

	for _, id := range productIDs {
		delta, touched := productDelta[id]
		cost, costed := costs[id]
		if !touched && !costed {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $2,
				cost_price_cents = CASE WHEN $3::bigint > 0 THEN $3::bigint ELSE cost_price_cents END,
				updated_at = $4
			WHERE id = $1
		`, id, delta, cost, now)
		if err != nil {
			return err
		}
	}
	for _, id := range variantIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE product_variants SET stock = stock + $2 WHERE id = $1
		`, id, variantDelta[id]); err != nil {
			return err
		}
	}

	for _, m := range posting.Movements {
		if m.ID == "" {
			m.ID = xid.New("mv")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_movements (id, product_id, product_name, variant_id, variant_name, type, quantity,
				reason, reference, username, notes, unit_cost_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, m.ID, m.ProductID, m.ProductName, nullIfEmpty(m.VariantID), nullIfEmpty(m.VariantName), m.Type, m.Quantity,
			m.Reason, nullIfEmpty(m.Reference), m.User, nullIfEmpty(m.Notes), m.UnitCostCents, m.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func lockRows(ctx context.Context, tx *sql.Tx, query string, ids []string) (map[string]lockedRow, error) {
	rows, err := tx.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]lockedRow, len(ids))
	for rows.Next() {
		var id string
		var row lockedRow
		if err := rows.Scan(&id, &row.name, &row.stock); err != nil {
			return nil, err
		}
		out[id] = row
	}
	return out, rows.Err()
}

func (s *Store) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.InventoryMovement, error) {
	limit := any(nil)
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, COALESCE(variant_id, ''), COALESCE(variant_name, ''), type, quantity,
			reason, COALESCE(reference, ''), username, COALESCE(notes, ''), unit_cost_cents, created_at
		FROM inventory_movements
		WHERE ($1::text = '' OR product_id = $1)
			AND ($2::text = '' OR type = $2)
			AND ($3::timestamptz IS NULL OR created_at >= $3)
			AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5::bigint
	`, filter.ProductID, filter.Type, nullIfZero(filter.From), nullIfZero(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.InventoryMovement, 0, 64)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ProductName, &m.VariantID, &m.VariantName, &m.Type, &m.Quantity,
			&m.Reason, &m.Reference, &m.User, &m.Notes, &m.UnitCostCents, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
