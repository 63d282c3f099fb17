package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, phone, email, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, supplier.ID, supplier.Name, supplier.Contact, supplier.Phone, supplier.Email, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact, phone, email, created_at FROM suppliers WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.Phone, &sup.Email, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, phone, email, created_at FROM suppliers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.Phone, &sup.Email, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		out = append(out, sup)
	}
	return out, rows.Err()
}

const purchaseOrderColumns = `id, supplier_id, supplier_name, items, total_cost_cents, status, kind,
	COALESCE(parent_id, ''), payment_mode, notes, created_by, created_at, received_at, version`

func scanPurchaseOrder(row interface{ Scan(...any) error }) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var items []byte
	var receivedAt sql.NullTime
	if err := row.Scan(&po.ID, &po.SupplierID, &po.SupplierName, &items, &po.TotalCostCents, &po.Status, &po.Kind,
		&po.ParentID, &po.PaymentMode, &po.Notes, &po.CreatedBy, &po.CreatedAt, &receivedAt, &po.Version); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(items, &po.Items); err != nil {
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	po.ReceivedAt = timePtr(receivedAt)
	return &po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx, `
		SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *po)
	}
	return out, rows.Err()
}

func (s *Store) ListReplacementOrders(ctx context.Context, parentID string) ([]domain.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE parent_id = $1
		ORDER BY created_at
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *po)
	}
	return out, rows.Err()
}

// CommitPurchaseOrders writes order changes, new orders and the stock
// posting together. Updated orders must still carry the stored version.
func (s *Store) CommitPurchaseOrders(ctx context.Context, commit domain.PurchaseOrderCommit) error {
	return s.serializable(ctx, func(tx *sql.Tx) error {
		for _, po := range commit.Updated {
			items, err := marshalJSON(po.Items)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE purchase_orders
				SET items = $3, total_cost_cents = $4, status = $5, notes = $6, received_at = $7, version = version + 1
				WHERE id = $1 AND version = $2
			`, po.ID, po.Version, items, po.TotalCostCents, po.Status, po.Notes, nullTime(po.ReceivedAt))
			if err != nil {
				return err
			}
			ok, err := affectedOne(res)
			if err != nil {
				return err
			}
			if !ok {
				var exists bool
				if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE id = $1)`, po.ID).Scan(&exists); err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("purchase order %s: %w", po.ID, store.ErrNotFound)
				}
				return fmt.Errorf("purchase order %s: %w", po.ID, store.ErrConflict)
			}
		}

		for _, po := range commit.Created {
			if po.ID == "" || len(po.Items) == 0 {
				return store.ErrInvalidTransaction
			}
			items, err := marshalJSON(po.Items)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO purchase_orders (`+strings.ReplaceAll(purchaseOrderColumns, "COALESCE(parent_id, '')", "parent_id")+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,1)
			`, po.ID, po.SupplierID, po.SupplierName, items, po.TotalCostCents, po.Status, po.Kind,
				nullIfEmpty(po.ParentID), po.PaymentMode, po.Notes, po.CreatedBy, po.CreatedAt, nullTime(po.ReceivedAt))
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("purchase order %s: %w", po.ID, store.ErrConflict)
				}
				return err
			}
		}

		if commit.Posting != nil {
			return applyPosting(ctx, tx, *commit.Posting, time.Now().UTC())
		}
		return nil
	})
}
