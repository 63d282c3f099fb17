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

const discountColumns = `id, code, name, type, percent, amount_cents, max_discount_cents, min_purchase_cents,
	starts_at, ends_at, usage_limit, usage_count, active, created_at`

func scanDiscount(row interface{ Scan(...any) error }) (domain.Discount, error) {
	var d domain.Discount
	var startsAt, endsAt sql.NullTime
	err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Type, &d.Percent, &d.AmountCents, &d.MaxDiscountCents, &d.MinPurchaseCents,
		&startsAt, &endsAt, &d.UsageLimit, &d.UsageCount, &d.Active, &d.CreatedAt)
	d.StartsAt = timeOrZero(startsAt)
	d.EndsAt = timeOrZero(endsAt)
	d.CreatedAt = d.CreatedAt.UTC()
	return d, err
}

func (s *Store) CreateDiscount(ctx context.Context, d domain.Discount) (*domain.Discount, error) {
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	if d.Code == "" {
		return nil, store.ErrInvalidTransaction
	}
	if d.ID == "" {
		d.ID = xid.New("disc")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discounts (`+discountColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0,$12,$13)
	`, d.ID, d.Code, d.Name, d.Type, d.Percent, d.AmountCents, d.MaxDiscountCents, d.MinPurchaseCents,
		nullIfZero(d.StartsAt), nullIfZero(d.EndsAt), d.UsageLimit, d.Active, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: code %s already exists", store.ErrConflict, d.Code)
		}
		return nil, err
	}
	d.UsageCount = 0
	return &d, nil
}

func (s *Store) UpdateDiscount(ctx context.Context, d domain.Discount) (*domain.Discount, error) {
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	if d.Code == "" {
		return nil, store.ErrInvalidTransaction
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE discounts
		SET code = $2, name = $3, type = $4, percent = $5, amount_cents = $6, max_discount_cents = $7,
			min_purchase_cents = $8, starts_at = $9, ends_at = $10, usage_limit = $11, active = $12
		WHERE id = $1
		RETURNING `+discountColumns,
		d.ID, d.Code, d.Name, d.Type, d.Percent, d.AmountCents, d.MaxDiscountCents, d.MinPurchaseCents,
		nullIfZero(d.StartsAt), nullIfZero(d.EndsAt), d.UsageLimit, d.Active)
	updated, err := scanDiscount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: code %s already exists", store.ErrConflict, d.Code)
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteDiscount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM discounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetDiscount(ctx context.Context, id string) (*domain.Discount, error) {
	d, err := scanDiscount(s.db.QueryRowContext(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error) {
	d, err := scanDiscount(s.db.QueryRowContext(ctx, `
		SELECT `+discountColumns+` FROM discounts WHERE code = $1
	`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+discountColumns+` FROM discounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Discount, 0, 16)
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CommitCheckout records a sale with every side effect in one serializable
// transaction: stock posting, guarded discount usage, customer loyalty,
// estimation conversion and the transaction row itself.
func (s *Store) CommitCheckout(ctx context.Context, commit domain.CheckoutCommit) (*domain.Transaction, error) {
	tx := commit.Transaction
	if tx.IdempotencyKey == "" || len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if existing, err := s.FindTransactionByIdempotency(ctx, tx.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	itemsJSON, err := marshalJSON(tx.Items)
	if err != nil {
		return nil, err
	}
	paymentsJSON, err := marshalJSON(tx.Payments)
	if err != nil {
		return nil, err
	}

	duplicate := false
	err = s.serializable(ctx, func(pgTx *sql.Tx) error {
		if commit.DiscountID != "" {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE discounts
				SET usage_count = usage_count + 1
				WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)
			`, commit.DiscountID)
			if err != nil {
				return err
			}
			ok, err := affectedOne(res)
			if err != nil {
				return err
			}
			if !ok {
				var exists bool
				if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM discounts WHERE id = $1)`, commit.DiscountID).Scan(&exists); err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("discount %s: %w", commit.DiscountID, store.ErrNotFound)
				}
				return store.ErrUsageLimitReached
			}
		}

		if tx.CustomerID != "" {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE customers
				SET loyalty_points = loyalty_points + $2, total_spent_cents = total_spent_cents + $3, last_visit = $4
				WHERE id = $1
			`, tx.CustomerID, commit.LoyaltyPoints, tx.TotalCents, tx.CreatedAt)
			if err != nil {
				return err
			}
			if ok, err := affectedOne(res); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("customer %s: %w", tx.CustomerID, store.ErrNotFound)
			}
		}

		if err := applyPosting(ctx, pgTx, commit.Posting, tx.CreatedAt); err != nil {
			return err
		}

		if len(commit.EstimationIDs) > 0 {
			if _, err := pgTx.ExecContext(ctx, `
				UPDATE estimations SET status = $2, updated_at = $3
				WHERE id = ANY($1) AND status = $4
			`, commit.EstimationIDs, domain.EstimationConverted, tx.CreatedAt, domain.EstimationActive); err != nil {
				return err
			}
		}

		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, idempotency_key, type, status, items, subtotal_cents, discount_cents, discount_id,
				discount_code, tax_cents, total_cents, tax_policy, payments, cash_tendered_cents,
				change_cents, cashier, terminal_id, shift_id, customer_id, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		`, tx.ID, tx.IdempotencyKey, tx.Type, tx.Status, itemsJSON, tx.SubtotalCents, tx.DiscountCents,
			nullIfEmpty(tx.DiscountID), nullIfEmpty(tx.DiscountCode), tx.TaxCents, tx.TotalCents, tx.TaxPolicy,
			paymentsJSON, tx.CashTenderedCents, tx.ChangeCents, tx.Cashier, nullIfEmpty(tx.TerminalID),
			nullIfEmpty(tx.ShiftID), nullIfEmpty(tx.CustomerID), tx.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				duplicate = true
			}
			return err
		}
		return nil
	})
	if err != nil {
		if duplicate {
			return s.FindTransactionByIdempotency(ctx, tx.IdempotencyKey)
		}
		return nil, err
	}
	return &tx, nil
}

const transactionColumns = `id, idempotency_key, type, status, items, subtotal_cents, discount_cents,
	COALESCE(discount_id, ''), COALESCE(discount_code, ''), tax_cents, total_cents, tax_policy, payments,
	cash_tendered_cents, change_cents, cashier, COALESCE(terminal_id, ''), COALESCE(shift_id, ''),
	COALESCE(customer_id, ''), created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var items, payments []byte
	if err := row.Scan(&tx.ID, &tx.IdempotencyKey, &tx.Type, &tx.Status, &items, &tx.SubtotalCents, &tx.DiscountCents,
		&tx.DiscountID, &tx.DiscountCode, &tx.TaxCents, &tx.TotalCents, &tx.TaxPolicy, &payments,
		&tx.CashTenderedCents, &tx.ChangeCents, &tx.Cashier, &tx.TerminalID, &tx.ShiftID,
		&tx.CustomerID, &tx.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(items, &tx.Items); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(payments, &tx.Payments); err != nil {
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "idempotency_key", key)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "id", id)
}

func (s *Store) findTransaction(ctx context.Context, column string, value string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE `+column+` = $1
	`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	lim := any(nil)
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC
		LIMIT $3::bigint
	`, nullIfZero(from), nullIfZero(to), lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func (s *Store) CreateReturn(ctx context.Context, record domain.ReturnRecord, posting domain.StockPosting) (*domain.ReturnRecord, error) {
	if len(record.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if record.ID == "" {
		record.ID = xid.New("ret")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	items, err := marshalJSON(record.Items)
	if err != nil {
		return nil, err
	}

	err = s.serializable(ctx, func(tx *sql.Tx) error {
		if record.TransactionID != "" {
			var found string
			err := tx.QueryRowContext(ctx, `SELECT id FROM transactions WHERE id = $1 FOR UPDATE`, record.TransactionID).Scan(&found)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("transaction %s: %w", record.TransactionID, store.ErrNotFound)
			}
			if err != nil {
				return err
			}
		}
		if err := applyPosting(ctx, tx, posting, record.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO returns (id, transaction_id, reason, items, refund_cents, processed_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, record.ID, nullIfEmpty(record.TransactionID), record.Reason, items, record.RefundCents, record.ProcessedBy, record.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) GetReturnedQtyByTransaction(ctx context.Context, transactionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT items FROM returns WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var items []domain.ReturnItem
		if err := unmarshalJSON(raw, &items); err != nil {
			return nil, err
		}
		for _, item := range items {
			result[store.ReturnKey(item.ProductID, item.VariantID)] += item.Quantity
		}
	}
	return result, rows.Err()
}
