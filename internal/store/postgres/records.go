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

const customerColumns = `id, name, email, phone, address, loyalty_points, total_spent_cents, last_visit,
	is_b2b, company_name, tax_id, credit_limit_cents, created_at`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var c domain.Customer
	var lastVisit sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.LoyaltyPoints, &c.TotalSpentCents, &lastVisit,
		&c.IsB2B, &c.CompanyName, &c.TaxID, &c.CreditLimitCents, &c.CreatedAt)
	c.LastVisit = timePtr(lastVisit)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, err
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,0,0,NULL,$6,$7,$8,$9,$10)
	`, customer.ID, customer.Name, customer.Email, customer.Phone, customer.Address,
		customer.IsB2B, customer.CompanyName, customer.TaxID, customer.CreditLimitCents, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	customer.LoyaltyPoints = 0
	customer.TotalSpentCents = 0
	customer.LastVisit = nil
	return &customer, nil
}

// UpdateCustomer rewrites contact and B2B fields; loyalty figures only move through checkout.
func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	updated, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, address = $5, is_b2b = $6, company_name = $7,
			tax_id = $8, credit_limit_cents = $9
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Email, customer.Phone, customer.Address,
		customer.IsB2B, customer.CompanyName, customer.TaxID, customer.CreditLimitCents))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context, search string) ([]domain.Customer, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE lower(name) LIKE $1 OR lower(email) LIKE $1 OR phone LIKE $1
		ORDER BY name
	`, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const estimationColumns = `id, items, subtotal_cents, discount_cents, discount_code, tax_cents, total_cents,
	COALESCE(customer_id, ''), notes, status, created_by, created_at, updated_at, expires_at`

func scanEstimation(row interface{ Scan(...any) error }) (*domain.Estimation, error) {
	var est domain.Estimation
	var items []byte
	var expiresAt sql.NullTime
	if err := row.Scan(&est.ID, &items, &est.SubtotalCents, &est.DiscountCents, &est.DiscountCode, &est.TaxCents,
		&est.TotalCents, &est.CustomerID, &est.Notes, &est.Status, &est.CreatedBy, &est.CreatedAt,
		&est.UpdatedAt, &expiresAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(items, &est.Items); err != nil {
		return nil, err
	}
	est.CreatedAt = est.CreatedAt.UTC()
	est.UpdatedAt = est.UpdatedAt.UTC()
	est.ExpiresAt = timeOrZero(expiresAt)
	return &est, nil
}

func (s *Store) CreateEstimation(ctx context.Context, est domain.Estimation) (*domain.Estimation, error) {
	if len(est.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if est.ID == "" {
		est.ID = xid.New("est")
	}
	items, err := marshalJSON(est.Items)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO estimations (`+strings.ReplaceAll(estimationColumns, "COALESCE(customer_id, '')", "customer_id")+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, est.ID, items, est.SubtotalCents, est.DiscountCents, est.DiscountCode, est.TaxCents, est.TotalCents,
		nullIfEmpty(est.CustomerID), est.Notes, est.Status, est.CreatedBy, est.CreatedAt, est.UpdatedAt, nullIfZero(est.ExpiresAt))
	if err != nil {
		return nil, err
	}
	return &est, nil
}

func (s *Store) UpdateEstimation(ctx context.Context, est domain.Estimation) (*domain.Estimation, error) {
	items, err := marshalJSON(est.Items)
	if err != nil {
		return nil, err
	}
	updated, err := scanEstimation(s.db.QueryRowContext(ctx, `
		UPDATE estimations
		SET items = $2, subtotal_cents = $3, discount_cents = $4, discount_code = $5, tax_cents = $6,
			total_cents = $7, customer_id = $8, notes = $9, status = $10, updated_at = $11, expires_at = $12
		WHERE id = $1
		RETURNING `+estimationColumns,
		est.ID, items, est.SubtotalCents, est.DiscountCents, est.DiscountCode, est.TaxCents, est.TotalCents,
		nullIfEmpty(est.CustomerID), est.Notes, est.Status, est.UpdatedAt, nullIfZero(est.ExpiresAt)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) GetEstimation(ctx context.Context, id string) (*domain.Estimation, error) {
	est, err := scanEstimation(s.db.QueryRowContext(ctx, `SELECT `+estimationColumns+` FROM estimations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return est, nil
}

func (s *Store) ListEstimations(ctx context.Context, status string) ([]domain.Estimation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+estimationColumns+`
		FROM estimations
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Estimation, 0, 32)
	for rows.Next() {
		est, err := scanEstimation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *est)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEstimation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM estimations WHERE id = $1`, id)
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

func (s *Store) ExpireEstimations(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE estimations SET status = $1, updated_at = $3
		WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < $3
	`, domain.EstimationExpired, domain.EstimationActive, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const shiftColumns = `id, terminal_id, cashier_name, starting_cash_cents, ending_cash_cents, total_sales_cents,
	total_transactions, status, notes, opened_at, closed_at`

func scanShift(row interface{ Scan(...any) error }) (*domain.Shift, error) {
	var shift domain.Shift
	var closedAt sql.NullTime
	if err := row.Scan(&shift.ID, &shift.TerminalID, &shift.CashierName, &shift.StartingCashCents, &shift.EndingCashCents,
		&shift.TotalSalesCents, &shift.TotalTransactions, &shift.Status, &shift.Notes, &shift.OpenedAt, &closedAt); err != nil {
		return nil, err
	}
	shift.OpenedAt = shift.OpenedAt.UTC()
	shift.ClosedAt = timePtr(closedAt)
	return &shift, nil
}

func (s *Store) CreateShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	if strings.TrimSpace(shift.TerminalID) == "" || strings.TrimSpace(shift.CashierName) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if shift.ID == "" {
		shift.ID = xid.New("shift")
	}
	if shift.OpenedAt.IsZero() {
		shift.OpenedAt = time.Now().UTC()
	}
	shift.Status = domain.ShiftStatusActive
	shift.ClosedAt = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (`+shiftColumns+`)
		VALUES ($1,$2,$3,$4,0,0,0,$5,'',$6,NULL)
	`, shift.ID, shift.TerminalID, shift.CashierName, shift.StartingCashCents, shift.Status, shift.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: shift already open on %s", store.ErrConflict, shift.TerminalID)
		}
		return nil, err
	}
	return &shift, nil
}

func (s *Store) GetActiveShift(ctx context.Context, terminalID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE terminal_id = $1 AND status = $2
	`, terminalID, domain.ShiftStatusActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shift, nil
}

func (s *Store) CloseActiveShift(ctx context.Context, terminalID string, endingCashCents int64, notes string, closedAt time.Time) (*domain.Shift, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	var closed *domain.Shift
	err := s.serializable(ctx, func(tx *sql.Tx) error {
		var err error
		closed, err = scanShift(tx.QueryRowContext(ctx, `
			UPDATE shifts
			SET status = $3, ending_cash_cents = $4, notes = $5, closed_at = $6,
				total_sales_cents = (SELECT COALESCE(SUM(total_cents), 0) FROM transactions WHERE shift_id = shifts.id),
				total_transactions = (SELECT COUNT(*) FROM transactions WHERE shift_id = shifts.id)
			WHERE terminal_id = $1 AND status = $2
			RETURNING `+shiftColumns,
			terminalID, domain.ShiftStatusActive, domain.ShiftStatusClosed, endingCashCents, notes, closedAt))
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return closed, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Description == "" || expense.AmountCents <= 0 {
		return nil, store.ErrInvalidTransaction
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, description, amount_cents, category, expense_date, approved_by, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, expense.ID, expense.Description, expense.AmountCents, expense.Category, expense.Date, expense.ApprovedBy,
		expense.Notes, expense.CreatedBy, expense.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, amount_cents, category, expense_date, approved_by, notes, created_by, created_at
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR expense_date >= $1)
			AND ($2::timestamptz IS NULL OR expense_date < $2)
		ORDER BY expense_date DESC
	`, nullIfZero(from), nullIfZero(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Description, &e.AmountCents, &e.Category, &e.Date, &e.ApprovedBy,
			&e.Notes, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Date = e.Date.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
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
