package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"retailpos/backend/internal/cart"
	"retailpos/backend/internal/discount"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func discountFromRequest(req domain.DiscountRequest) (domain.Discount, error) {
	req.Code = discount.NormalizeCode(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if req.Type == domain.DiscountTypePercentage && req.Percent <= 0 {
		return domain.Discount{}, fmt.Errorf("%w: percentage discount needs a percent", store.ErrInvalidTransaction)
	}
	if req.Type == domain.DiscountTypeFixed && req.AmountCents <= 0 {
		return domain.Discount{}, fmt.Errorf("%w: fixed discount needs an amount", store.ErrInvalidTransaction)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return domain.Discount{
		Code:             req.Code,
		Name:             req.Name,
		Type:             req.Type,
		Percent:          req.Percent,
		AmountCents:      req.AmountCents,
		MaxDiscountCents: req.MaxDiscountCents,
		MinPurchaseCents: req.MinPurchaseCents,
		StartsAt:         req.StartsAt.UTC(),
		EndsAt:           req.EndsAt.UTC(),
		UsageLimit:       req.UsageLimit,
		Active:           active,
	}, nil
}

func (s *Service) CreateDiscount(ctx context.Context, req domain.DiscountRequest) (domain.Discount, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Discount{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Discount{}, err
	}
	d, err := discountFromRequest(req)
	if err != nil {
		return domain.Discount{}, err
	}
	d.ID = xid.New("disc")
	d.CreatedAt = s.now()

	created, err := s.repo.CreateDiscount(ctx, d)
	if err != nil {
		return domain.Discount{}, err
	}
	s.logAudit(ctx, "discount_create", "discount", created.ID, "code="+created.Code)
	return *created, nil
}

func (s *Service) UpdateDiscount(ctx context.Context, id string, req domain.DiscountRequest) (domain.Discount, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Discount{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Discount{}, err
	}
	d, err := discountFromRequest(req)
	if err != nil {
		return domain.Discount{}, err
	}
	d.ID = strings.TrimSpace(id)

	updated, err := s.repo.UpdateDiscount(ctx, d)
	if err != nil {
		return domain.Discount{}, err
	}
	s.logAudit(ctx, "discount_update", "discount", updated.ID, fmt.Sprintf("code=%s,active=%t", updated.Code, updated.Active))
	return *updated, nil
}

func (s *Service) DeleteDiscount(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteDiscount(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "discount_delete", "discount", id, "")
	return nil
}

func (s *Service) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	return s.repo.ListDiscounts(ctx)
}

// ValidateDiscount checks a code against a subtotal and returns what it would take off.
func (s *Service) ValidateDiscount(ctx context.Context, code string, subtotalCents int64) (domain.Discount, int64, error) {
	if subtotalCents < 0 {
		return domain.Discount{}, 0, store.ErrInvalidTransaction
	}
	d, err := s.discounts.Lookup(ctx, code, s.now(), subtotalCents)
	if err != nil {
		return domain.Discount{}, 0, err
	}
	return *d, discount.Amount(*d, subtotalCents), nil
}

func customerFromRequest(req domain.CustomerRequest) domain.Customer {
	c := domain.Customer{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
		IsB2B:   req.IsB2B,
	}
	if c.IsB2B {
		c.CompanyName = strings.TrimSpace(req.CompanyName)
		c.TaxID = strings.TrimSpace(req.TaxID)
		c.CreditLimitCents = req.CreditLimitCents
	}
	return c
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	c := customerFromRequest(req)
	c.ID = xid.New("cust")
	c.CreatedAt = s.now()

	created, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", created.ID, created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerRequest) (domain.Customer, error) {
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}
	c := customerFromRequest(req)
	c.ID = strings.TrimSpace(id)

	updated, err := s.repo.UpdateCustomer(ctx, c)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_update", "customer", updated.ID, updated.Name)
	return *updated, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	c, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) ListCustomers(ctx context.Context, search string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, strings.TrimSpace(search))
}

// quoteEstimation admits and prices the requested lines into an estimation body.
func (s *Service) quoteEstimation(ctx context.Context, req domain.EstimationRequest) (domain.Estimation, error) {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if err := s.check(req); err != nil {
		return domain.Estimation{}, err
	}
	if req.CustomerID != "" {
		if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Estimation{}, fmt.Errorf("%w: unknown customer %s", store.ErrInvalidTransaction, req.CustomerID)
			}
			return domain.Estimation{}, err
		}
	}
	lines, err := cart.Build(ctx, s.repo, req.Lines)
	if err != nil {
		return domain.Estimation{}, err
	}
	totals, err := s.price(ctx, lines, req.DiscountCode, true)
	if err != nil {
		return domain.Estimation{}, err
	}
	return domain.Estimation{
		Items:         totals.Lines,
		SubtotalCents: totals.SubtotalCents,
		DiscountCents: totals.DiscountCents,
		DiscountCode:  totals.DiscountCode,
		TaxCents:      totals.TaxCents,
		TotalCents:    totals.TotalCents,
		CustomerID:    req.CustomerID,
		Notes:         strings.TrimSpace(req.Notes),
	}, nil
}

func (s *Service) CreateEstimation(ctx context.Context, req domain.EstimationRequest) (domain.Estimation, error) {
	est, err := s.quoteEstimation(ctx, req)
	if err != nil {
		return domain.Estimation{}, err
	}
	now := s.now()
	est.ID = xid.New("est")
	est.Status = domain.EstimationActive
	est.CreatedBy = actorName(ctx)
	est.CreatedAt = now
	est.UpdatedAt = now
	est.ExpiresAt = now.Add(s.opts.EstimationValidity)

	created, err := s.repo.CreateEstimation(ctx, est)
	if err != nil {
		return domain.Estimation{}, err
	}
	s.logAudit(ctx, "estimation_create", "estimation", created.ID, fmt.Sprintf("total=%d,items=%d", created.TotalCents, len(created.Items)))
	return *created, nil
}

// UpdateEstimation re-quotes an active estimation. Validity runs from the update.
func (s *Service) UpdateEstimation(ctx context.Context, id string, req domain.EstimationRequest) (domain.Estimation, error) {
	existing, err := s.repo.GetEstimation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Estimation{}, err
	}
	if existing.Status != domain.EstimationActive {
		return domain.Estimation{}, fmt.Errorf("%w: estimation %s is %s", store.ErrConflict, existing.ID, existing.Status)
	}
	est, err := s.quoteEstimation(ctx, req)
	if err != nil {
		return domain.Estimation{}, err
	}
	now := s.now()
	est.ID = existing.ID
	est.Status = domain.EstimationActive
	est.UpdatedAt = now
	est.ExpiresAt = now.Add(s.opts.EstimationValidity)

	updated, err := s.repo.UpdateEstimation(ctx, est)
	if err != nil {
		return domain.Estimation{}, err
	}
	s.logAudit(ctx, "estimation_update", "estimation", updated.ID, fmt.Sprintf("total=%d,items=%d", updated.TotalCents, len(updated.Items)))
	return *updated, nil
}

func (s *Service) GetEstimation(ctx context.Context, id string) (domain.Estimation, error) {
	est, err := s.repo.GetEstimation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Estimation{}, err
	}
	return *est, nil
}

func (s *Service) ListEstimations(ctx context.Context, status string) ([]domain.Estimation, error) {
	status = strings.TrimSpace(status)
	switch status {
	case "", domain.EstimationActive, domain.EstimationConverted, domain.EstimationExpired:
	default:
		return nil, fmt.Errorf("%w: unknown estimation status %q", store.ErrInvalidTransaction, status)
	}
	return s.repo.ListEstimations(ctx, status)
}

func (s *Service) DeleteEstimation(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteEstimation(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "estimation_delete", "estimation", id, "")
	return nil
}

// RecallEstimation loads an estimation back into a cart. Each stored line is
// admitted against current stock; lines that no longer fit are dropped and
// named in the result instead of failing the recall.
func (s *Service) RecallEstimation(ctx context.Context, id string) (domain.EstimationRecall, error) {
	est, err := s.repo.GetEstimation(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.EstimationRecall{}, err
	}
	if est.Status != domain.EstimationActive {
		return domain.EstimationRecall{}, fmt.Errorf("%w: estimation %s is %s", store.ErrConflict, est.ID, est.Status)
	}

	c := cart.New(s.repo)
	var dropped []string
	for _, item := range est.Items {
		if err := c.AddQuantity(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			dropped = append(dropped, fmt.Sprintf("%s: %v", lineLabel(item), err))
			continue
		}
		if item.ItemDiscount != nil {
			if err := c.SetItemDiscount(item.ProductID, item.VariantID, item.ItemDiscount); err != nil {
				s.logger.Warn("recall dropped item discount", zap.String("estimation_id", est.ID), zap.Error(err))
			}
		}
	}

	lines := c.Lines()
	recall := domain.EstimationRecall{
		Estimation: *est,
		Lines:      cart.Requests(lines),
		Dropped:    dropped,
	}
	if len(lines) == 0 {
		recall.Quote = domain.Totals{TaxPolicy: s.pricing.Policy(), Lines: []domain.LineItem{}}
		return recall, nil
	}
	quote, err := s.price(ctx, lines, est.DiscountCode, false)
	if err != nil {
		return domain.EstimationRecall{}, err
	}
	recall.Quote = quote
	return recall, nil
}

func lineLabel(item domain.LineItem) string {
	if item.VariantName != "" {
		return item.ProductName + " (" + item.VariantName + ")"
	}
	if item.ProductName != "" {
		return item.ProductName
	}
	return item.ProductID
}

// ExpireEstimations marks active estimations past their validity as expired.
func (s *Service) ExpireEstimations(ctx context.Context) (int, error) {
	n, err := s.repo.ExpireEstimations(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("estimations expired", zap.Int("count", n))
	}
	return n, nil
}

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.CashierName = strings.TrimSpace(req.CashierName)
	if err := s.check(req); err != nil {
		return domain.Shift{}, err
	}
	created, err := s.repo.CreateShift(ctx, domain.Shift{
		ID:                xid.New("shift"),
		TerminalID:        req.TerminalID,
		CashierName:       req.CashierName,
		StartingCashCents: req.StartingCashCents,
		Status:            domain.ShiftStatusActive,
		OpenedAt:          s.now(),
	})
	if err != nil {
		return domain.Shift{}, err
	}
	s.logAudit(ctx, "shift_open", "shift", created.ID, fmt.Sprintf("terminal=%s,starting_cash=%d", created.TerminalID, created.StartingCashCents))
	return *created, nil
}

// CloseShift closes the terminal's active shift. Sales totals are summed from
// the transactions booked against it.
func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (domain.Shift, error) {
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if err := s.check(req); err != nil {
		return domain.Shift{}, err
	}
	closed, err := s.repo.CloseActiveShift(ctx, req.TerminalID, req.EndingCashCents, strings.TrimSpace(req.Notes), s.now())
	if err != nil {
		return domain.Shift{}, err
	}
	s.logAudit(ctx, "shift_close", "shift", closed.ID, fmt.Sprintf("sales=%d,transactions=%d,ending_cash=%d",
		closed.TotalSalesCents, closed.TotalTransactions, closed.EndingCashCents))
	return *closed, nil
}

func (s *Service) ActiveShift(ctx context.Context, terminalID string) (domain.Shift, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.Shift{}, fmt.Errorf("%w: terminal id required", store.ErrInvalidTransaction)
	}
	shift, err := s.repo.GetActiveShift(ctx, terminalID)
	if err != nil {
		return domain.Shift{}, err
	}
	return *shift, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Expense{}, err
	}
	now := s.now()
	date := startOfDay(now)
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := parseDay(req.Date)
		if err != nil {
			return domain.Expense{}, err
		}
		date = parsed
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		Description: req.Description,
		AmountCents: req.AmountCents,
		Category:    req.Category,
		Date:        date,
		ApprovedBy:  strings.TrimSpace(req.ApprovedBy),
		Notes:       strings.TrimSpace(req.Notes),
		CreatedBy:   actorName(ctx),
		CreatedAt:   now,
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.invalidateReport(ctx, created.Date)
	s.logAudit(ctx, "expense_create", "expense", created.ID, fmt.Sprintf("amount=%d,category=%s", created.AmountCents, created.Category))
	return *created, nil
}

// ListExpenses returns expenses dated within [from, to]; empty bounds are open.
func (s *Service) ListExpenses(ctx context.Context, from string, to string) ([]domain.Expense, error) {
	var start, end time.Time
	if strings.TrimSpace(from) != "" {
		day, err := parseDay(from)
		if err != nil {
			return nil, err
		}
		start = day
	}
	if strings.TrimSpace(to) != "" {
		day, err := parseDay(to)
		if err != nil {
			return nil, err
		}
		end = day.Add(24 * time.Hour)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, fmt.Errorf("%w: from is after to", store.ErrInvalidTransaction)
	}
	return s.repo.ListExpenses(ctx, start, end)
}
