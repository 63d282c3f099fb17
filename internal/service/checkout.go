package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/cart"
	"retailpos/backend/internal/discount"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/inventory"
	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// Quote prices a client cart. A code that cannot be applied does not fail
// the quote; the reason is reported on the totals instead.
func (s *Service) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Totals, error) {
	if err := s.check(req); err != nil {
		return domain.Totals{}, err
	}
	lines, err := cart.Build(ctx, s.repo, req.Lines)
	if err != nil {
		return domain.Totals{}, err
	}
	return s.price(ctx, lines, req.DiscountCode, false)
}

// price quotes admitted lines. With strict set a rejected discount code is an error.
func (s *Service) price(ctx context.Context, lines []domain.CartLine, code string, strict bool) (domain.Totals, error) {
	engine, err := s.engine(ctx)
	if err != nil {
		return domain.Totals{}, err
	}

	var applied *domain.Discount
	var rejection string
	if strings.TrimSpace(code) != "" {
		d, err := s.discounts.Lookup(ctx, code, s.now(), pricing.Subtotal(lines))
		switch {
		case err == nil:
			applied = d
		case discount.IsRejection(err) && !strict:
			rejection = err.Error()
		default:
			return domain.Totals{}, err
		}
	}

	totals := engine.Quote(lines, applied)
	totals.DiscountRejectionNote = rejection
	return totals, nil
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = xid.New("idem")
	}
	if err := s.check(req); err != nil {
		return domain.CheckoutResponse{}, err
	}

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, req.IdempotencyKey); err == nil {
		return toCheckoutResponse(existing, true, 0, nil), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	lines, err := cart.Build(ctx, s.repo, req.Lines)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	totals, err := s.price(ctx, lines, req.DiscountCode, true)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	payments, tendered, change, err := settle(req.Payments, totals.TotalCents, req.CashTenderedCents)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	var customer *domain.Customer
	if req.CustomerID != "" {
		customer, err = s.repo.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.CheckoutResponse{}, fmt.Errorf("%w: unknown customer %s", store.ErrInvalidTransaction, req.CustomerID)
			}
			return domain.CheckoutResponse{}, err
		}
	}

	shiftID := ""
	if req.TerminalID != "" {
		shift, err := s.repo.GetActiveShift(ctx, req.TerminalID)
		switch {
		case err == nil:
			shiftID = shift.ID
		case !errors.Is(err, store.ErrNotFound):
			return domain.CheckoutResponse{}, err
		}
	}

	now := s.now()
	actor := actorName(ctx)
	tx := domain.Transaction{
		ID:                xid.New("tx"),
		IdempotencyKey:    req.IdempotencyKey,
		Type:              domain.TxTypeSale,
		Status:            domain.TxStatusCompleted,
		Items:             totals.Lines,
		SubtotalCents:     totals.SubtotalCents,
		DiscountCents:     totals.DiscountCents,
		DiscountID:        totals.DiscountID,
		DiscountCode:      totals.DiscountCode,
		TaxCents:          totals.TaxCents,
		TotalCents:        totals.TotalCents,
		TaxPolicy:         totals.TaxPolicy,
		Payments:          payments,
		CashTenderedCents: tendered,
		ChangeCents:       change,
		Cashier:           actor,
		TerminalID:        req.TerminalID,
		ShiftID:           shiftID,
		CustomerID:        req.CustomerID,
		CreatedAt:         now,
	}

	commit := domain.CheckoutCommit{
		Transaction: tx,
		Posting:     inventory.PlanSale(lines, tx.ID, actor, now),
		DiscountID:  totals.DiscountID,
	}
	if customer != nil {
		commit.LoyaltyPoints = LoyaltyPoints(totals.TotalCents)
		commit.EstimationIDs, err = s.matchingEstimations(ctx, customer.ID, totals.Lines)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
	}

	created, err := s.repo.CommitCheckout(ctx, commit)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if created.ID != tx.ID {
		// a concurrent request with the same key won the commit
		return toCheckoutResponse(created, true, 0, nil), nil
	}

	s.invalidateReport(ctx, now)
	s.logAudit(ctx, "checkout", "transaction", created.ID, fmt.Sprintf(
		"total=%d,payment=%s,discount=%d,code=%s,items=%d",
		created.TotalCents, created.PaymentSummary(), created.DiscountCents, created.DiscountCode, totals.ItemCount,
	))
	s.logger.Info("checkout committed",
		zap.String("transaction_id", created.ID),
		zap.Int64("total_cents", created.TotalCents),
		zap.String("shift_id", created.ShiftID),
	)
	return toCheckoutResponse(created, false, commit.LoyaltyPoints, commit.EstimationIDs), nil
}

// LoyaltyPoints awards one point per whole currency unit of the total.
func LoyaltyPoints(totalCents int64) int {
	if totalCents <= 0 {
		return 0
	}
	return int(totalCents / 100)
}

// settle checks that the tenders cover the total exactly and works out the
// change owed on the cash part.
func settle(payments []domain.Payment, totalCents int64, cashTendered int64) ([]domain.Payment, int64, int64, error) {
	out := make([]domain.Payment, 0, len(payments))
	var sum, cashPart int64
	for _, p := range payments {
		p.Method = strings.ToLower(strings.TrimSpace(p.Method))
		p.Reference = strings.TrimSpace(p.Reference)
		if p.AmountCents <= 0 {
			return nil, 0, 0, fmt.Errorf("%w: payment amount must be positive", store.ErrInvalidTransaction)
		}
		switch p.Method {
		case domain.PaymentCash:
			cashPart += p.AmountCents
		case domain.PaymentCard:
			if p.Reference == "" {
				return nil, 0, 0, fmt.Errorf("%w: card payment needs a reference", store.ErrInvalidTransaction)
			}
		case domain.PaymentDigital, domain.PaymentGiftCard, domain.PaymentStoreCredit:
		default:
			return nil, 0, 0, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidTransaction, p.Method)
		}
		sum += p.AmountCents
		out = append(out, p)
	}
	if sum != totalCents {
		return nil, 0, 0, fmt.Errorf("%w: payments total %d, sale total %d", store.ErrInvalidTransaction, sum, totalCents)
	}
	if cashPart == 0 {
		return out, 0, 0, nil
	}
	if cashTendered == 0 {
		cashTendered = cashPart
	}
	if cashTendered < cashPart {
		return nil, 0, 0, fmt.Errorf("%w: cash tendered below cash due", store.ErrInvalidTransaction)
	}
	return out, cashTendered, cashTendered - cashPart, nil
}

// matchingEstimations returns the customer's active estimations whose lines
// are exactly the lines being sold.
func (s *Service) matchingEstimations(ctx context.Context, customerID string, items []domain.LineItem) ([]string, error) {
	active, err := s.repo.ListEstimations(ctx, domain.EstimationActive)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, est := range active {
		if est.CustomerID == customerID && cart.Matches(est.Items, items) {
			ids = append(ids, est.ID)
		}
	}
	return ids, nil
}

func (s *Service) LookupCheckoutByIdempotency(ctx context.Context, idempotencyKey string) (domain.CheckoutLookupResponse, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return domain.CheckoutLookupResponse{}, store.ErrInvalidTransaction
	}
	tx, err := s.repo.FindTransactionByIdempotency(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutLookupResponse{Found: false}, nil
		}
		return domain.CheckoutLookupResponse{}, err
	}
	resp := toCheckoutResponse(tx, true, 0, nil)
	return domain.CheckoutLookupResponse{Found: true, Checkout: &resp}, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// ListTransactions returns the sales of one day, or of the last 24 hours when date is empty.
func (s *Service) ListTransactions(ctx context.Context, date string, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 200
	}
	from := s.now().Add(-24 * time.Hour)
	to := s.now().Add(time.Second)
	if strings.TrimSpace(date) != "" {
		day, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		from, to = day, day.Add(24*time.Hour)
	}
	return s.repo.ListTransactions(ctx, from, to, limit)
}

// Receipt renders a plain-text receipt for a stored sale.
func (s *Service) Receipt(ctx context.Context, transactionID string) (domain.ReceiptResponse, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.ReceiptResponse{}, store.ErrInvalidTransaction
	}
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	money := newMoneyFormatter(s.opts.TaxCountry)
	lines := []string{
		"RetailPOS",
		"================================",
		"TX: " + tx.ID,
		"Date: " + tx.CreatedAt.Format("2006-01-02 15:04:05"),
		"Cashier: " + tx.Cashier,
	}
	if tx.TerminalID != "" {
		lines = append(lines, "Terminal: "+tx.TerminalID)
	}
	lines = append(lines, "--------------------------------")
	for _, item := range tx.Items {
		name := item.ProductName
		if item.VariantName != "" {
			name += " (" + item.VariantName + ")"
		}
		lines = append(lines,
			fmt.Sprintf("%s x%d", name, item.Quantity),
			"  "+money.format(item.LineTotalCents),
		)
	}
	lines = append(lines,
		"--------------------------------",
		"Subtotal : "+money.format(tx.SubtotalCents),
	)
	if tx.DiscountCents > 0 {
		label := "Discount : "
		if tx.DiscountCode != "" {
			label = "Discount (" + tx.DiscountCode + "): "
		}
		lines = append(lines, label+"-"+money.format(tx.DiscountCents))
	}
	lines = append(lines,
		"Tax      : "+money.format(tx.TaxCents),
		"Total    : "+money.format(tx.TotalCents),
	)
	for _, p := range tx.Payments {
		lines = append(lines, fmt.Sprintf("Paid %-8s: %s", p.Method, money.format(p.AmountCents)))
	}
	if tx.CashTenderedCents > 0 {
		lines = append(lines,
			"Tendered : "+money.format(tx.CashTenderedCents),
			"Change   : "+money.format(tx.ChangeCents),
		)
	}
	lines = append(lines, "================================", "Thank you", "")

	return domain.ReceiptResponse{
		TransactionID: tx.ID,
		PreviewText:   strings.Join(lines, "\n"),
	}, nil
}

type moneyFormatter struct {
	printer *message.Printer
	code    string
}

func newMoneyFormatter(country string) moneyFormatter {
	tag := language.AmericanEnglish
	code := currency.USD.String()
	if region, err := language.ParseRegion(country); err == nil {
		if unit, ok := currency.FromRegion(region); ok {
			code = unit.String()
		}
		if region.String() == "IN" {
			tag = language.MustParse("en-IN")
		}
	}
	return moneyFormatter{printer: message.NewPrinter(tag), code: code}
}

func (m moneyFormatter) format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s %s.%02d", sign, m.code, m.printer.Sprintf("%d", cents/100), cents%100)
}

func toCheckoutResponse(tx *domain.Transaction, duplicate bool, loyalty int, converted []string) domain.CheckoutResponse {
	itemCount := 0
	for _, item := range tx.Items {
		itemCount += item.Quantity
	}
	return domain.CheckoutResponse{
		TransactionID:  tx.ID,
		Status:         tx.Status,
		Items:          tx.Items,
		Payments:       tx.Payments,
		SubtotalCents:  tx.SubtotalCents,
		DiscountCents:  tx.DiscountCents,
		DiscountCode:   tx.DiscountCode,
		TaxCents:       tx.TaxCents,
		TotalCents:     tx.TotalCents,
		CashTendered:   tx.CashTenderedCents,
		ChangeCents:    tx.ChangeCents,
		ItemCount:      itemCount,
		ShiftID:        tx.ShiftID,
		CustomerID:     tx.CustomerID,
		LoyaltyEarned:  loyalty,
		ConvertedQuote: converted,
		Duplicate:      duplicate,
		CreatedAt:      tx.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Service) invalidateReport(ctx context.Context, at time.Time) {
	key := cache.DailyReportKey(startOfDay(at).Format(time.DateOnly))
	if err := s.reports.Invalidate(ctx, key); err != nil {
		s.logger.Warn("report cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
