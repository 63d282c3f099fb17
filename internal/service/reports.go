package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
)

const topProductsLimit = 10

// DailyReport summarizes one day of sales and expenses. Reports are served
// from the cache when present; a cache failure only costs a recomputation.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	day := startOfDay(s.now())
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDay(date)
		if err != nil {
			return domain.DailyReport{}, err
		}
		day = parsed
	}
	key := cache.DailyReportKey(day.Format(time.DateOnly))

	cached, hit, err := s.reports.Get(ctx, key)
	if err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit && cached != nil {
		return *cached, nil
	}

	// limit 0 reads the whole day
	txs, err := s.repo.ListTransactions(ctx, day, day.Add(24*time.Hour), 0)
	if err != nil {
		return domain.DailyReport{}, err
	}
	expenses, err := s.repo.ListExpenses(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		return domain.DailyReport{}, err
	}

	report := BuildDailyReport(day.Format(time.DateOnly), txs, expenses)
	if err := s.reports.Set(ctx, key, &report, s.opts.ReportCacheTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}

// BuildDailyReport aggregates completed sales. Net sales are the totals
// without tax; expenses are reported alongside and not subtracted.
func BuildDailyReport(date string, txs []domain.Transaction, expenses []domain.Expense) domain.DailyReport {
	report := domain.DailyReport{
		Date:        date,
		ByPayment:   []domain.DailyReportPayment{},
		TopProducts: []domain.DailyReportProduct{},
	}

	payments := map[string]*domain.DailyReportPayment{}
	products := map[string]*domain.DailyReportProduct{}
	for _, tx := range txs {
		if tx.Status != domain.TxStatusCompleted {
			continue
		}
		report.Transactions++
		report.GrossSalesCents += tx.SubtotalCents
		report.DiscountCents += tx.DiscountCents
		report.TaxCents += tx.TaxCents
		report.NetSalesCents += tx.TotalCents - tx.TaxCents

		method := tx.PaymentSummary()
		p, ok := payments[method]
		if !ok {
			p = &domain.DailyReportPayment{PaymentMethod: method}
			payments[method] = p
		}
		p.Transactions++
		p.TotalCents += tx.TotalCents

		for _, item := range tx.Items {
			row, ok := products[item.ProductID]
			if !ok {
				row = &domain.DailyReportProduct{ProductID: item.ProductID, ProductName: item.ProductName}
				products[item.ProductID] = row
			}
			row.Quantity += item.Quantity
			row.TotalCents += item.LineTotalCents
		}
	}
	for _, e := range expenses {
		report.ExpensesCents += e.AmountCents
	}

	for _, p := range payments {
		report.ByPayment = append(report.ByPayment, *p)
	}
	sort.Slice(report.ByPayment, func(i, j int) bool {
		if report.ByPayment[i].TotalCents != report.ByPayment[j].TotalCents {
			return report.ByPayment[i].TotalCents > report.ByPayment[j].TotalCents
		}
		return report.ByPayment[i].PaymentMethod < report.ByPayment[j].PaymentMethod
	})

	for _, p := range products {
		report.TopProducts = append(report.TopProducts, *p)
	}
	sort.Slice(report.TopProducts, func(i, j int) bool {
		a, b := report.TopProducts[i], report.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		if a.TotalCents != b.TotalCents {
			return a.TotalCents > b.TotalCents
		}
		return a.ProductID < b.ProductID
	})
	if len(report.TopProducts) > topProductsLimit {
		report.TopProducts = report.TopProducts[:topProductsLimit]
	}
	return report
}
