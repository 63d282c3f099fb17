package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/discount"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/inventory"
	"retailpos/backend/internal/pricing"
	"retailpos/backend/internal/purchasing"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	TaxPolicy          string
	FlatTaxRatePercent float64
	TaxCountry         string
	EstimationValidity time.Duration
	ReportCacheTTL     time.Duration
}

type Service struct {
	repo       store.Repository
	pricing    *pricing.Engine
	discounts  *discount.Validator
	ledger     *inventory.Ledger
	purchasing *purchasing.Reconciler
	reports    cache.ReportCache
	validate   *validator.Validate
	logger     *zap.Logger
	opts       Options
	now        func() time.Time

	returnLocks sync.Map
}

func New(repo store.Repository, reports cache.ReportCache, logger *zap.Logger, opts Options) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if opts.EstimationValidity <= 0 {
		opts.EstimationValidity = 7 * 24 * time.Hour
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = time.Minute
	}
	if opts.FlatTaxRatePercent == 0 {
		opts.FlatTaxRatePercent = pricing.DefaultFlatRatePercent
	}
	opts.TaxCountry = strings.ToUpper(strings.TrimSpace(opts.TaxCountry))

	engine, err := pricing.NewEngine(opts.TaxPolicy, opts.FlatTaxRatePercent, nil)
	if err != nil {
		return nil, err
	}
	ledger := inventory.NewLedger(repo, logger)

	return &Service{
		repo:       repo,
		pricing:    engine,
		discounts:  discount.NewValidator(repo),
		ledger:     ledger,
		purchasing: purchasing.NewReconciler(repo, ledger, logger),
		reports:    reports,
		validate:   validator.New(),
		logger:     logger.Named("service"),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) TaxPolicy() string {
	return s.pricing.Policy()
}

// engine returns the pricing engine bound to the tax rates of the configured country.
func (s *Service) engine(ctx context.Context) (*pricing.Engine, error) {
	if s.pricing.Policy() != pricing.PolicyPerItemInclusive {
		return s.pricing, nil
	}
	groups, err := s.repo.ListTaxGroups(ctx)
	if err != nil {
		return nil, err
	}
	rates := make(pricing.StaticTaxRates, len(groups))
	for _, g := range groups {
		if s.opts.TaxCountry == "" || strings.EqualFold(g.Country, s.opts.TaxCountry) {
			rates[g.ID] = g.RatePercent
		}
	}
	return s.pricing.WithRates(rates), nil
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, err.Error())
	}
	return nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		from = parsed
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

func parseDay(date string) (time.Time, error) {
	parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidTransaction)
	}
	return parsed.UTC(), nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
