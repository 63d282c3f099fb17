package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

var (
	ErrNotFound          = errors.New("invalid or expired discount code")
	ErrInactive          = errors.New("discount code is inactive")
	ErrNotStarted        = errors.New("discount code is not active yet")
	ErrExpired           = errors.New("discount code has expired")
	ErrUsageLimitReached = store.ErrUsageLimitReached
)

// MinimumPurchaseError reports a subtotal below the discount's minimum purchase.
type MinimumPurchaseError struct {
	MinimumCents int64
}

func (e *MinimumPurchaseError) Error() string {
	return fmt.Sprintf("minimum purchase of %s required", decimal.New(e.MinimumCents, -2).StringFixed(2))
}

// IsInvalidCode reports whether err belongs to the "invalid or expired code"
// family, as opposed to a minimum purchase rejection.
func IsInvalidCode(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrNotStarted) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrUsageLimitReached)
}

// IsRejection reports whether err is any validation outcome of this package.
func IsRejection(err error) bool {
	var minErr *MinimumPurchaseError
	return IsInvalidCode(err) || errors.As(err, &minErr)
}

// Validate checks d against the activity window, usage limit and minimum
// purchase. A zero UsageLimit or MinPurchaseCents means no limit.
func Validate(d domain.Discount, now time.Time, subtotalCents int64) error {
	if !d.Active {
		return ErrInactive
	}
	if !d.StartsAt.IsZero() && now.Before(d.StartsAt) {
		return ErrNotStarted
	}
	if !d.EndsAt.IsZero() && now.After(d.EndsAt) {
		return ErrExpired
	}
	if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
		return ErrUsageLimitReached
	}
	if d.MinPurchaseCents > 0 && subtotalCents < d.MinPurchaseCents {
		return &MinimumPurchaseError{MinimumCents: d.MinPurchaseCents}
	}
	return nil
}

// Amount is the discount taken off subtotalCents, always within [0, subtotal].
func Amount(d domain.Discount, subtotalCents int64) int64 {
	if subtotalCents <= 0 {
		return 0
	}
	var amount int64
	switch d.Type {
	case domain.DiscountTypePercentage:
		amount = decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromFloat(d.Percent)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
		if d.MaxDiscountCents > 0 && amount > d.MaxDiscountCents {
			amount = d.MaxDiscountCents
		}
	case domain.DiscountTypeFixed:
		amount = d.AmountCents
	}
	if amount < 0 {
		return 0
	}
	if amount > subtotalCents {
		return subtotalCents
	}
	return amount
}

// RecordUsage counts one redemption on d, refusing once the limit is reached.
func RecordUsage(d *domain.Discount) error {
	if d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit {
		return ErrUsageLimitReached
	}
	d.UsageCount++
	return nil
}

// NormalizeCode is the canonical form codes are stored and matched in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Repository interface {
	GetDiscountByCode(ctx context.Context, code string) (*domain.Discount, error)
}

// Validator resolves codes through the repository before validating them.
type Validator struct {
	repo Repository
}

func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// Lookup returns the discount for code when it may be applied to subtotalCents at now.
func (v *Validator) Lookup(ctx context.Context, code string, now time.Time, subtotalCents int64) (*domain.Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}
	d, err := v.repo.GetDiscountByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := Validate(*d, now, subtotalCents); err != nil {
		return nil, err
	}
	return d, nil
}
