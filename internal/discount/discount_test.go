package discount

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func activeDiscount() domain.Discount {
	return domain.Discount{
		ID:       "disc-1",
		Code:     "SPRING20",
		Type:     domain.DiscountTypePercentage,
		Percent:  20,
		StartsAt: now.Add(-24 * time.Hour),
		EndsAt:   now.Add(24 * time.Hour),
		Active:   true,
	}
}

func TestValidateRejectionsAreDistinct(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(d *domain.Discount)
		want   error
	}{
		{"inactive", func(d *domain.Discount) { d.Active = false }, ErrInactive},
		{"not started", func(d *domain.Discount) { d.StartsAt = now.Add(time.Hour) }, ErrNotStarted},
		{"expired", func(d *domain.Discount) { d.EndsAt = now.Add(-time.Hour) }, ErrExpired},
		{"limit reached", func(d *domain.Discount) { d.UsageLimit = 3; d.UsageCount = 3 }, ErrUsageLimitReached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := activeDiscount()
			tc.mutate(&d)
			err := Validate(d, now, 10_000)
			require.ErrorIs(t, err, tc.want)
			require.True(t, IsInvalidCode(err))
		})
	}
}

func TestValidateMinimumPurchase(t *testing.T) {
	d := activeDiscount()
	d.MinPurchaseCents = 5_000

	err := Validate(d, now, 4_999)
	var minErr *MinimumPurchaseError
	require.ErrorAs(t, err, &minErr)
	require.Equal(t, "minimum purchase of 50.00 required", err.Error())
	require.False(t, IsInvalidCode(err))
	require.True(t, IsRejection(err))

	require.NoError(t, Validate(d, now, 5_000))
}

func TestValidateWindowIsInclusive(t *testing.T) {
	d := activeDiscount()
	d.StartsAt = now
	d.EndsAt = now
	require.NoError(t, Validate(d, now, 100))
}

func TestAmountPercentageRespectsCap(t *testing.T) {
	d := activeDiscount()
	d.MaxDiscountCents = 300

	require.Equal(t, int64(300), Amount(d, 5_000))
	require.Equal(t, int64(200), Amount(d, 1_000))

	for _, subtotal := range []int64{0, 1, 99, 1_500, 1_501, 10_000_000} {
		got := Amount(d, subtotal)
		require.LessOrEqual(t, got, int64(300))
		require.GreaterOrEqual(t, got, int64(0))
	}
}

func TestAmountFixedNeverExceedsSubtotal(t *testing.T) {
	d := activeDiscount()
	d.Type = domain.DiscountTypeFixed
	d.Percent = 0
	d.AmountCents = 1_000

	for _, subtotal := range []int64{0, 1, 999, 1_000, 1_001, 50_000} {
		got := Amount(d, subtotal)
		require.GreaterOrEqual(t, got, int64(0))
		require.LessOrEqual(t, got, subtotal)
	}
	require.Equal(t, int64(400), Amount(d, 400))
	require.Equal(t, int64(1_000), Amount(d, 2_500))
}

func TestUsageLimitOneAllowsExactlyOneRedemption(t *testing.T) {
	d := activeDiscount()
	d.UsageLimit = 1

	require.NoError(t, Validate(d, now, 1_000))
	require.NoError(t, RecordUsage(&d))
	require.Equal(t, 1, d.UsageCount)

	require.ErrorIs(t, Validate(d, now, 1_000), ErrUsageLimitReached)
	require.ErrorIs(t, RecordUsage(&d), ErrUsageLimitReached)
	require.Equal(t, 1, d.UsageCount)
}

type fakeRepo map[string]domain.Discount

func (f fakeRepo) GetDiscountByCode(_ context.Context, code string) (*domain.Discount, error) {
	d, ok := f[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func TestValidatorLookupIsCaseInsensitive(t *testing.T) {
	v := NewValidator(fakeRepo{"SPRING20": activeDiscount()})

	d, err := v.Lookup(context.Background(), "  spring20 ", now, 1_000)
	require.NoError(t, err)
	require.Equal(t, "disc-1", d.ID)

	_, err = v.Lookup(context.Background(), "nope", now, 1_000)
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, errors.Is(err, ErrNotFound))
}
