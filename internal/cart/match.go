package cart

import (
	"cmp"
	"slices"

	"retailpos/backend/internal/domain"
)

type lineKey struct {
	productID string
	variantID string
	quantity  int
}

func keysOf(items []domain.LineItem) []lineKey {
	keys := make([]lineKey, 0, len(items))
	for _, it := range items {
		keys = append(keys, lineKey{productID: it.ProductID, variantID: it.VariantID, quantity: it.Quantity})
	}
	slices.SortFunc(keys, func(a, b lineKey) int {
		return cmp.Or(
			cmp.Compare(a.productID, b.productID),
			cmp.Compare(a.variantID, b.variantID),
			cmp.Compare(a.quantity, b.quantity),
		)
	})
	return keys
}

// Matches reports whether a and b hold exactly the same multiset of
// (product, variant, quantity) lines. Order and prices are ignored.
func Matches(a []domain.LineItem, b []domain.LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	return slices.Equal(keysOf(a), keysOf(b))
}
