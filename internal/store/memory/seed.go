package memory

import (
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/xid"
)

const seedActor = "system"

func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make(map[string]domain.UserAccount, 2)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small demo catalog, its opening stock
// movements, and the default admin and cashier accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, g := range []domain.TaxGroup{
		{ID: "tg-usa-standard", Name: "Standard", Country: "USA", RatePercent: 8},
		{ID: "tg-usa-food", Name: "Groceries", Country: "USA", RatePercent: 2.5},
		{ID: "tg-ind-gst18", Name: "GST 18%", Country: "IND", RatePercent: 18},
		{ID: "tg-ind-gst5", Name: "GST 5%", Country: "IND", RatePercent: 5},
	} {
		s.taxGroups[g.ID] = g
	}

	products := []domain.Product{
		{ID: "prod-espresso-beans", SKU: "BEV-ESP-1KG", Name: "Espresso Beans 1kg", Category: "beverage", PriceCents: 2_499, CostPriceCents: 1_450, Stock: 40, MinStock: 8, TaxGroupID: "tg-usa-food", TaxInclusive: true, Active: true},
		{ID: "prod-green-tea", SKU: "BEV-TEA-50", Name: "Green Tea 50 bags", Category: "beverage", PriceCents: 699, CostPriceCents: 320, Stock: 60, MinStock: 10, TaxGroupID: "tg-usa-food", TaxInclusive: true, Active: true},
		{ID: "prod-oat-milk", SKU: "DRY-OAT-1L", Name: "Oat Milk 1L", Category: "dairy", PriceCents: 449, CostPriceCents: 250, Stock: 24, MinStock: 6, TaxGroupID: "tg-usa-food", TaxInclusive: true, Active: true},
		{ID: "prod-sourdough", SKU: "BAK-SOUR-01", Name: "Sourdough Loaf", Category: "bakery", PriceCents: 650, CostPriceCents: 280, Stock: 12, MinStock: 4, Active: true},
		{ID: "prod-ceramic-mug", SKU: "HOM-MUG-01", Name: "Ceramic Mug", Category: "homeware", PriceCents: 1_200, CostPriceCents: 500, Stock: 30, MinStock: 5, TaxGroupID: "tg-usa-standard", TaxInclusive: true, Active: true},
		{
			ID: "prod-logo-tee", SKU: "APP-TEE-01", Name: "Logo T-Shirt", Category: "apparel", PriceCents: 2_000, CostPriceCents: 800,
			Stock: 20, MinStock: 5, TaxGroupID: "tg-usa-standard", TaxInclusive: true, Active: true,
			Variants: []domain.ProductVariant{
				{ID: "var-logo-tee-s", Name: "Small", Type: "size", Value: "S", Stock: 6, IsDefault: true},
				{ID: "var-logo-tee-m", Name: "Medium", Type: "size", Value: "M", Stock: 8},
				{ID: "var-logo-tee-l", Name: "Large", Type: "size", Value: "L", Stock: 4},
				{ID: "var-logo-tee-xl", Name: "X-Large", Type: "size", Value: "XL", PriceModifierCents: 200, Stock: 2},
			},
		},
		{
			ID: "prod-tote-bag", SKU: "APP-TOTE-01", Name: "Canvas Tote", Category: "apparel", PriceCents: 1_500, CostPriceCents: 600,
			Stock: 15, MinStock: 3, TaxGroupID: "tg-usa-standard", Active: true,
			Variants: []domain.ProductVariant{
				{ID: "var-tote-natural", Name: "Natural", Type: "color", Value: "natural", Stock: 10, IsDefault: true},
				{ID: "var-tote-black", Name: "Black", Type: "color", Value: "black", PriceModifierCents: 100, Stock: 5},
			},
		},
		{ID: "prod-gift-card-box", SKU: "MSC-GIFT-01", Name: "Gift Box", Category: "misc", PriceCents: 300, CostPriceCents: 90, Stock: 0, MinStock: 10, Active: true},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		if p.Stock > 0 {
			s.movements = append(s.movements, domain.InventoryMovement{
				ID:            xid.New("mv"),
				ProductID:     p.ID,
				ProductName:   p.Name,
				Type:          domain.MovementIn,
				Quantity:      p.Stock,
				Reason:        "Opening Stock",
				User:          seedActor,
				UnitCostCents: p.CostPriceCents,
				CreatedAt:     now,
			})
		}
	}

	for _, rt := range []domain.RemovalType{
		{ID: "rt-damaged", Name: "Damaged"},
		{ID: "rt-expired", Name: "Expired"},
		{ID: "rt-theft", Name: "Theft / Loss"},
		{ID: "rt-internal", Name: "Internal Use", UnitType: "Department", Options: []string{"Kitchen", "Office", "Display"}},
	} {
		rt.CreatedAt = now
		s.removalTypes[rt.ID] = rt
	}

	for _, d := range []domain.Discount{
		{ID: "disc-welcome10", Code: "WELCOME10", Name: "Welcome 10%", Type: domain.DiscountTypePercentage, Percent: 10, MaxDiscountCents: 1_000, StartsAt: now.AddDate(0, -1, 0), EndsAt: now.AddDate(1, 0, 0), Active: true},
		{ID: "disc-save5", Code: "SAVE5", Name: "$5 off $50", Type: domain.DiscountTypeFixed, AmountCents: 500, MinPurchaseCents: 5_000, StartsAt: now.AddDate(0, -1, 0), EndsAt: now.AddDate(0, 6, 0), Active: true},
	} {
		d.CreatedAt = now
		s.discountsByID[d.ID] = d
		s.discountIDByCode[d.Code] = d.ID
	}

	for _, sup := range []domain.Supplier{
		{ID: "sup-roastery", Name: "Harbor Roastery", Contact: "Dana Ortiz", Phone: "555-0142", Email: "orders@harbor.example"},
		{ID: "sup-textiles", Name: "Northwind Textiles", Contact: "Sam Lee", Email: "sales@northwind.example"},
	} {
		sup.CreatedAt = now
		s.suppliersByID[sup.ID] = sup
	}

	s.customersByID["cust-walkin-regular"] = domain.Customer{
		ID: "cust-walkin-regular", Name: "Jordan Avery", Email: "jordan@example.com", Phone: "555-0100", CreatedAt: now,
	}

	s.usersByUsername = seedUsers()
	return s
}
