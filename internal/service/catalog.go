package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

// CreateProduct registers a product at zero stock and posts the initial
// stock through the ledger so the movement log covers it.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	variantStock := 0
	opening := make(map[string]int, len(req.Variants))
	variants := make([]domain.ProductVariant, 0, len(req.Variants))
	for _, v := range req.Variants {
		v.Name = strings.TrimSpace(v.Name)
		if v.Name == "" || v.Stock < 0 {
			return domain.Product{}, fmt.Errorf("%w: variant needs a name and non-negative stock", store.ErrInvalidTransaction)
		}
		if v.ID == "" {
			v.ID = xid.New("var")
		}
		variantStock += v.Stock
		opening[v.ID] = v.Stock
		v.Stock = 0
		variants = append(variants, v)
	}

	product := domain.Product{
		SKU:            req.SKU,
		Name:           req.Name,
		Category:       req.Category,
		PriceCents:     req.PriceCents,
		CostPriceCents: req.CostPriceCents,
		MinStock:       req.MinStock,
		TaxGroupID:     strings.TrimSpace(req.TaxGroupID),
		TaxInclusive:   req.TaxInclusive,
		Active:         true,
		Variants:       variants,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	initial := req.InitialStock
	if initial == 0 && variantStock > 0 {
		initial = variantStock
	}
	if initial > 0 {
		if err := s.ledger.ApplyOpeningStock(ctx, *created, initial, actor.Username, now); err != nil {
			return domain.Product{}, err
		}
	}
	if variantStock > 0 {
		var posting domain.StockPosting
		for _, v := range variants {
			if qty := opening[v.ID]; qty > 0 {
				posting.Changes = append(posting.Changes, domain.StockChange{
					ProductID: created.ID,
					VariantID: v.ID,
					Delta:     qty,
				})
			}
		}
		if err := s.ledger.Commit(ctx, "opening-variants", posting); err != nil {
			return domain.Product{}, err
		}
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%d,stock=%d", created.SKU, created.PriceCents, initial))
	return s.GetProduct(ctx, created.ID)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.CostPriceCents != nil {
		if *req.CostPriceCents < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.CostPriceCents = *req.CostPriceCents
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, store.ErrInvalidTransaction
		}
		updated.MinStock = *req.MinStock
	}
	if req.TaxGroupID != nil {
		updated.TaxGroupID = strings.TrimSpace(*req.TaxGroupID)
	}
	if req.TaxInclusive != nil {
		updated.TaxInclusive = *req.TaxInclusive
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

// LowStock lists active products at or below their reorder threshold, emptiest first.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Active && p.Stock <= p.MinStock {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stock < out[j].Stock
	})
	return out, nil
}

func (s *Service) ListTaxGroups(ctx context.Context) ([]domain.TaxGroup, error) {
	return s.repo.ListTaxGroups(ctx)
}

func (s *Service) UpsertTaxGroup(ctx context.Context, group domain.TaxGroup) (domain.TaxGroup, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.TaxGroup{}, err
	}
	group.Country = strings.ToUpper(strings.TrimSpace(group.Country))
	saved, err := s.repo.UpsertTaxGroup(ctx, group)
	if err != nil {
		return domain.TaxGroup{}, err
	}
	s.logAudit(ctx, "tax_group_upsert", "tax_group", saved.ID, fmt.Sprintf("rate=%.3f,country=%s", saved.RatePercent, saved.Country))
	return *saved, nil
}
