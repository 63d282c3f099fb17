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

const productColumns = `id, sku, name, category, price_cents, cost_price_cents, stock, min_stock,
	COALESCE(tax_group_id, ''), tax_inclusive, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.CostPriceCents, &p.Stock,
		&p.MinStock, &p.TaxGroupID, &p.TaxInclusive, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

// loadProducts runs a product query and attaches each product's variants.
func loadProducts(ctx context.Context, q querier, where string, args ...any) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+productColumns+` FROM products `+where, args...)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, 64)
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(products) == 0 {
		return products, nil
	}

	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	vrows, err := q.QueryContext(ctx, `
		SELECT id, product_id, name, type, value, price_modifier_cents, stock, is_default
		FROM product_variants
		WHERE product_id = ANY($1)
		ORDER BY product_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer vrows.Close()
	for vrows.Next() {
		var v domain.ProductVariant
		var productID string
		if err := vrows.Scan(&v.ID, &productID, &v.Name, &v.Type, &v.Value, &v.PriceModifierCents, &v.Stock, &v.IsDefault); err != nil {
			return nil, err
		}
		if i, ok := index[productID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	return products, vrows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return loadProducts(ctx, s.db, `ORDER BY category, name`)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	products, err := loadProducts(ctx, s.db, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, store.ErrNotFound
	}
	return &products[0], nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	products, err := loadProducts(ctx, s.db, `WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	err := s.serializable(ctx, func(tx *sql.Tx) error {
		// stock starts at zero; opening stock arrives as a posting
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, sku, name, category, price_cents, cost_price_cents, stock, min_stock,
				tax_group_id, tax_inclusive, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,$9,$10,$11,$12)
		`, product.ID, product.SKU, product.Name, product.Category, product.PriceCents, product.CostPriceCents,
			product.MinStock, nullIfEmpty(product.TaxGroupID), product.TaxInclusive, product.Active, product.CreatedAt, product.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: sku %s already exists", store.ErrConflict, product.SKU)
			}
			return err
		}
		for i := range product.Variants {
			v := &product.Variants[i]
			if v.ID == "" {
				v.ID = xid.New("var")
			}
			v.Stock = 0
			_, err := tx.ExecContext(ctx, `
				INSERT INTO product_variants (id, product_id, position, name, type, value, price_modifier_cents, stock, is_default)
				VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)
			`, v.ID, product.ID, i, v.Name, v.Type, v.Value, v.PriceModifierCents, v.IsDefault)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	product.Stock = 0
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, cost_price_cents = $5, min_stock = $6,
			tax_group_id = $7, tax_inclusive = $8, active = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.PriceCents, product.CostPriceCents, product.MinStock,
		nullIfEmpty(product.TaxGroupID), product.TaxInclusive, product.Active)
	if err != nil {
		return nil, err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) ListTaxGroups(ctx context.Context) ([]domain.TaxGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, country, rate_percent::float8
		FROM tax_groups
		ORDER BY country, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]domain.TaxGroup, 0, 8)
	for rows.Next() {
		var g domain.TaxGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Country, &g.RatePercent); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) UpsertTaxGroup(ctx context.Context, group domain.TaxGroup) (*domain.TaxGroup, error) {
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" || group.RatePercent < 0 || group.RatePercent > 100 {
		return nil, store.ErrInvalidTransaction
	}
	if group.ID == "" {
		group.ID = xid.New("tg")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_groups (id, name, country, rate_percent)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, country = EXCLUDED.country, rate_percent = EXCLUDED.rate_percent
	`, group.ID, group.Name, group.Country, group.RatePercent)
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (s *Store) CreateRemovalType(ctx context.Context, removalType domain.RemovalType) (*domain.RemovalType, error) {
	removalType.Name = strings.TrimSpace(removalType.Name)
	if removalType.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if removalType.ID == "" {
		removalType.ID = xid.New("rt")
	}
	if removalType.CreatedAt.IsZero() {
		removalType.CreatedAt = time.Now().UTC()
	}
	if removalType.Options == nil {
		removalType.Options = []string{}
	}
	options, err := marshalJSON(removalType.Options)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO removal_types (id, name, unit_type, options, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, removalType.ID, removalType.Name, removalType.UnitType, options, removalType.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &removalType, nil
}

func (s *Store) GetRemovalType(ctx context.Context, id string) (*domain.RemovalType, error) {
	var rt domain.RemovalType
	var options []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit_type, options, created_at FROM removal_types WHERE id = $1
	`, id).Scan(&rt.ID, &rt.Name, &rt.UnitType, &options, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(options, &rt.Options); err != nil {
		return nil, err
	}
	rt.CreatedAt = rt.CreatedAt.UTC()
	return &rt, nil
}

func (s *Store) ListRemovalTypes(ctx context.Context) ([]domain.RemovalType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit_type, options, created_at FROM removal_types ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RemovalType, 0, 8)
	for rows.Next() {
		var rt domain.RemovalType
		var options []byte
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.UnitType, &options, &rt.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(options, &rt.Options); err != nil {
			return nil, err
		}
		rt.CreatedAt = rt.CreatedAt.UTC()
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRemovalType(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM removal_types WHERE id = $1`, id)
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
