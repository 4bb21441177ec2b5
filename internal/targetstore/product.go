package targetstore

import (
	"context"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

const productColumns = `id, external_id, name, description, price, sale_price, suggested_price,
	total_sold_units, sold_units_last_7_days, sold_units_last_30_days,
	total_billing, billing_last_7_days, billing_last_30_days,
	stock, variations_amount, score, status, platform_country_id,
	provider_id, base_category_id, created_at, updated_at`

// GetByID implements product.Store.
func (s *Store) GetByID(ctx context.Context, id string) (*types.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	var p types.Product
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.ExternalID, &p.Name, &p.Description, &p.Price, &p.SalePrice, &p.SuggestedPrice,
		&p.TotalSoldUnits, &p.SoldUnitsLast7, &p.SoldUnitsLast30,
		&p.TotalBilling, &p.BillingLast7, &p.BillingLast30,
		&p.Stock, &p.VariationsAmount, &p.Score, &p.Status, &p.PlatformCountryID,
		&p.ProviderID, &p.BaseCategoryID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "reading product %q", id)
	}
	return &p, nil
}

// Insert implements product.Store. Product.id always equals the
// source sourceId (invariant I1), so this is a plain insert keyed on
// that id rather than an autoincrement.
func (s *Store) Insert(ctx context.Context, p *types.Product) error {
	const q = `INSERT INTO products (` + productColumns + `) VALUES (
		?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		p.ID, p.ExternalID, p.Name, p.Description, p.Price, p.SalePrice, p.SuggestedPrice,
		p.TotalSoldUnits, p.SoldUnitsLast7, p.SoldUnitsLast30,
		p.TotalBilling, p.BillingLast7, p.BillingLast30,
		p.Stock, p.VariationsAmount, p.Score, p.Status, p.PlatformCountryID,
		p.ProviderID, p.BaseCategoryID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return storeerr.WrapDBErrorf(err, "inserting product %q", p.ID)
	}
	return nil
}

// Update implements product.Store, preserving createdAt (the caller
// already copied it from the existing row).
func (s *Store) Update(ctx context.Context, p *types.Product) error {
	const q = `UPDATE products SET
		external_id = ?, name = ?, description = ?, price = ?, sale_price = ?, suggested_price = ?,
		total_sold_units = ?, sold_units_last_7_days = ?, sold_units_last_30_days = ?,
		total_billing = ?, billing_last_7_days = ?, billing_last_30_days = ?,
		stock = ?, variations_amount = ?, score = ?, status = ?, platform_country_id = ?,
		provider_id = ?, base_category_id = ?, updated_at = ?
		WHERE id = ?`
	_, err := s.db.ExecContext(ctx, q,
		p.ExternalID, p.Name, p.Description, p.Price, p.SalePrice, p.SuggestedPrice,
		p.TotalSoldUnits, p.SoldUnitsLast7, p.SoldUnitsLast30,
		p.TotalBilling, p.BillingLast7, p.BillingLast30,
		p.Stock, p.VariationsAmount, p.Score, p.Status, p.PlatformCountryID,
		p.ProviderID, p.BaseCategoryID, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return storeerr.WrapDBErrorf(err, "updating product %q", p.ID)
	}
	return nil
}
