package source

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/dropkiller/catalog-migration/internal/multimedia"
	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

// excludedPlatform is filtered out of every store-backed read (spec.md §4.3).
const excludedPlatform = "rocketfy"

// StoreReader implements Reader against the legacy relational store.
type StoreReader struct {
	db *sql.DB
}

// NewStoreReader wraps an already-open legacy database connection.
// Connection-pool sizing and timeouts are configured by the caller at
// connect time (spec.md §1, "out of scope").
func NewStoreReader(db *sql.DB) *StoreReader {
	return &StoreReader{db: db}
}

// Count implements Reader.
func (r *StoreReader) Count(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM products WHERE platform_name <> ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, excludedPlatform).Scan(&n); err != nil {
		return 0, storeerr.WrapDBError("counting legacy products", err)
	}
	return n, nil
}

// Read implements Reader, ordering by (created_at asc, source_id asc)
// for stable pagination across chunk boundaries and worker restarts.
func (r *StoreReader) Read(ctx context.Context, skip, take int) ([]types.SourceProduct, error) {
	const q = `
		SELECT source_id, external_id, name, description, platform_name, country_code,
		       price, sale_price, suggested_price, total_sold_units, sold_units_last_7_days,
		       sold_units_last_30_days, total_billing, billing_last_7_days, billing_last_30_days,
		       stock, variations_amount, score, visible, categories_json, provider_json,
		       gallery_json, created_at, updated_at
		FROM products
		WHERE platform_name <> ?
		ORDER BY created_at ASC, source_id ASC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, q, excludedPlatform, take, skip)
	if err != nil {
		return nil, storeerr.WrapDBError("reading legacy products", err)
	}
	defer rows.Close()

	var out []types.SourceProduct
	for rows.Next() {
		var sp types.SourceProduct
		var categoriesJSON, providerJSON, galleryJSON sql.NullString
		if err := rows.Scan(
			&sp.SourceID, &sp.ExternalID, &sp.Name, &sp.Description, &sp.PlatformName, &sp.CountryCode,
			&sp.Price, &sp.SalePrice, &sp.SuggestedPrice, &sp.TotalSoldUnits, &sp.SoldUnitsLast7,
			&sp.SoldUnitsLast30, &sp.TotalBilling, &sp.BillingLast7, &sp.BillingLast30,
			&sp.Stock, &sp.VariationsAmount, &sp.Score, &sp.Visible, &categoriesJSON, &providerJSON,
			&galleryJSON, &sp.CreatedAt, &sp.UpdatedAt,
		); err != nil {
			return nil, storeerr.WrapDBError("scanning legacy product row", err)
		}

		if categoriesJSON.Valid && categoriesJSON.String != "" {
			_ = json.Unmarshal([]byte(categoriesJSON.String), &sp.Categories)
		}
		if providerJSON.Valid && providerJSON.String != "" {
			var p types.ProductProvider
			if json.Unmarshal([]byte(providerJSON.String), &p) == nil {
				sp.Provider = &p
			}
		}
		if galleryJSON.Valid && galleryJSON.String != "" {
			sp.Gallery = multimedia.ParseGallery(galleryJSON.String)
		}

		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, storeerr.WrapDBError("iterating legacy products", err)
	}
	return out, nil
}
