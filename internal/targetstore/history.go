package targetstore

import (
	"context"
	"strings"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

// ExistingHistoryDates implements history.Store against the target database.
func (s *Store) ExistingHistoryDates(ctx context.Context, productID string) (map[string]bool, error) {
	const q = `SELECT date FROM histories WHERE product_id = ?`
	rows, err := s.db.QueryContext(ctx, q, productID)
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "reading existing history dates for product %q", productID)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, storeerr.WrapDBError("scanning history date", err)
		}
		out[date] = true
	}
	return out, rows.Err()
}

// SourceHistoryDates implements history.Store against the legacy database.
func (s *Store) SourceHistoryDates(ctx context.Context, externalProductID, platformName, countryCode string) (map[string]bool, error) {
	const q = `SELECT date FROM product_history WHERE external_product_id = ? AND platform_name = ? AND country_code = ?`
	rows, err := s.legacy.QueryContext(ctx, q, externalProductID, platformName, countryCode)
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "reading legacy history dates for %q", externalProductID)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, storeerr.WrapDBError("scanning legacy history date", err)
		}
		out[date] = true
	}
	return out, rows.Err()
}

// SourceHistoryRowsForDates implements history.Store against the
// legacy database, restricted to the given date set.
func (s *Store) SourceHistoryRowsForDates(ctx context.Context, externalProductID, platformName, countryCode string, dates []string) ([]types.SourceHistory, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(dates)), ",")
	q := `SELECT external_product_id, platform_name, country_code, date, stock, sale_price, sold_units,
		sales_amount, stock_adjustment, stock_adjustment_reason
		FROM product_history
		WHERE external_product_id = ? AND platform_name = ? AND country_code = ? AND date IN (` + placeholders + `)`

	args := make([]any, 0, 3+len(dates))
	args = append(args, externalProductID, platformName, countryCode)
	for _, d := range dates {
		args = append(args, d)
	}

	rows, err := s.legacy.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "reading legacy history rows for %q", externalProductID)
	}
	defer rows.Close()

	var out []types.SourceHistory
	for rows.Next() {
		var h types.SourceHistory
		if err := rows.Scan(
			&h.ExternalProductID, &h.PlatformName, &h.CountryCode, &h.Date,
			&h.Stock, &h.SalePrice, &h.SoldUnits, &h.SalesAmount,
			&h.StockAdjustment, &h.StockAdjustmentReason,
		); err != nil {
			return nil, storeerr.WrapDBError("scanning legacy history row", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// InsertHistoryBatch implements history.Store with a single
// multi-row insert against the target database.
func (s *Store) InsertHistoryBatch(ctx context.Context, rows []types.History) error {
	if len(rows) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO histories (id, date, product_id, stock, sale_price, sold_units,
		sold_units_last_7_days, sold_units_last_30_days, total_sold_units,
		billing_last_7_days, billing_last_30_days, total_billing, suggested_price) VALUES `)

	args := make([]any, 0, len(rows)*13)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, row.ID, row.Date, row.ProductID, row.Stock, row.SalePrice, row.SoldUnits,
			row.SoldUnitsLast7, row.SoldUnitsLast30, row.TotalSoldUnits,
			row.BillingLast7, row.BillingLast30, row.TotalBilling, row.SuggestedPrice)
	}

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return storeerr.WrapDBError("inserting history batch", err)
	}
	return nil
}

// InsertHistoryRow implements history.Store's row-by-row fallback.
func (s *Store) InsertHistoryRow(ctx context.Context, row types.History) error {
	return s.InsertHistoryBatch(ctx, []types.History{row})
}
