// Package history implements the history gap filler (spec component
// C5): compute the dates present in source but absent in target for a
// product, and bulk-insert those rows in bounded sub-batches, without
// re-emitting dates already present (invariant I3).
package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/dropkiller/catalog-migration/internal/types"
)

// maxDatesPerInvocation bounds the IN-list size per call (spec.md §4.7
// step 4 / Q2: a product with more than this many missing dates is not
// fully converged in a single run).
const maxDatesPerInvocation = 1000

// insertBatchSize is the sub-batch size for bulk inserts.
const insertBatchSize = 50

// Store is the narrow contract this gap filler needs from the target
// and legacy stores.
type Store interface {
	ExistingHistoryDates(ctx context.Context, productID string) (map[string]bool, error)
	SourceHistoryDates(ctx context.Context, externalProductID, platformName, countryCode string) (map[string]bool, error)
	SourceHistoryRowsForDates(ctx context.Context, externalProductID, platformName, countryCode string, dates []string) ([]types.SourceHistory, error)
	InsertHistoryBatch(ctx context.Context, rows []types.History) error
	InsertHistoryRow(ctx context.Context, row types.History) error
}

// CurrentAggregates carries the product's current window aggregates,
// applied only to the most recent synthesized history row (spec.md
// §4.7 step 5, "last-row enrichment").
type CurrentAggregates struct {
	SoldUnitsLast7  int64
	SoldUnitsLast30 int64
	TotalSoldUnits  int64
	BillingLast7    float64
	BillingLast30   float64
	TotalBilling    float64
	SuggestedPrice  float64
}

// IDGenerator produces a fresh history row identifier.
type IDGenerator func() string

// GapFiller is C5.
type GapFiller struct {
	store Store
	newID IDGenerator
}

// New builds a GapFiller.
func New(store Store, newID IDGenerator) *GapFiller {
	return &GapFiller{store: store, newID: newID}
}

// Fill computes the missing-date set for productID and inserts the
// corresponding rows, returning the count successfully inserted.
func (g *GapFiller) Fill(ctx context.Context, productID, externalProductID, platformName, countryCode string, current CurrentAggregates) (int, error) {
	existing, err := g.store.ExistingHistoryDates(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("reading existing history dates for product %s: %w", productID, err)
	}

	sourceDates, err := g.store.SourceHistoryDates(ctx, externalProductID, platformName, countryCode)
	if err != nil {
		return 0, fmt.Errorf("reading source history dates for %s: %w", externalProductID, err)
	}

	missing := make([]string, 0, len(sourceDates))
	for date := range sourceDates {
		if !existing[date] {
			missing = append(missing, date)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	sort.Strings(missing)
	if len(missing) > maxDatesPerInvocation {
		missing = missing[:maxDatesPerInvocation]
	}

	sourceRows, err := g.store.SourceHistoryRowsForDates(ctx, externalProductID, platformName, countryCode, missing)
	if err != nil {
		return 0, fmt.Errorf("reading source history rows for %s: %w", externalProductID, err)
	}

	sort.Slice(sourceRows, func(i, j int) bool { return sourceRows[i].Date < sourceRows[j].Date })

	rows := make([]types.History, len(sourceRows))
	for i, sh := range sourceRows {
		row := types.History{
			ID:        g.newID(),
			Date:      sh.Date,
			ProductID: productID,
			Stock:     sh.Stock,
			SalePrice: sh.SalePrice,
			SoldUnits: sh.SoldUnits,
		}
		if i == len(sourceRows)-1 {
			row.SoldUnitsLast7 = current.SoldUnitsLast7
			row.SoldUnitsLast30 = current.SoldUnitsLast30
			row.TotalSoldUnits = current.TotalSoldUnits
			row.BillingLast7 = current.BillingLast7
			row.BillingLast30 = current.BillingLast30
			row.TotalBilling = current.TotalBilling
			row.SuggestedPrice = current.SuggestedPrice
		}
		rows[i] = row
	}

	return g.insertInBatches(ctx, rows)
}

// insertInBatches inserts rows in sub-batches of insertBatchSize,
// falling back to row-by-row inserts on a batch failure so a single
// bad row doesn't sacrifice the rest of the batch (spec.md §4.7 step 6).
func (g *GapFiller) insertInBatches(ctx context.Context, rows []types.History) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		if err := g.store.InsertHistoryBatch(ctx, batch); err == nil {
			inserted += len(batch)
			continue
		}

		for _, row := range batch {
			if err := g.store.InsertHistoryRow(ctx, row); err == nil {
				inserted++
			}
		}
	}
	return inserted, nil
}
