// Package product implements the product upserter (spec component C4):
// insert-or-update a target product keyed by stable identity
// (invariant I1: target Product.id == source sourceId), preserving
// createdAt on update.
package product

import (
	"context"
	"fmt"
	"time"

	"github.com/dropkiller/catalog-migration/internal/reference"
	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

const defaultProductName = "Sin nombre"

// Store is the narrow contract this upserter needs from the target database.
type Store interface {
	GetByID(ctx context.Context, id string) (*types.Product, error)
	Insert(ctx context.Context, p *types.Product) error
	Update(ctx context.Context, p *types.Product) error
}

// Result reports whether Upsert inserted a new row.
type Result struct {
	ProductID string
	Created   bool
}

// Upserter is C4.
type Upserter struct {
	store    Store
	resolver *reference.Resolver
	now      func() time.Time
}

// New builds an Upserter. now defaults to time.Now when nil.
func New(store Store, resolver *reference.Resolver, now func() time.Time) *Upserter {
	if now == nil {
		now = time.Now
	}
	return &Upserter{store: store, resolver: resolver, now: now}
}

// Upsert resolves platformCountryId and baseCategoryId, then looks up
// the target product by id == sp.SourceID and inserts or updates it.
func (u *Upserter) Upsert(ctx context.Context, sp *types.SourceProduct, providerID string) (Result, error) {
	platformCountryID, err := u.resolver.ResolvePlatformCountry(ctx, sp.PlatformName, sp.CountryCode)
	if err != nil {
		return Result{}, fmt.Errorf("resolving platform-country for product %s: %w", sp.ExternalID, err)
	}

	existing, err := u.store.GetByID(ctx, sp.SourceID)
	if err != nil && !storeerr.IsNotFound(err) {
		return Result{}, fmt.Errorf("looking up product %s: %w", sp.SourceID, err)
	}

	var existingCategoryID string
	if existing != nil {
		existingCategoryID = existing.BaseCategoryID
	}
	var categoryName string
	if len(sp.Categories) > 0 {
		categoryName = sp.Categories[0].Name
	}
	baseCategoryID, err := u.resolver.ResolveValidBaseCategoryID(ctx, existingCategoryID, categoryName, sp.PlatformName)
	if err != nil {
		return Result{}, fmt.Errorf("resolving base category for product %s: %w", sp.ExternalID, err)
	}

	name := sp.Name
	if name == "" {
		name = defaultProductName
	}
	status := types.StatusInactive
	if sp.Visible {
		status = types.StatusActive
	}

	payload := &types.Product{
		ID:                sp.SourceID,
		ExternalID:        sp.ExternalID,
		Name:              name,
		Description:       sp.Description,
		Price:             sp.Price,
		SalePrice:         sp.SalePrice,
		SuggestedPrice:    sp.SuggestedPrice,
		TotalSoldUnits:    sp.TotalSoldUnits,
		SoldUnitsLast7:    sp.SoldUnitsLast7,
		SoldUnitsLast30:   sp.SoldUnitsLast30,
		TotalBilling:      sp.TotalBilling,
		BillingLast7:      sp.BillingLast7,
		BillingLast30:     sp.BillingLast30,
		Stock:             sp.Stock,
		VariationsAmount:  sp.VariationsAmount,
		Score:             sp.Score,
		Status:            status,
		PlatformCountryID: platformCountryID,
		ProviderID:        providerID,
		BaseCategoryID:    baseCategoryID,
		UpdatedAt:         u.now(),
	}

	if existing == nil {
		payload.CreatedAt = sp.CreatedAt
		if err := u.store.Insert(ctx, payload); err != nil {
			return Result{}, fmt.Errorf("inserting product %s: %w", sp.SourceID, err)
		}
		return Result{ProductID: payload.ID, Created: true}, nil
	}

	payload.CreatedAt = existing.CreatedAt
	if err := u.store.Update(ctx, payload); err != nil {
		return Result{}, fmt.Errorf("updating product %s: %w", sp.SourceID, err)
	}
	return Result{ProductID: payload.ID, Created: false}, nil
}
