package product

import (
	"context"
	"testing"
	"time"

	"github.com/dropkiller/catalog-migration/internal/reference"
	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

type fakeRefStore struct{}

func (fakeRefStore) CountryIDByCode(_ context.Context, code string) (string, error) {
	return "country-" + code, nil
}

func (fakeRefStore) PlatformCountryID(_ context.Context, platformID, countryID string) (string, error) {
	return "pc-" + platformID + "-" + countryID, nil
}

func (fakeRefStore) AllBaseCategories(_ context.Context) (map[string]string, error) {
	return map[string]string{"tecnologia": "cat-tech"}, nil
}

func (fakeRefStore) PlatformCategoryBaseID(_ context.Context, _, _ string) (string, error) {
	return "", storeerr.ErrNotFound
}

type fakeProductStore struct {
	byID map[string]*types.Product
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{byID: make(map[string]*types.Product)}
}

func (f *fakeProductStore) GetByID(_ context.Context, id string) (*types.Product, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, storeerr.ErrNotFound
}

func (f *fakeProductStore) Insert(_ context.Context, p *types.Product) error {
	if _, exists := f.byID[p.ID]; exists {
		return storeerr.ErrTargetWriteConflict
	}
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakeProductStore) Update(_ context.Context, p *types.Product) error {
	if _, exists := f.byID[p.ID]; !exists {
		return storeerr.ErrNotFound
	}
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func newUpserter(clock time.Time) (*Upserter, *fakeProductStore) {
	store := newFakeProductStore()
	resolver := reference.New(fakeRefStore{}, nil)
	u := New(store, resolver, func() time.Time { return clock })
	return u, store
}

func sampleSourceProduct() *types.SourceProduct {
	return &types.SourceProduct{
		SourceID:     "P1",
		ExternalID:   "X1",
		Name:         "Wireless Mouse",
		PlatformName: "dropi",
		CountryCode:  "CO",
		Visible:      true,
		Categories:   []types.ProductCategory{{Name: "tecnologia"}},
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestUpsertInsertsNewProduct(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	u, store := newUpserter(now)
	sp := sampleSourceProduct()

	result, err := u.Upsert(context.Background(), sp, "provider-1")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !result.Created || result.ProductID != "P1" {
		t.Fatalf("expected a newly created product with id P1, got %+v", result)
	}

	p := store.byID["P1"]
	if p.Status != types.StatusActive {
		t.Fatalf("expected ACTIVE status for a visible product, got %s", p.Status)
	}
	if p.CreatedAt != sp.CreatedAt {
		t.Fatalf("expected createdAt to come from the source, got %v", p.CreatedAt)
	}
	if p.BaseCategoryID != "cat-tech" {
		t.Fatalf("expected category resolution to cat-tech, got %s", p.BaseCategoryID)
	}
}

func TestUpsertDefaultsEmptyName(t *testing.T) {
	u, store := newUpserter(time.Now())
	sp := sampleSourceProduct()
	sp.Name = ""

	if _, err := u.Upsert(context.Background(), sp, "provider-1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if store.byID["P1"].Name != "Sin nombre" {
		t.Fatalf("expected default name, got %q", store.byID["P1"].Name)
	}
}

func TestUpsertPreservesCreatedAtOnUpdate(t *testing.T) {
	u, store := newUpserter(time.Now())
	sp := sampleSourceProduct()
	ctx := context.Background()

	if _, err := u.Upsert(ctx, sp, "provider-1"); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	originalCreatedAt := store.byID["P1"].CreatedAt

	sp.Stock = 42
	sp.Visible = false
	result, err := u.Upsert(ctx, sp, "provider-1")
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if result.Created {
		t.Fatalf("expected the second run to update, not insert")
	}

	p := store.byID["P1"]
	if p.CreatedAt != originalCreatedAt {
		t.Fatalf("expected createdAt to be preserved across updates, got %v want %v", p.CreatedAt, originalCreatedAt)
	}
	if p.Stock != 42 || p.Status != types.StatusInactive {
		t.Fatalf("expected mutable fields to update: %+v", p)
	}
}
