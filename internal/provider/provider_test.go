package provider

import (
	"context"
	"strings"
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
	return map[string]string{}, nil
}

func (fakeRefStore) PlatformCategoryBaseID(_ context.Context, _, _ string) (string, error) {
	return "", storeerr.ErrNotFound
}

type fakeProviderStore struct {
	byID map[string]*types.Provider
}

func newFakeProviderStore() *fakeProviderStore {
	return &fakeProviderStore{byID: make(map[string]*types.Provider)}
}

func (f *fakeProviderStore) FindByNameAndExternalID(_ context.Context, name, externalID string) (*types.Provider, error) {
	for _, p := range f.byID {
		if strings.EqualFold(p.Name, name) && p.ExternalID == externalID {
			return p, nil
		}
	}
	return nil, storeerr.ErrNotFound
}

func (f *fakeProviderStore) FindByExternalIDAndPlatformCountry(_ context.Context, externalID, platformCountryID string) (*types.Provider, error) {
	for _, p := range f.byID {
		if p.ExternalID == externalID && p.PlatformCountryID == platformCountryID {
			return p, nil
		}
	}
	return nil, storeerr.ErrNotFound
}

func (f *fakeProviderStore) UpdateVerifiedOnly(_ context.Context, id string, verified bool, updatedAt time.Time) error {
	p, ok := f.byID[id]
	if !ok {
		return storeerr.ErrNotFound
	}
	p.Verified = verified
	p.UpdatedAt = updatedAt
	return nil
}

func (f *fakeProviderStore) UpdateExternalIDAndVerified(_ context.Context, id, externalID string, verified bool, updatedAt time.Time) error {
	p, ok := f.byID[id]
	if !ok {
		return storeerr.ErrNotFound
	}
	p.ExternalID = externalID
	p.Verified = verified
	p.UpdatedAt = updatedAt
	return nil
}

func (f *fakeProviderStore) UpdateNameAndVerified(_ context.Context, id, name string, verified bool, updatedAt time.Time) error {
	p, ok := f.byID[id]
	if !ok {
		return storeerr.ErrNotFound
	}
	p.Name = name
	p.Verified = verified
	p.UpdatedAt = updatedAt
	return nil
}

func (f *fakeProviderStore) Create(_ context.Context, p *types.Provider) error {
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProviderStore) Get(_ context.Context, id string) (*types.Provider, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, storeerr.ErrNotFound
	}
	return p, nil
}

func newReconciler() (*Reconciler, *fakeProviderStore) {
	store := newFakeProviderStore()
	resolver := reference.New(fakeRefStore{}, nil)
	n := 0
	idgen := func() string {
		n++
		return "provider-" + string(rune('a'+n))
	}
	rec := New(store, resolver, idgen, func() time.Time { return time.Unix(0, 0) })
	return rec, store
}

func TestReconcileCreatesNewProvider(t *testing.T) {
	rec, store := newReconciler()
	sp := &types.SourceProduct{
		ExternalID:   "X1",
		PlatformName: "dropi",
		CountryCode:  "CO",
		Provider:     &types.ProductProvider{Name: "Acme", ExternalID: "AC1", Verified: true},
	}

	id, created, err := rec.Reconcile(context.Background(), sp)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !created {
		t.Fatalf("expected a new provider to be created")
	}
	if store.byID[id].Name != "Acme" || store.byID[id].ExternalID != "AC1" {
		t.Fatalf("unexpected provider record: %+v", store.byID[id])
	}
}

func TestReconcileFallbackOnMissingProvider(t *testing.T) {
	rec, store := newReconciler()
	sp := &types.SourceProduct{
		ExternalID:   "X2",
		PlatformName: "dropi",
		CountryCode:  "CO",
		Provider:     nil,
	}

	id, created, err := rec.Reconcile(context.Background(), sp)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !created {
		t.Fatalf("expected fallback provider to be created")
	}
	p := store.byID[id]
	if p.Name != "null" || p.ExternalID != "X2" {
		t.Fatalf("expected fallback provider named null with externalId=X2, got %+v", p)
	}

	// Re-running with the same input must not create a second fallback
	// provider (invariant I4/scenario 4).
	id2, created2, err := rec.Reconcile(context.Background(), sp)
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if created2 {
		t.Fatalf("expected second run to reuse the existing fallback provider")
	}
	if id2 != id {
		t.Fatalf("expected same provider id across runs, got %s and %s", id, id2)
	}
}

// TestReconcileNaturalKeyCollision is end-to-end scenario 3: two source
// products share provider.externalId under the same (platform,
// country) but differ in provider.name. Both must end up referencing
// the same Provider.id.
func TestReconcileNaturalKeyCollision(t *testing.T) {
	rec, _ := newReconciler()
	ctx := context.Background()

	spA := &types.SourceProduct{
		ExternalID: "XA", PlatformName: "dropi", CountryCode: "CO",
		Provider: &types.ProductProvider{Name: "Acme Inc", ExternalID: "AC1"},
	}
	idA, createdA, err := rec.Reconcile(ctx, spA)
	if err != nil || !createdA {
		t.Fatalf("expected first product to create the provider: %v", err)
	}

	spB := &types.SourceProduct{
		ExternalID: "XB", PlatformName: "dropi", CountryCode: "CO",
		Provider: &types.ProductProvider{Name: "Acme Incorporated", ExternalID: "AC1"},
	}
	idB, createdB, err := rec.Reconcile(ctx, spB)
	if err != nil {
		t.Fatalf("Reconcile for second product failed: %v", err)
	}
	if createdB {
		t.Fatalf("expected second product to reuse the existing provider, not create one")
	}
	if idA != idB {
		t.Fatalf("expected both products to reference the same provider, got %s and %s", idA, idB)
	}
}

func TestReconcileNeverReturnsEmptyID(t *testing.T) {
	rec, _ := newReconciler()
	sp := &types.SourceProduct{ExternalID: "X9", PlatformName: "dropi", CountryCode: "CO"}
	id, _, err := rec.Reconcile(context.Background(), sp)
	if err != nil {
		t.Fatalf("Reconcile must not error on missing provider data: %v", err)
	}
	if id == "" {
		t.Fatalf("Reconcile must always return a valid id")
	}
}
