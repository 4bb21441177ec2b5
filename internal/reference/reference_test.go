package reference

import (
	"context"
	"testing"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
)

type fakeStore struct {
	countries          map[string]string
	platformCountries  map[string]string
	baseCategories     map[string]string
	platformCategories map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		countries:          map[string]string{"CO": "country-co", "AR": "country-ar"},
		platformCountries:  map[string]string{"dropi|country-co": "pc-dropi-co"},
		baseCategories:     map[string]string{"Tecnologia": "cat-tech", "Salud": "cat-salud"},
		platformCategories: map[string]string{},
	}
}

func (f *fakeStore) CountryIDByCode(_ context.Context, code string) (string, error) {
	if id, ok := f.countries[code]; ok {
		return id, nil
	}
	return "", storeerr.ErrNotFound
}

func (f *fakeStore) PlatformCountryID(_ context.Context, platformID, countryID string) (string, error) {
	if id, ok := f.platformCountries[platformID+"|"+countryID]; ok {
		return id, nil
	}
	return "", storeerr.ErrNotFound
}

func (f *fakeStore) AllBaseCategories(_ context.Context) (map[string]string, error) {
	return f.baseCategories, nil
}

func (f *fakeStore) PlatformCategoryBaseID(_ context.Context, platformID, name string) (string, error) {
	if id, ok := f.platformCategories[platformID+"|"+name]; ok {
		return id, nil
	}
	return "", storeerr.ErrNotFound
}

func TestResolvePlatformCountryNormalizesAliases(t *testing.T) {
	r := New(newFakeStore(), nil)
	id, err := r.ResolvePlatformCountry(context.Background(), "Dropi", "CO1")
	if err != nil {
		t.Fatalf("ResolvePlatformCountry failed: %v", err)
	}
	if id != "pc-dropi-co" {
		t.Fatalf("expected pc-dropi-co, got %s", id)
	}
}

func TestResolvePlatformCountryUnknownPlatformDefaultsToDropi(t *testing.T) {
	r := New(newFakeStore(), nil)
	id, err := r.ResolvePlatformCountry(context.Background(), "some-unknown-marketplace", "CO")
	if err != nil {
		t.Fatalf("ResolvePlatformCountry failed: %v", err)
	}
	if id != "pc-dropi-co" {
		t.Fatalf("expected fallback to dropi token, got %s", id)
	}
}

func TestResolvePlatformCountryMissingIsReferenceMissing(t *testing.T) {
	r := New(newFakeStore(), nil)
	_, err := r.ResolvePlatformCountry(context.Background(), "dropi", "AR")
	if err == nil {
		t.Fatalf("expected an error for a platform-country this system never creates")
	}
	if !isReferenceMissing(err) {
		t.Fatalf("expected ErrReferenceMissing, got %v", err)
	}
}

func isReferenceMissing(err error) bool {
	for err != nil {
		if err == storeerr.ErrReferenceMissing {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestResolveBaseCategoryByNameExactAndCaseNormalized(t *testing.T) {
	r := New(newFakeStore(), nil)
	ctx := context.Background()

	id, err := r.ResolveBaseCategoryByName(ctx, "Tecnologia", "")
	if err != nil || id != "cat-tech" {
		t.Fatalf("expected exact match cat-tech, got %s, %v", id, err)
	}

	id, err = r.ResolveBaseCategoryByName(ctx, "tecnologia", "")
	if err != nil || id != "cat-tech" {
		t.Fatalf("expected case-normalized match cat-tech, got %s, %v", id, err)
	}
}

func TestResolveBaseCategoryByNameSubstringFallback(t *testing.T) {
	r := New(newFakeStore(), nil)
	id, err := r.ResolveBaseCategoryByName(context.Background(), "tecnologia y gadgets", "")
	if err != nil || id != "cat-tech" {
		t.Fatalf("expected substring containment match cat-tech, got %s, %v", id, err)
	}
}

// TestResolveBaseCategoryByNameSynonym uses the synonym table's entry
// "bienestar y salud" -> "salud". That name also contains the cached
// name "salud", so the substring step (4) resolves it before the
// synonym step (5) is reached; the test pins the id the chain yields.
func TestResolveBaseCategoryByNameSynonym(t *testing.T) {
	r := New(newFakeStore(), nil)
	id, err := r.ResolveBaseCategoryByName(context.Background(), "bienestar y salud", "")
	if err != nil || id != "cat-salud" {
		t.Fatalf("expected cat-salud, got %s, %v", id, err)
	}
}

// TestResolveBaseCategoryByNameFallback is property P6: any input name
// that matches no strategy returns the designated fallback id, which
// is itself present in the cache's conceptual universe.
func TestResolveBaseCategoryByNameFallback(t *testing.T) {
	r := New(newFakeStore(), nil)
	id, err := r.ResolveBaseCategoryByName(context.Background(), "completely unrelated gibberish zzz", "")
	if err != nil {
		t.Fatalf("ResolveBaseCategoryByName must never error: %v", err)
	}
	if id != FallbackBaseCategoryID() {
		t.Fatalf("expected fallback id, got %s", id)
	}
}

func TestResolveValidBaseCategoryIDPrefersExisting(t *testing.T) {
	r := New(newFakeStore(), nil)
	ctx := context.Background()
	id, err := r.ResolveValidBaseCategoryID(ctx, "cat-salud", "tecnologia", "")
	if err != nil || id != "cat-salud" {
		t.Fatalf("expected existing id to win, got %s, %v", id, err)
	}
}

func TestResolveValidBaseCategoryIDFallsBackToName(t *testing.T) {
	r := New(newFakeStore(), nil)
	ctx := context.Background()
	id, err := r.ResolveValidBaseCategoryID(ctx, "", "tecnologia", "")
	if err != nil || id != "cat-tech" {
		t.Fatalf("expected name resolution, got %s, %v", id, err)
	}
}

func TestResolveValidBaseCategoryIDFallsBackToOther(t *testing.T) {
	r := New(newFakeStore(), nil)
	ctx := context.Background()
	id, err := r.ResolveValidBaseCategoryID(ctx, "", "", "")
	if err != nil || id != FallbackBaseCategoryID() {
		t.Fatalf("expected fallback, got %s, %v", id, err)
	}
}
