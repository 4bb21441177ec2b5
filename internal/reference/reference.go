// Package reference implements the reference resolver (spec component
// C2): platform/country normalization, platform-country lookup, and
// base-category resolution with a closed universe and fuzzy fallback.
// All three caches are process-lifetime and read-through, matching the
// "referenced tables are treated as read-only for the duration of a
// run" policy in spec.md §5.
package reference

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
)

// Store is the narrow read-only contract this resolver needs from the
// target database. Implemented against database/sql in production.
type Store interface {
	CountryIDByCode(ctx context.Context, code string) (string, error)
	PlatformCountryID(ctx context.Context, platformID, countryID string) (string, error)
	AllBaseCategories(ctx context.Context) (map[string]string, error) // name (as stored) -> id
	PlatformCategoryBaseID(ctx context.Context, platformID, name string) (string, error)
}

// platformTokens is the closed enum of platform names this system
// recognizes (spec.md §4.4). Unknown platform names fall back to
// "dropi" with a warning rather than failing the record outright.
var platformTokens = map[string]bool{
	"dropi": true, "aliclick": true, "droplatam": true, "seventy block": true,
	"wimpy": true, "easydrop": true, "mastershop": true, "dropea": true,
}

const defaultPlatformToken = "dropi"

// countryAliases maps legacy country-code spellings to canonical ISO codes.
var countryAliases = map[string]string{
	"CO1": "CO",
}

// categorySynonyms is the fixed small table of hand-coded synonym
// mappings used at resolution strategy (5) before falling back to the
// "other" category.
var categorySynonyms = map[string]string{
	"bienestar y salud": "salud",
}

// fallbackBaseCategoryID is the hard-coded base category representing
// "other"; it is never created by this system, only referenced.
const fallbackBaseCategoryID = "base-category-other"

// Logger is the minimal logging contract used for the normalization
// warnings spec.md calls out ("unknown -> default to dropi with a
// warning").
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Resolver is C2. One Resolver is created per worker process; its
// caches are never invalidated because PlatformCountry, Country, and
// BaseCategory are treated as read-only for the run.
type Resolver struct {
	store Store
	log   Logger

	mu                sync.RWMutex
	countryIDByCode   map[string]string
	platformCountryID map[string]string // platformID|countryID -> id
	categories        map[string]string // normalized name -> id
	categoriesLoaded  bool
}

// New builds a Resolver over store. If log is nil, warnings are discarded.
func New(store Store, log Logger) *Resolver {
	if log == nil {
		log = noopLogger{}
	}
	return &Resolver{
		store:             store,
		log:               log,
		countryIDByCode:   make(map[string]string),
		platformCountryID: make(map[string]string),
		categories:        make(map[string]string),
	}
}

// normalizePlatform lowercases and maps to the closed token set,
// defaulting to "dropi" with a warning for anything unrecognized.
func (r *Resolver) normalizePlatform(platformName string) string {
	token := strings.ToLower(strings.TrimSpace(platformName))
	if platformTokens[token] {
		return token
	}
	r.log.Warn("unknown platform name, defaulting to dropi", "platformName", platformName)
	return defaultPlatformToken
}

func normalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if alias, ok := countryAliases[code]; ok {
		return alias
	}
	return code
}

// ResolvePlatformCountry maps (platformName, countryCode) to a target
// platform-country id. It never creates a platform-country; an absent
// one surfaces as ErrReferenceMissing.
func (r *Resolver) ResolvePlatformCountry(ctx context.Context, platformName, countryCode string) (string, error) {
	platformToken := r.normalizePlatform(platformName)
	country := normalizeCountry(countryCode)

	countryID, err := r.countryID(ctx, country)
	if err != nil {
		return "", err
	}

	// The platform token itself maps 1:1 to a platform id in the target
	// store's closed enum; this system treats the token as the id,
	// consistent with spec.md never creating platforms.
	platformID := platformToken

	key := platformID + "|" + countryID
	r.mu.RLock()
	if id, ok := r.platformCountryID[key]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	id, err := r.store.PlatformCountryID(ctx, platformID, countryID)
	if err != nil {
		if storeerr.IsNotFound(err) {
			return "", fmt.Errorf("platform-country (%s, %s): %w", platformID, country, storeerr.ErrReferenceMissing)
		}
		return "", fmt.Errorf("resolving platform-country (%s, %s): %w", platformID, country, err)
	}

	r.mu.Lock()
	r.platformCountryID[key] = id
	r.mu.Unlock()
	return id, nil
}

func (r *Resolver) countryID(ctx context.Context, code string) (string, error) {
	r.mu.RLock()
	if id, ok := r.countryIDByCode[code]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	id, err := r.store.CountryIDByCode(ctx, code)
	if err != nil {
		if storeerr.IsNotFound(err) {
			return "", fmt.Errorf("country %q: %w", code, storeerr.ErrReferenceMissing)
		}
		return "", fmt.Errorf("resolving country %q: %w", code, err)
	}

	r.mu.Lock()
	r.countryIDByCode[code] = id
	r.mu.Unlock()
	return id, nil
}

func (r *Resolver) ensureCategoriesLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.categoriesLoaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	all, err := r.store.AllBaseCategories(ctx)
	if err != nil {
		return fmt.Errorf("loading base categories: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.categoriesLoaded {
		return nil
	}
	for name, id := range all {
		r.categories[strings.ToLower(strings.TrimSpace(name))] = id
	}
	r.categoriesLoaded = true
	return nil
}

// ResolveBaseCategoryByName implements the six-strategy resolution
// chain from spec.md §4.4, returning fallbackBaseCategoryID if nothing
// matches. It never creates a new base category and never errors on a
// miss — the fallback guarantees a valid id.
func (r *Resolver) ResolveBaseCategoryByName(ctx context.Context, name, platform string) (string, error) {
	if err := r.ensureCategoriesLoaded(ctx); err != nil {
		return "", err
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fallbackBaseCategoryID, nil
	}
	normalized := strings.ToLower(trimmed)

	r.mu.RLock()
	// (1) match of the trimmed name as given, (2) match of its lowercased
	// form. Cache keys are stored lowercased, so (1) only hits names that
	// are already lower case.
	if id, ok := r.categories[trimmed]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	if id, ok := r.categories[normalized]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	// (3) platform-category override table.
	if platform != "" {
		platformToken := r.normalizePlatform(platform)
		if id, err := r.store.PlatformCategoryBaseID(ctx, platformToken, trimmed); err == nil {
			return id, nil
		} else if !storeerr.IsNotFound(err) {
			return "", fmt.Errorf("resolving platform category %q: %w", trimmed, err)
		}
	}

	// (4) substring containment either way against cached names.
	r.mu.RLock()
	for cachedName, id := range r.categories {
		if strings.Contains(cachedName, normalized) || strings.Contains(normalized, cachedName) {
			r.mu.RUnlock()
			return id, nil
		}
	}
	r.mu.RUnlock()

	// (5) fixed synonym table.
	if synonym, ok := categorySynonyms[normalized]; ok {
		r.mu.RLock()
		id, ok := r.categories[synonym]
		r.mu.RUnlock()
		if ok {
			return id, nil
		}
	}

	// (6) fallback "other".
	return fallbackBaseCategoryID, nil
}

// ResolveValidBaseCategoryID implements spec.md §4.4's three-way
// precedence: an existing id found in cache wins, else a name is
// resolved, else the fallback.
func (r *Resolver) ResolveValidBaseCategoryID(ctx context.Context, existingID, name, platform string) (string, error) {
	if existingID != "" {
		if err := r.ensureCategoriesLoaded(ctx); err != nil {
			return "", err
		}
		r.mu.RLock()
		for _, id := range r.categories {
			if id == existingID {
				r.mu.RUnlock()
				return existingID, nil
			}
		}
		r.mu.RUnlock()
	}
	if name != "" {
		return r.ResolveBaseCategoryByName(ctx, name, platform)
	}
	return fallbackBaseCategoryID, nil
}

// FallbackBaseCategoryID exposes the hard-coded "other" id for callers
// (e.g. tests) that need to assert against it directly (P6).
func FallbackBaseCategoryID() string { return fallbackBaseCategoryID }
