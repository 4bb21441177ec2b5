// Package provider implements the provider reconciler (spec component
// C3): given a source product's embedded provider blob, always returns
// a valid target provider id, collapsing natural-key collisions and
// missing/invalid data into a deterministic fallback.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropkiller/catalog-migration/internal/reference"
	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

// Store is the narrow read/write contract this reconciler needs from
// the target database.
type Store interface {
	// FindByNameAndExternalID looks up a provider by case-insensitive
	// name and exact external id.
	FindByNameAndExternalID(ctx context.Context, name, externalID string) (*types.Provider, error)
	// FindByExternalIDAndPlatformCountry looks up a provider by its
	// unique natural key.
	FindByExternalIDAndPlatformCountry(ctx context.Context, externalID, platformCountryID string) (*types.Provider, error)
	// UpdateVerifiedOnly updates only verified and updatedAt.
	UpdateVerifiedOnly(ctx context.Context, id string, verified bool, updatedAt time.Time) error
	// UpdateExternalIDAndVerified updates externalId, verified, and updatedAt.
	UpdateExternalIDAndVerified(ctx context.Context, id, externalID string, verified bool, updatedAt time.Time) error
	// UpdateNameAndVerified updates name, verified, and updatedAt.
	UpdateNameAndVerified(ctx context.Context, id, name string, verified bool, updatedAt time.Time) error
	// Create inserts a brand-new provider row.
	Create(ctx context.Context, p *types.Provider) error
	// Get reads back a provider by id, to verify insertion.
	Get(ctx context.Context, id string) (*types.Provider, error)
}

// IDGenerator produces a fresh provider identifier. Abstracted so
// tests can supply deterministic ids.
type IDGenerator func() string

// UUIDGenerator is the production IDGenerator.
func UUIDGenerator() string { return uuid.NewString() }

const fallbackProviderName = "null"

// Reconciler is C3.
type Reconciler struct {
	store    Store
	resolver *reference.Resolver
	newID    IDGenerator
	now      func() time.Time
}

// New builds a Reconciler. newID and now default to production
// implementations when nil/zero.
func New(store Store, resolver *reference.Resolver, newID IDGenerator, now func() time.Time) *Reconciler {
	if newID == nil {
		newID = UUIDGenerator
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: store, resolver: resolver, newID: newID, now: now}
}

// Reconcile returns a stable target providerId for sp, always a valid
// id — it never returns an empty string alongside a nil error.
func (r *Reconciler) Reconcile(ctx context.Context, sp *types.SourceProduct) (string, bool, error) {
	if sp.Provider == nil || sp.Provider.ExternalID == "" {
		return r.createFallbackProvider(ctx, sp)
	}

	providerName := sp.Provider.Name
	if providerName == "" {
		providerName = fallbackProviderName
	}
	providerExternalID := sp.Provider.ExternalID
	verified := sp.Provider.Verified

	platformCountryID, err := r.resolver.ResolvePlatformCountry(ctx, sp.PlatformName, sp.CountryCode)
	if err != nil {
		return r.createFallbackProvider(ctx, sp)
	}

	existing, err := r.store.FindByNameAndExternalID(ctx, providerName, providerExternalID)
	if err != nil && !storeerr.IsNotFound(err) {
		return "", false, fmt.Errorf("looking up provider by name+externalId: %w", err)
	}
	if existing != nil {
		collision, err := r.store.FindByExternalIDAndPlatformCountry(ctx, providerExternalID, platformCountryID)
		if err != nil && !storeerr.IsNotFound(err) {
			return "", false, fmt.Errorf("checking provider collision: %w", err)
		}
		now := r.now()
		if collision != nil && collision.ID != existing.ID {
			if err := r.store.UpdateVerifiedOnly(ctx, existing.ID, verified, now); err != nil {
				return "", false, fmt.Errorf("updating provider verified flag: %w", err)
			}
		} else {
			if err := r.store.UpdateExternalIDAndVerified(ctx, existing.ID, providerExternalID, verified, now); err != nil {
				return "", false, fmt.Errorf("updating provider externalId: %w", err)
			}
		}
		return existing.ID, false, nil
	}

	byNatural, err := r.store.FindByExternalIDAndPlatformCountry(ctx, providerExternalID, platformCountryID)
	if err != nil && !storeerr.IsNotFound(err) {
		return "", false, fmt.Errorf("looking up provider by natural key: %w", err)
	}
	if byNatural != nil {
		if err := r.store.UpdateNameAndVerified(ctx, byNatural.ID, providerName, verified, r.now()); err != nil {
			return "", false, fmt.Errorf("updating provider name: %w", err)
		}
		return byNatural.ID, false, nil
	}

	newProvider := &types.Provider{
		ID:                r.newID(),
		Name:              providerName,
		ExternalID:        providerExternalID,
		Verified:          verified,
		PlatformCountryID: platformCountryID,
		CreatedAt:         r.now(),
		UpdatedAt:         r.now(),
	}
	if err := r.store.Create(ctx, newProvider); err != nil {
		return "", false, fmt.Errorf("creating provider: %w", err)
	}
	if _, err := r.store.Get(ctx, newProvider.ID); err != nil {
		return "", false, fmt.Errorf("verifying provider insertion: %w", err)
	}
	return newProvider.ID, true, nil
}

// createFallbackProvider resolves platformCountryId (fail-fast if
// impossible) and returns an existing (externalId, platformCountryId)
// match, or creates a new synthetic provider named "null".
func (r *Reconciler) createFallbackProvider(ctx context.Context, sp *types.SourceProduct) (string, bool, error) {
	platformCountryID, err := r.resolver.ResolvePlatformCountry(ctx, sp.PlatformName, sp.CountryCode)
	if err != nil {
		return "", false, fmt.Errorf("resolving platform-country for fallback provider: %w", err)
	}

	existing, err := r.store.FindByExternalIDAndPlatformCountry(ctx, sp.ExternalID, platformCountryID)
	if err != nil && !storeerr.IsNotFound(err) {
		return "", false, fmt.Errorf("looking up fallback provider: %w", err)
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	newProvider := &types.Provider{
		ID:                r.newID(),
		Name:              fallbackProviderName,
		ExternalID:        sp.ExternalID,
		Verified:          false,
		PlatformCountryID: platformCountryID,
		CreatedAt:         r.now(),
		UpdatedAt:         r.now(),
	}
	if err := r.store.Create(ctx, newProvider); err != nil {
		return "", false, fmt.Errorf("creating fallback provider: %w", err)
	}
	return newProvider.ID, true, nil
}

// normalizeForMatch is used by in-memory/test stores to implement
// ILIKE-style case-insensitive name matching.
func normalizeForMatch(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeForMatch exposes normalizeForMatch to other packages' test
// doubles that need the exact same case-folding the real store applies.
func NormalizeForMatch(s string) string { return normalizeForMatch(s) }
