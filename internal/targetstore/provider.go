package targetstore

import (
	"context"
	"time"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

const providerColumns = `id, name, external_id, verified, platform_country_id, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (*types.Provider, error) {
	var p types.Provider
	if err := row.Scan(&p.ID, &p.Name, &p.ExternalID, &p.Verified, &p.PlatformCountryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByNameAndExternalID implements provider.Store with a
// case-insensitive name match.
func (s *Store) FindByNameAndExternalID(ctx context.Context, name, externalID string) (*types.Provider, error) {
	q := `SELECT ` + providerColumns + ` FROM providers WHERE LOWER(name) = LOWER(?) AND external_id = ? LIMIT 1`
	p, err := scanProvider(s.db.QueryRowContext(ctx, q, name, externalID))
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "finding provider by name %q and externalId %q", name, externalID)
	}
	return p, nil
}

// FindByExternalIDAndPlatformCountry implements provider.Store.
func (s *Store) FindByExternalIDAndPlatformCountry(ctx context.Context, externalID, platformCountryID string) (*types.Provider, error) {
	q := `SELECT ` + providerColumns + ` FROM providers WHERE external_id = ? AND platform_country_id = ? LIMIT 1`
	p, err := scanProvider(s.db.QueryRowContext(ctx, q, externalID, platformCountryID))
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "finding provider by externalId %q and platformCountryId %q", externalID, platformCountryID)
	}
	return p, nil
}

// UpdateVerifiedOnly implements provider.Store.
func (s *Store) UpdateVerifiedOnly(ctx context.Context, id string, verified bool, updatedAt time.Time) error {
	const q = `UPDATE providers SET verified = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, verified, updatedAt, id); err != nil {
		return storeerr.WrapDBErrorf(err, "updating provider %q verified flag", id)
	}
	return nil
}

// UpdateExternalIDAndVerified implements provider.Store.
func (s *Store) UpdateExternalIDAndVerified(ctx context.Context, id, externalID string, verified bool, updatedAt time.Time) error {
	const q = `UPDATE providers SET external_id = ?, verified = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, externalID, verified, updatedAt, id); err != nil {
		return storeerr.WrapDBErrorf(err, "updating provider %q externalId", id)
	}
	return nil
}

// UpdateNameAndVerified implements provider.Store.
func (s *Store) UpdateNameAndVerified(ctx context.Context, id, name string, verified bool, updatedAt time.Time) error {
	const q = `UPDATE providers SET name = ?, verified = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, name, verified, updatedAt, id); err != nil {
		return storeerr.WrapDBErrorf(err, "updating provider %q name", id)
	}
	return nil
}

// Create implements provider.Store.
func (s *Store) Create(ctx context.Context, p *types.Provider) error {
	const q = `INSERT INTO providers (` + providerColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, p.ID, p.Name, p.ExternalID, p.Verified, p.PlatformCountryID, p.CreatedAt, p.UpdatedAt); err != nil {
		return storeerr.WrapDBErrorf(err, "creating provider %q", p.ID)
	}
	return nil
}

// Get implements provider.Store.
func (s *Store) Get(ctx context.Context, id string) (*types.Provider, error) {
	q := `SELECT ` + providerColumns + ` FROM providers WHERE id = ?`
	p, err := scanProvider(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "reading provider %q", id)
	}
	return p, nil
}
