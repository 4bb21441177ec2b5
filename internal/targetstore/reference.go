package targetstore

import (
	"context"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
)

// CountryIDByCode implements reference.Store.
func (s *Store) CountryIDByCode(ctx context.Context, code string) (string, error) {
	const q = `SELECT id FROM countries WHERE code = ?`
	var id string
	if err := s.db.QueryRowContext(ctx, q, code).Scan(&id); err != nil {
		return "", storeerr.WrapDBErrorf(err, "looking up country %q", code)
	}
	return id, nil
}

// PlatformCountryID implements reference.Store.
func (s *Store) PlatformCountryID(ctx context.Context, platformID, countryID string) (string, error) {
	const q = `SELECT id FROM platform_countries WHERE platform_id = ? AND country_id = ?`
	var id string
	if err := s.db.QueryRowContext(ctx, q, platformID, countryID).Scan(&id); err != nil {
		return "", storeerr.WrapDBErrorf(err, "looking up platform-country (%s, %s)", platformID, countryID)
	}
	return id, nil
}

// AllBaseCategories implements reference.Store, loading the full
// name-to-id table once per process (spec.md §5, "treated as
// read-only for the duration of a run").
func (s *Store) AllBaseCategories(ctx context.Context) (map[string]string, error) {
	const q = `SELECT id, name FROM base_categories`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, storeerr.WrapDBError("loading base categories", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, storeerr.WrapDBError("scanning base category row", err)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, storeerr.WrapDBError("iterating base categories", err)
	}
	return out, nil
}

// PlatformCategoryBaseID implements reference.Store.
func (s *Store) PlatformCategoryBaseID(ctx context.Context, platformID, name string) (string, error) {
	const q = `SELECT base_category_id FROM platform_category_overrides WHERE platform_id = ? AND name = ?`
	var id string
	if err := s.db.QueryRowContext(ctx, q, platformID, name).Scan(&id); err != nil {
		return "", storeerr.WrapDBErrorf(err, "looking up platform category override (%s, %s)", platformID, name)
	}
	return id, nil
}
