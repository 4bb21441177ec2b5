package targetstore

import (
	"context"
	"strings"
	"time"

	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

// ExistingMultimedia implements multimedia.Store, ordered by created_at
// and then id so the update-then-append pairing is deterministic across
// runs.
func (s *Store) ExistingMultimedia(ctx context.Context, productID string) ([]types.Multimedia, error) {
	const q = `SELECT id, product_id, url, original_url, type, extracted, created_at, updated_at
		FROM multimedia WHERE product_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q, productID)
	if err != nil {
		return nil, storeerr.WrapDBErrorf(err, "reading existing multimedia for product %q", productID)
	}
	defer rows.Close()

	var out []types.Multimedia
	for rows.Next() {
		var m types.Multimedia
		if err := rows.Scan(&m.ID, &m.ProductID, &m.URL, &m.OriginalURL, &m.Type, &m.Extracted, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, storeerr.WrapDBError("scanning multimedia row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateOriginalURL implements multimedia.Store. Only originalUrl and
// updatedAt are touched on an existing row, per spec.md §4.8 step 5;
// the row's own url field is left as first recorded.
func (s *Store) UpdateOriginalURL(ctx context.Context, id, originalURL string, updatedAt time.Time) error {
	const q = `UPDATE multimedia SET original_url = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, originalURL, updatedAt, id); err != nil {
		return storeerr.WrapDBErrorf(err, "updating multimedia %q", id)
	}
	return nil
}

// InsertBatch implements multimedia.Store with a single multi-row insert.
func (s *Store) InsertBatch(ctx context.Context, rows []types.Multimedia) error {
	if len(rows) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO multimedia (id, product_id, url, original_url, type, extracted, created_at, updated_at) VALUES `)

	args := make([]any, 0, len(rows)*8)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, row.ID, row.ProductID, row.URL, row.OriginalURL, row.Type, row.Extracted, row.CreatedAt, row.UpdatedAt)
	}

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return storeerr.WrapDBError("inserting multimedia batch", err)
	}
	return nil
}

// InsertRow implements multimedia.Store's row-by-row fallback.
func (s *Store) InsertRow(ctx context.Context, row types.Multimedia) error {
	return s.InsertBatch(ctx, []types.Multimedia{row})
}
