// Package source implements the source reader (spec component C1):
// enumerating legacy products either from the legacy store or from a
// pre-exported JSON snapshot, behind one read contract so the chunk
// scheduler's offset windows are well-defined regardless of backend.
package source

import (
	"context"

	"github.com/dropkiller/catalog-migration/internal/types"
)

// Reader is the uniform read contract both backends implement.
// Implementations must yield records in a deterministic order so that
// [skip, skip+take) windows are stable across workers and restarts.
type Reader interface {
	Count(ctx context.Context) (int, error)
	Read(ctx context.Context, skip, take int) ([]types.SourceProduct, error)
}
