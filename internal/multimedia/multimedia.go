// Package multimedia implements the multimedia reconciler (spec
// component C6): parse a product's gallery blob, normalize URLs
// against a per-country CDN host table, classify media type, and
// reconcile against existing rows by updating in order then appending
// the remainder (spec.md §9 Q5: update-then-append variant).
package multimedia

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dropkiller/catalog-migration/internal/types"
)

// cdnHosts is the fixed per-country CDN host table (spec.md §6). AR
// and GT have dedicated hosts; every other country uses defaultHost.
var cdnHosts = map[string]string{
	"AR": "cdn-ar.dropikiller.com",
	"GT": "cdn-gt.dropikiller.com",
}

const defaultHost = "cdn.dropikiller.com"

var videoSuffixes = []string{".mp4", ".mov", ".avi", ".webm"}
var imageSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// insertBatchSize bounds new-row insert batches (spec.md §4.8 step 5).
const insertBatchSize = 20

// Store is the narrow contract this reconciler needs from the target database.
type Store interface {
	ExistingMultimedia(ctx context.Context, productID string) ([]types.Multimedia, error)
	UpdateOriginalURL(ctx context.Context, id, originalURL string, updatedAt time.Time) error
	InsertBatch(ctx context.Context, rows []types.Multimedia) error
	InsertRow(ctx context.Context, row types.Multimedia) error
}

// IDGenerator produces a fresh multimedia row identifier.
type IDGenerator func() string

// Reconciler is C6.
type Reconciler struct {
	store Store
	newID IDGenerator
	now   func() time.Time
}

// New builds a Reconciler.
func New(store Store, newID IDGenerator, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: store, newID: newID, now: now}
}

// validEntry is a gallery entry that survived parsing and had a usable URL.
type validEntry struct {
	url  string
	kind types.MultimediaType
}

// ParseGallery accepts either a JSON-encoded gallery string or an
// already-decoded slice and keeps only entries with at least one usable
// URL field (spec.md §4.8 step 1). Unparseable input is treated as an
// empty gallery rather than an error (spec.md §7, SourceDataMalformed).
func ParseGallery(raw interface{}) []types.GalleryEntry {
	var entries []types.GalleryEntry
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(v), &entries); err != nil {
			return nil
		}
	case []types.GalleryEntry:
		entries = v
	default:
		return nil
	}

	kept := entries[:0]
	for _, e := range entries {
		if pickURL(e) != "" {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func pickURL(entry types.GalleryEntry) string {
	switch {
	case entry.URL != "":
		return entry.URL
	case entry.OwnImage != "":
		return entry.OwnImage
	case entry.SourceURL != "":
		return entry.SourceURL
	case entry.OriginalURL != "":
		return entry.OriginalURL
	default:
		return ""
	}
}

// NormalizeURL implements the CDN-prefix normalization of spec.md §4.8
// step 2. It is idempotent: normalizing an already-normalized URL
// returns it unchanged (property P5).
func NormalizeURL(raw, countryCode string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	host, ok := cdnHosts[strings.ToUpper(countryCode)]
	if !ok {
		host = defaultHost
	}
	trimmed := strings.TrimPrefix(raw, "/")
	return fmt.Sprintf("https://%s/%s", host, trimmed)
}

func classifyType(url, explicit string) types.MultimediaType {
	lower := strings.ToLower(url)
	for _, suf := range videoSuffixes {
		if strings.HasSuffix(lower, suf) {
			return types.MediaVideo
		}
	}
	for _, suf := range imageSuffixes {
		if strings.HasSuffix(lower, suf) {
			return types.MediaImage
		}
	}
	if types.MultimediaType(explicit) == types.MediaVideo {
		return types.MediaVideo
	}
	return types.MediaImage
}

func buildValidEntries(gallery []types.GalleryEntry, countryCode string) []validEntry {
	out := make([]validEntry, 0, len(gallery))
	for _, entry := range gallery {
		raw := pickURL(entry)
		if raw == "" {
			continue
		}
		normalized := NormalizeURL(raw, countryCode)
		out = append(out, validEntry{url: normalized, kind: classifyType(normalized, entry.Type)})
	}
	return out
}

// Reconcile applies the update-then-append strategy: the first
// min(len(existing), len(valid)) pairs are updated in place, and any
// excess valid entries are appended as new rows.
func (r *Reconciler) Reconcile(ctx context.Context, productID string, gallery []types.GalleryEntry, countryCode string) (int, error) {
	valid := buildValidEntries(gallery, countryCode)
	if len(valid) == 0 {
		return 0, nil
	}

	existing, err := r.store.ExistingMultimedia(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("reading existing multimedia for product %s: %w", productID, err)
	}

	total := 0
	pairs := len(existing)
	if len(valid) < pairs {
		pairs = len(valid)
	}

	now := r.now()
	for i := 0; i < pairs; i++ {
		if err := r.store.UpdateOriginalURL(ctx, existing[i].ID, valid[i].url, now); err == nil {
			total++
		}
	}

	if len(valid) > len(existing) {
		remainder := valid[len(existing):]
		rows := make([]types.Multimedia, len(remainder))
		for i, v := range remainder {
			rows[i] = types.Multimedia{
				ID:          r.newID(),
				ProductID:   productID,
				URL:         v.url,
				OriginalURL: v.url,
				Type:        v.kind,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		inserted, err := r.insertInBatches(ctx, rows)
		if err != nil {
			return total, err
		}
		total += inserted
	}

	return total, nil
}

func (r *Reconciler) insertInBatches(ctx context.Context, rows []types.Multimedia) (int, error) {
	inserted := 0
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		if err := r.store.InsertBatch(ctx, batch); err == nil {
			inserted += len(batch)
			continue
		}

		for _, row := range batch {
			if err := r.store.InsertRow(ctx, row); err == nil {
				inserted++
			}
		}
	}
	return inserted, nil
}
