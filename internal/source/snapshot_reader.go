package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dropkiller/catalog-migration/internal/multimedia"
	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

// snapshotProduct mirrors the legacy snake-case shape the snapshot file
// is exported in; SnapshotReader normalizes it to types.SourceProduct.
type snapshotProduct struct {
	SourceID         string                  `json:"source_id"`
	ExternalID       string                  `json:"external_id"`
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	PlatformName     string                  `json:"platform_name"`
	CountryCode      string                  `json:"country_code"`
	Price            float64                 `json:"price"`
	SalePrice        float64                 `json:"sale_price"`
	SuggestedPrice   float64                 `json:"suggested_price"`
	TotalSoldUnits   int64                   `json:"total_sold_units"`
	SoldUnitsLast7   int64                   `json:"sold_units_last_7_days"`
	SoldUnitsLast30  int64                   `json:"sold_units_last_30_days"`
	TotalBilling     float64                 `json:"total_billing"`
	BillingLast7     float64                 `json:"billing_last_7_days"`
	BillingLast30    float64                 `json:"billing_last_30_days"`
	Stock            int64                   `json:"stock"`
	VariationsAmount int64                   `json:"variations_amount"`
	Score            float64                 `json:"score"`
	Visible          bool                    `json:"visible"`
	Categories       []types.ProductCategory `json:"categories"`
	Provider         *types.ProductProvider  `json:"provider"`
	Gallery          []types.GalleryEntry    `json:"gallery"`
}

func (sp snapshotProduct) normalize() types.SourceProduct {
	return types.SourceProduct{
		SourceID:         sp.SourceID,
		ExternalID:       sp.ExternalID,
		Name:             sp.Name,
		Description:      sp.Description,
		PlatformName:     sp.PlatformName,
		CountryCode:      sp.CountryCode,
		Price:            sp.Price,
		SalePrice:        sp.SalePrice,
		SuggestedPrice:   sp.SuggestedPrice,
		TotalSoldUnits:   sp.TotalSoldUnits,
		SoldUnitsLast7:   sp.SoldUnitsLast7,
		SoldUnitsLast30:  sp.SoldUnitsLast30,
		TotalBilling:     sp.TotalBilling,
		BillingLast7:     sp.BillingLast7,
		BillingLast30:    sp.BillingLast30,
		Stock:            sp.Stock,
		VariationsAmount: sp.VariationsAmount,
		Score:            sp.Score,
		Visible:          sp.Visible,
		Categories:       sp.Categories,
		Provider:         sp.Provider,
		Gallery:          multimedia.ParseGallery(sp.Gallery),
	}
}

// wrappedSnapshot handles the "wrapped in a one-field object" snapshot
// variant (spec.md §6): take the first value of the object.
type wrappedSnapshot map[string][]snapshotProduct

// SnapshotReader implements Reader against a pre-exported JSON file,
// loaded and normalized once and cached process-wide.
type SnapshotReader struct {
	path string
	log  *slog.Logger

	loadOnce sync.Once
	loadErr  error
	products []types.SourceProduct
}

// NewSnapshotReader builds a SnapshotReader over path. The file is not
// read until the first Count or Read call.
func NewSnapshotReader(path string, log *slog.Logger) *SnapshotReader {
	if log == nil {
		log = slog.Default()
	}
	return &SnapshotReader{path: path, log: log}
}

// SnapshotExists reports whether path exists and is not a directory,
// used by Select to choose between backends. Readability is not
// checked; a file that cannot be read fails on the first Count or Read.
func SnapshotExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *SnapshotReader) ensureLoaded() error {
	s.loadOnce.Do(func() {
		data, err := os.ReadFile(s.path)
		if err != nil {
			s.loadErr = fmt.Errorf("%w: reading snapshot file %s: %v", storeerr.ErrConfiguration, s.path, err)
			return
		}

		var raw []snapshotProduct
		if err := json.Unmarshal(data, &raw); err != nil {
			var wrapped wrappedSnapshot
			if werr := json.Unmarshal(data, &wrapped); werr != nil {
				s.loadErr = fmt.Errorf("%w: snapshot file is neither an array nor a wrapped array: %v", storeerr.ErrConfiguration, err)
				return
			}
			for _, v := range wrapped {
				raw = v
				break
			}
		}

		products := make([]types.SourceProduct, 0, len(raw))
		dropped := 0
		for _, sp := range raw {
			if sp.ExternalID == "" {
				dropped++
				continue
			}
			products = append(products, sp.normalize())
		}
		if dropped > 0 {
			s.log.Warn("dropped snapshot entries missing external_id", "count", dropped)
		}
		s.products = products
	})
	return s.loadErr
}

// Count implements Reader.
func (s *SnapshotReader) Count(_ context.Context) (int, error) {
	if err := s.ensureLoaded(); err != nil {
		return 0, err
	}
	return len(s.products), nil
}

// Read implements Reader by slicing the cached, already-ordered array.
func (s *SnapshotReader) Read(_ context.Context, skip, take int) ([]types.SourceProduct, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	if skip >= len(s.products) {
		return nil, nil
	}
	end := skip + take
	if end > len(s.products) {
		end = len(s.products)
	}
	out := make([]types.SourceProduct, end-skip)
	copy(out, s.products[skip:end])
	return out, nil
}
