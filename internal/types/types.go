// Package types holds the record shapes shared across the migration
// engine: source records read from the legacy store or a snapshot file,
// and the target-store entities written during a run.
package types

import "time"

// ProductCategory is a single entry in a SourceProduct's category list.
type ProductCategory struct {
	Name       string `json:"name"`
	ExternalID string `json:"externalId,omitempty"`
}

// ProductProvider is the embedded provider blob on a SourceProduct.
// Any field may be absent in legacy data.
type ProductProvider struct {
	Name       string `json:"name,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	Verified   bool   `json:"verified,omitempty"`
}

// GalleryEntry is a single media item in a SourceProduct's gallery.
type GalleryEntry struct {
	URL          string `json:"url,omitempty"`
	SourceURL    string `json:"sourceUrl,omitempty"`
	OwnImage     string `json:"ownImage,omitempty"`
	OriginalURL  string `json:"originalUrl,omitempty"`
	Type         string `json:"type,omitempty"`
}

// SourceProduct is a snapshot of a legacy product, uniform across the
// store-backed reader and the JSON-snapshot reader.
type SourceProduct struct {
	SourceID         string            `json:"sourceId"`
	ExternalID       string            `json:"externalId"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	PlatformName     string            `json:"platformName"`
	CountryCode      string            `json:"countryCode"`
	Price            float64           `json:"price"`
	SalePrice        float64           `json:"salePrice"`
	SuggestedPrice   float64           `json:"suggestedPrice"`
	TotalSoldUnits   int64             `json:"totalSoldUnits"`
	SoldUnitsLast7   int64             `json:"soldUnitsLast7Days"`
	SoldUnitsLast30  int64             `json:"soldUnitsLast30Days"`
	TotalBilling     float64           `json:"totalBilling"`
	BillingLast7     float64           `json:"billingLast7Days"`
	BillingLast30    float64           `json:"billingLast30Days"`
	Stock            int64             `json:"stock"`
	VariationsAmount int64             `json:"variationsAmount"`
	Score            float64           `json:"score"`
	Visible          bool              `json:"visible"`
	Categories       []ProductCategory `json:"categories"`
	Provider         *ProductProvider  `json:"provider"`
	Gallery          []GalleryEntry    `json:"gallery"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// SourceHistory is a single legacy daily time-series row.
type SourceHistory struct {
	ExternalProductID string
	PlatformName       string
	CountryCode        string
	Date               string // ISO yyyy-mm-dd
	Stock              int64
	SalePrice          float64
	SoldUnits          int64
	SalesAmount        float64
	StockAdjustment    bool
	StockAdjustmentReason string
}

// ProductStatus is the target Product's lifecycle flag.
type ProductStatus string

const (
	StatusActive   ProductStatus = "ACTIVE"
	StatusInactive ProductStatus = "INACTIVE"
)

// MultimediaType classifies a Multimedia row.
type MultimediaType string

const (
	MediaImage MultimediaType = "image"
	MediaVideo MultimediaType = "video"
)

// Provider is the target Provider entity, unique by (ExternalID, PlatformCountryID).
type Provider struct {
	ID               string
	Name             string
	ExternalID       string
	Verified         bool
	PlatformCountryID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Product is the target Product entity, unique by (ExternalID, PlatformCountryID).
// Product.ID always equals the originating SourceProduct.SourceID (invariant I1).
type Product struct {
	ID                string
	ExternalID        string
	Name              string
	Description       string
	Price             float64
	SalePrice         float64
	SuggestedPrice    float64
	TotalSoldUnits    int64
	SoldUnitsLast7    int64
	SoldUnitsLast30   int64
	TotalBilling      float64
	BillingLast7      float64
	BillingLast30     float64
	Stock             int64
	VariationsAmount  int64
	Score             float64
	Status            ProductStatus
	PlatformCountryID string
	ProviderID        string
	BaseCategoryID    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// History is a target daily time-series row, effectively unique by
// (ProductID, Date).
type History struct {
	ID              string
	Date            string
	ProductID       string
	Stock           int64
	SalePrice       float64
	SoldUnits       int64
	SoldUnitsLast7  int64
	SoldUnitsLast30 int64
	TotalSoldUnits  int64
	BillingLast7    float64
	BillingLast30   float64
	TotalBilling    float64
	SuggestedPrice  float64
}

// Multimedia is a target gallery row.
type Multimedia struct {
	ID          string
	ProductID   string
	URL         string
	OriginalURL string
	Type        MultimediaType
	Extracted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChunkStatus is the lifecycle state of a Chunk (invariant I5).
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkProcessing ChunkStatus = "processing"
	ChunkCompleted  ChunkStatus = "completed"
)

// ChunkState is the persisted record for one partition of the source
// record sequence.
type ChunkState struct {
	ChunkID        int         `json:"chunkId"`
	StartOffset    int         `json:"startOffset"`
	EndOffset      int         `json:"endOffset"`
	Status         ChunkStatus `json:"status"`
	WorkerID       string      `json:"workerId,omitempty"`
	LastUpdate     time.Time   `json:"lastUpdate,omitempty"`
	ProcessedCount int         `json:"processedCount,omitempty"`

	Processed          int `json:"processed,omitempty"`
	ProvidersCreated   int `json:"providersCreated,omitempty"`
	ProductsCreated    int `json:"productsCreated,omitempty"`
	ProductsUpdated    int `json:"productsUpdated,omitempty"`
	HistoriesFilled    int `json:"historiesFilled,omitempty"`
	MultimediaCreated  int `json:"multimediaCreated,omitempty"`
	DuplicatesSkipped  int `json:"duplicatesSkipped,omitempty"`
	Errors             int `json:"errors,omitempty"`
}

// ChunkResult is what a chunk's processing loop reports back to the
// scheduler on completion.
type ChunkResult struct {
	Processed         int
	ProvidersCreated  int
	ProductsCreated   int
	ProductsUpdated   int
	HistoriesFilled   int
	MultimediaCreated int
	DuplicatesSkipped int
	Errors            int
}

// Progress is a read-only summary of chunk state, returned by
// Scheduler.GetProgress.
type Progress struct {
	TotalChunks      int
	PendingChunks    int
	ProcessingChunks int
	CompletedChunks  int
	TotalProcessed   int
	TotalDuplicates  int
	TotalErrors      int
}
