package reports

import (
	"context"
	"time"
)

// Bucket is one bar of a chart dataset.
type Bucket struct {
	Label string `json:"label" db:"label"`
	Count int    `json:"count" db:"count"`
}

// Totals summarizes the whole books table.
type Totals struct {
	Books         int        `json:"books" db:"books"`
	Publishers    int        `json:"publishers" db:"publishers"`
	Ebooks        int        `json:"ebooks" db:"ebooks"`
	AverageRating float64    `json:"average_rating" db:"average_rating"`
	AveragePrice  float64    `json:"average_price" db:"average_price"`
	LastImport    *time.Time `json:"last_import" db:"last_import"`
}

type Repository interface {
	// Run executes a catalog report looked up by number or slug.
	Run(ctx context.Context, key string) (*Table, error)

	// PublishedYears lists the distinct non-empty publication years, newest first.
	PublishedYears(ctx context.Context) ([]string, error)
	// YearCounts counts books per publication year, oldest first. No years means all years.
	YearCounts(ctx context.Context, years ...string) ([]*Bucket, error)
	// RatingBands groups books into four coarse rating bands.
	RatingBands(ctx context.Context) ([]*Bucket, error)
	// RatingDistribution groups books into five rating bands, best first.
	RatingDistribution(ctx context.Context) ([]*Bucket, error)
	// PriceDistribution groups books into price ranges, free first.
	PriceDistribution(ctx context.Context) ([]*Bucket, error)
	Totals(ctx context.Context) (*Totals, error)
}
