package fails

import (
	"context"
	"time"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageUpsert Stage = "upsert"
)

// DefaultLimit applies when GetFails is called without a positive limit.
const DefaultLimit = 100

type Record struct {
	Id         uint64    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Stage      Stage     `json:"stage"`
	Query      string    `json:"query"`
	BookId     string    `json:"book_id,omitempty"`
	ErrorType  string    `json:"error_type"`
	Error      string    `json:"error"`
}

type Repository interface {
	EnsureSchema(ctx context.Context) error

	Save(ctx context.Context, r *Record) error
	// GetFails returns the most recent failures first.
	GetFails(ctx context.Context, limit int) ([]*Record, error)
}
