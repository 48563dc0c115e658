package books

import (
	"context"

	"github.com/goccy/go-json"

	"bookscape/internal/apperr"
	"bookscape/internal/types"
)

// PageSize caps every filter query.
const PageSize = 50

// Filter selects stored books. Blank strings and zero bounds are ignored.
type Filter struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Genre     string  `json:"genre"`
	Year      string  `json:"year"`
	MinRating float64 `json:"min_rating"`
	MinPages  int     `json:"min_pages"`
	Limit     int     `json:"limit"`
}

// RecordError is one record that could not be written.
type RecordError struct {
	BookId string
	Err    error
}

func (e RecordError) Error() string {
	return e.BookId + ": " + e.Err.Error()
}

func (e RecordError) Unwrap() error {
	return e.Err
}

func (e RecordError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BookId string `json:"book_id"`
		Kind   string `json:"kind"`
		Error  string `json:"error"`
	}{
		BookId: e.BookId,
		Kind:   apperr.KindOf(e.Err).String(),
		Error:  e.Err.Error(),
	})
}

type UpsertResult struct {
	Saved  int           `json:"saved"`
	Failed []RecordError `json:"failed"`
}

type Repository interface {
	EnsureSchema(ctx context.Context) error

	// Upsert writes every record independently. Per-record failures are collected in the
	// result; a connection failure aborts the batch and is returned with the partial result.
	Upsert(ctx context.Context, books ...*types.Book) (*UpsertResult, error)

	// Query returns at most PageSize books ordered by rating, best first.
	Query(ctx context.Context, f Filter) ([]*types.Book, error)
	// GetById returns nil without error when the book is absent.
	GetById(ctx context.Context, id string) (*types.Book, error)
	Count(ctx context.Context) (int, error)
}
