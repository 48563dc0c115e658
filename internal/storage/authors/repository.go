package authors

import (
	"context"

	"bookscape/internal/types"
)

// DefaultLimit applies when Search is called without a positive limit.
const DefaultLimit = 100

type Repository interface {
	// Search lists distinct author names found in the books table with the number of books
	// naming each, most prolific first. Every word of query must appear in the name.
	Search(ctx context.Context, query string, limit int) ([]*types.AuthorStat, error)
}
