package genres

import (
	"context"
)

type Repository interface {
	// GetAll lists the distinct categories found in the books table, alphabetically.
	GetAll(ctx context.Context) ([]string, error)
}
