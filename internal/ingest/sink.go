package ingest

import (
	"context"
	"log/slog"
	"strings"

	"bookscape/internal/storage/books"
	"bookscape/internal/types"
)

// Sink receives every normalized batch.
type Sink interface {
	Consume(ctx context.Context, batch []*types.Book) (*books.UpsertResult, error)
}

// LoggerSink only logs what would be stored. Nothing is reported as saved.
type LoggerSink struct {
	Logger *slog.Logger
}

func (c *LoggerSink) Consume(ctx context.Context, batch []*types.Book) (*books.UpsertResult, error) {
	for _, b := range batch {
		var authors string
		if len(b.Authors) > 1 {
			authors = "by authors " + strings.Join(b.Authors, ", ")
		} else {
			authors = "by author " + b.AuthorsString()
		}

		year := ""
		if b.PublishedYear != "" {
			year = " published " + b.PublishedYear
		}

		c.Logger.InfoContext(ctx, "Consumed book "+b.BookId+" ("+b.Title+") "+authors+year)
	}

	return &books.UpsertResult{Failed: make([]books.RecordError, 0)}, nil
}

// StoringSink upserts every batch into the books repository.
type StoringSink struct {
	Logger *slog.Logger
	Books  books.Repository
}

func (s *StoringSink) Consume(ctx context.Context, batch []*types.Book) (*books.UpsertResult, error) {
	res, err := s.Books.Upsert(ctx, batch...)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to store books: "+err.Error())
		return res, err
	}

	s.Logger.DebugContext(ctx, "Stored books",
		slog.Int("saved", res.Saved),
		slog.Int("failed", len(res.Failed)))
	return res, nil
}
