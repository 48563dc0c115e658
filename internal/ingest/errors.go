package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookscape/internal/apperr"
	"bookscape/internal/storage/fails"
)

// Failure is one problem met while ingesting a query. BookId is empty for fetch failures.
type Failure struct {
	Stage  fails.Stage
	Query  string
	BookId string
	Err    error
}

type ErrorHandler interface {
	Handle(ctx context.Context, f *Failure) error
}

type LoggingHandler struct {
	Logger *slog.Logger
}

func (h *LoggingHandler) Handle(ctx context.Context, f *Failure) error {
	h.Logger.WarnContext(ctx, "Ingestion failed at "+string(f.Stage)+": "+f.Err.Error(),
		slog.String("query", f.Query),
		slog.String("book_id", f.BookId))
	return nil
}

// StoringHandler records failures in the failure log.
type StoringHandler struct {
	Logger *slog.Logger
	Fails  fails.Repository
	Now    func() time.Time
}

func (s *StoringHandler) Handle(ctx context.Context, f *Failure) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	err := s.Fails.Save(ctx, &fails.Record{
		OccurredAt: now(),
		Stage:      f.Stage,
		Query:      f.Query,
		BookId:     f.BookId,
		ErrorType:  apperr.KindOf(f.Err).String(),
		Error:      f.Err.Error(),
	})
	if err != nil {
		err = fmt.Errorf("saving fail: %w", err)
	}

	return err
}
