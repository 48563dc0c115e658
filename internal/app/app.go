// Package app wires the pool, repositories and ingestion pipeline from a Config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bookscape/internal/bookapi"
	"bookscape/internal/config"
	"bookscape/internal/ingest"
	"bookscape/internal/logger"
	"bookscape/internal/storage/authors"
	"bookscape/internal/storage/books"
	"bookscape/internal/storage/fails"
	"bookscape/internal/storage/genres"
	"bookscape/internal/storage/reports"
)

type App struct {
	Pool    *pgxpool.Pool
	Books   books.Repository
	Authors authors.Repository
	Genres  genres.Repository
	Reports reports.Repository
	Fails   fails.Repository
	Catalog *bookapi.Client
	Logger  *slog.Logger
}

// PoolConfig parses the connection string of cfg and attaches the query tracer.
func PoolConfig(cfg config.Database, l *slog.Logger) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.ConnConfig.Tracer = logger.NewPGXTracer(l)

	return pc, nil
}

// Open creates the pool and makes sure the tables exist.
func Open(ctx context.Context, cfg *config.Config, l *slog.Logger) (*App, error) {
	pc, err := PoolConfig(cfg.Database, l)
	if err != nil {
		return nil, err
	}

	pg, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	a := &App{
		Pool:    pg,
		Books:   books.NewPGXRepository(pg, cfg.Store.ConflictPolicy, l),
		Authors: authors.NewPGXRepository(pg, l),
		Genres:  genres.NewPGXRepository(pg, l),
		Reports: reports.NewPGXRepository(pg, l),
		Fails:   fails.NewPGXRepository(pg, l),
		Catalog: bookapi.NewClient(cfg.GoogleBooks, nil, l),
		Logger:  l,
	}

	if err = a.Books.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	if err = a.Fails.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// Pipeline returns an ingestion pipeline writing to the books table, or only logging the
// normalized records when dryRun is set. Failures are recorded in the failure log either way.
func (a *App) Pipeline(dryRun bool) *ingest.Pipeline {
	var sink ingest.Sink = &ingest.StoringSink{Logger: a.Logger, Books: a.Books}
	if dryRun {
		sink = &ingest.LoggerSink{Logger: a.Logger}
	}

	return &ingest.Pipeline{
		Source: a.Catalog,
		Sink:   sink,
		Store:  a.Books,
		Errors: &ingest.StoringHandler{Logger: a.Logger, Fails: a.Fails, Now: time.Now},
		Logger: a.Logger,
		Now:    time.Now,
	}
}
