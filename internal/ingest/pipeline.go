// Package ingest runs catalog searches through normalization into the store.
package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"bookscape/internal/bookapi"
	"bookscape/internal/normalize"
	"bookscape/internal/storage/books"
	"bookscape/internal/storage/fails"
	"bookscape/internal/types"
)

// AdvancedMaxResults is the page size of every advanced search.
const AdvancedMaxResults = 40

type Source interface {
	Search(ctx context.Context, query string, maxResults int) ([]bookapi.Item, error)
}

// Store answers the read side of an advanced search.
type Store interface {
	Query(ctx context.Context, f books.Filter) ([]*types.Book, error)
	Count(ctx context.Context) (int, error)
}

// AdvancedRequest narrows both the upstream search and the stored records it is matched against.
type AdvancedRequest struct {
	Title     string  `json:"title" validate:"max=200"`
	Author    string  `json:"author" validate:"max=200"`
	Genre     string  `json:"genre" validate:"max=200"`
	Year      string  `json:"year" validate:"omitempty,len=4,numeric"`
	MinRating float64 `json:"min_rating" validate:"gte=0,lte=5"`
	MinPages  int     `json:"min_pages" validate:"gte=0,lte=5000"`
}

func (r *AdvancedRequest) query() bookapi.AdvancedQuery {
	return bookapi.AdvancedQuery{
		Title:  r.Title,
		Author: r.Author,
		Genre:  r.Genre,
		Year:   r.Year,
	}
}

func (r *AdvancedRequest) filter() books.Filter {
	return books.Filter{
		Title:     r.Title,
		Author:    r.Author,
		Genre:     r.Genre,
		Year:      r.Year,
		MinRating: r.MinRating,
		MinPages:  r.MinPages,
	}
}

func (r *AdvancedRequest) keep(b *types.Book) bool {
	return b.AverageRating >= r.MinRating && b.PageCount >= r.MinPages
}

type Result struct {
	Query   string `json:"query"`
	Fetched int    `json:"fetched"`
	// Books are the normalized records handed to the sink, in upstream order.
	Books  []*types.Book       `json:"books"`
	Saved  int                 `json:"saved"`
	Failed []books.RecordError `json:"failed"`
	// Matches and Total are only filled by advanced searches.
	Matches []*types.Book `json:"matches,omitempty"`
	Total   int           `json:"total,omitempty"`
	// APIError is set when the upstream search failed; the result is then empty.
	APIError string `json:"api_error,omitempty"`
}

type Pipeline struct {
	Source Source
	Sink   Sink
	Store  Store
	Errors ErrorHandler
	Logger *slog.Logger
	Now    func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) report(ctx context.Context, f *Failure) {
	if p.Errors == nil {
		return
	}
	if err := p.Errors.Handle(ctx, f); err != nil {
		p.Logger.ErrorContext(ctx, "Failed to handle ingestion failure: "+err.Error())
	}
}

// fetch runs the upstream search. An upstream failure is reported and yields no items.
func (p *Pipeline) fetch(ctx context.Context, res *Result, maxResults int) []*types.Book {
	items, err := p.Source.Search(ctx, res.Query, maxResults)
	if err != nil {
		p.Logger.WarnContext(ctx, "Search for "+strconv.Quote(res.Query)+" failed: "+err.Error())
		res.APIError = err.Error()
		p.report(ctx, &Failure{Stage: fails.StageFetch, Query: res.Query, Err: err})
		return nil
	}

	res.Fetched = len(items)
	return normalize.Books(items, p.now().UTC())
}

func (p *Pipeline) store(ctx context.Context, res *Result, batch []*types.Book) error {
	res.Books = batch
	if len(batch) == 0 {
		return nil
	}

	up, err := p.Sink.Consume(ctx, batch)
	if up != nil {
		res.Saved = up.Saved
		res.Failed = up.Failed
		for _, rec := range up.Failed {
			p.report(ctx, &Failure{Stage: fails.StageUpsert, Query: res.Query, BookId: rec.BookId, Err: rec.Err})
		}
	}
	return err
}

// Search fetches up to maxResults items for query, normalizes and stores all of them.
func (p *Pipeline) Search(ctx context.Context, query string, maxResults int) (*Result, error) {
	res := &Result{
		Query:  query,
		Books:  make([]*types.Book, 0),
		Failed: make([]books.RecordError, 0),
	}

	batch := p.fetch(ctx, res, bookapi.ClampResults(maxResults))
	if err := p.store(ctx, res, batch); err != nil {
		return res, err
	}

	p.Logger.InfoContext(ctx, "Search "+strconv.Quote(query)+" stored "+strconv.Itoa(res.Saved)+
		" of "+strconv.Itoa(res.Fetched)+" books")
	return res, nil
}

// Advanced builds the upstream query from req, stores the fetched records that satisfy the
// rating and page bounds, then matches req against everything stored.
func (p *Pipeline) Advanced(ctx context.Context, req AdvancedRequest) (*Result, error) {
	res := &Result{
		Query:   bookapi.BuildQuery(req.query()),
		Books:   make([]*types.Book, 0),
		Failed:  make([]books.RecordError, 0),
		Matches: make([]*types.Book, 0),
	}

	fetched := p.fetch(ctx, res, AdvancedMaxResults)

	kept := make([]*types.Book, 0, len(fetched))
	for _, b := range fetched {
		if req.keep(b) {
			kept = append(kept, b)
		}
	}

	if len(kept) == 0 {
		p.Logger.InfoContext(ctx, "No books of "+strconv.Itoa(res.Fetched)+" passed filters for "+strconv.Quote(res.Query))
		return res, nil
	}

	if err := p.store(ctx, res, kept); err != nil {
		return res, err
	}

	total, err := p.Store.Count(ctx)
	if err != nil {
		return res, err
	}
	res.Total = total

	matches, err := p.Store.Query(ctx, req.filter())
	if err != nil {
		return res, err
	}
	res.Matches = matches

	p.Logger.InfoContext(ctx, "Advanced search "+strconv.Quote(res.Query)+" stored "+strconv.Itoa(res.Saved)+
		" books, "+strconv.Itoa(len(matches))+" match")
	return res, nil
}
