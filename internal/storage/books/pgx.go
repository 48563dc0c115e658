package books

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookscape/internal/apperr"
	"bookscape/internal/config"
	"bookscape/internal/metrics"
	"bookscape/internal/storage"
	"bookscape/internal/types"
)

//go:embed schema.sql
var schemaSQL string

const table = "books"

var columns = []any{
	"book_id", "title", "authors", "publisher", "published_year", "description", "isbn",
	"page_count", "categories", "average_rating", "ratings_count", "price", "currency",
	"thumbnail", "is_ebook", "import_timestamp",
}

// refreshed lists the columns overwritten when a book_id is ingested again.
var refreshed = map[string][]string{
	config.ConflictRefreshIdentity: {"title", "authors", "publisher"},
	config.ConflictRefreshAll: {
		"title", "authors", "publisher", "published_year", "description", "isbn", "page_count",
		"categories", "average_rating", "ratings_count", "price", "currency", "thumbnail",
		"is_ebook", "import_timestamp",
	},
}

func NewPGXRepository(pg *pgxpool.Pool, conflictPolicy string, l *slog.Logger) Repository {
	if _, ok := refreshed[conflictPolicy]; !ok {
		conflictPolicy = config.ConflictRefreshIdentity
	}
	return &pgxRepo{pg: pg, g: storage.Dialect(), policy: conflictPolicy, l: l}
}

type pgxRepo struct {
	pg     *pgxpool.Pool
	g      goqu.DialectWrapper
	policy string
	l      *slog.Logger
}

type pgxBook struct {
	BookId          string    `db:"book_id"`
	Title           string    `db:"title"`
	Authors         string    `db:"authors"`
	Publisher       string    `db:"publisher"`
	PublishedYear   string    `db:"published_year"`
	Description     string    `db:"description"`
	ISBN            string    `db:"isbn"`
	PageCount       int       `db:"page_count"`
	Categories      string    `db:"categories"`
	AverageRating   float64   `db:"average_rating"`
	RatingsCount    int       `db:"ratings_count"`
	Price           float64   `db:"price"`
	Currency        string    `db:"currency"`
	Thumbnail       string    `db:"thumbnail"`
	IsEbook         bool      `db:"is_ebook"`
	ImportTimestamp time.Time `db:"import_timestamp"`
}

func fromCommon(b *types.Book) pgxBook {
	return pgxBook{
		BookId:          strings.TrimSpace(b.BookId),
		Title:           b.Title,
		Authors:         b.AuthorsString(),
		Publisher:       b.Publisher,
		PublishedYear:   b.PublishedYear,
		Description:     b.Description,
		ISBN:            b.ISBN,
		PageCount:       b.PageCount,
		Categories:      b.CategoriesString(),
		AverageRating:   b.AverageRating,
		RatingsCount:    b.RatingsCount,
		Price:           b.Price,
		Currency:        b.Currency,
		Thumbnail:       b.Thumbnail,
		IsEbook:         b.IsEbook,
		ImportTimestamp: b.ImportTimestamp,
	}
}

func (b *pgxBook) intoCommon() *types.Book {
	return &types.Book{
		BookId:          b.BookId,
		Title:           b.Title,
		Authors:         types.SplitList(b.Authors),
		Publisher:       b.Publisher,
		PublishedYear:   b.PublishedYear,
		Description:     b.Description,
		ISBN:            b.ISBN,
		PageCount:       b.PageCount,
		Categories:      types.SplitList(b.Categories),
		AverageRating:   b.AverageRating,
		RatingsCount:    b.RatingsCount,
		Price:           b.Price,
		Currency:        b.Currency,
		Thumbnail:       b.Thumbnail,
		IsEbook:         b.IsEbook,
		ImportTimestamp: b.ImportTimestamp,
	}
}

func (p *pgxRepo) EnsureSchema(ctx context.Context) error {
	const op = "ensure books schema"

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, schemaSQL); err != nil {
		return apperr.Query(op, err)
	}
	return nil
}

func (p *pgxRepo) upsertSQL(row pgxBook) (string, []any, error) {
	set := make(goqu.Record, len(refreshed[p.policy]))
	for _, col := range refreshed[p.policy] {
		set[col] = goqu.L("excluded." + col)
	}

	return p.g.Insert(table).
		Prepared(true).
		Rows(row).
		OnConflict(goqu.DoUpdate("book_id", set)).
		ToSQL()
}

func (p *pgxRepo) Upsert(ctx context.Context, books ...*types.Book) (*UpsertResult, error) {
	const op = "upsert book"
	defer metrics.ObserveSince("upsert", time.Now())

	res := &UpsertResult{Failed: make([]RecordError, 0)}

	fail := func(id string, err *apperr.Error) {
		p.l.WarnContext(ctx, "Failed to upsert book "+id+": "+err.Error())
		metrics.UpsertFailures.WithLabelValues(err.Kind.String()).Inc()
		res.Failed = append(res.Failed, RecordError{BookId: id, Err: err})
	}

	for _, book := range books {
		if book == nil || strings.TrimSpace(book.BookId) == "" {
			fail("", apperr.InvalidInput(op, "book_id is empty"))
			continue
		}

		row := fromCommon(book)

		sql, params, err := p.upsertSQL(row)
		if err != nil {
			fail(row.BookId, apperr.Query(op, err))
			continue
		}

		if err = p.exec(ctx, op, sql, params); err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) && ae.Kind == apperr.KindConnection {
				metrics.UpsertFailures.WithLabelValues(ae.Kind.String()).Inc()
				return res, err
			}
			fail(row.BookId, apperr.Query(op, err))
			continue
		}

		res.Saved++
		metrics.BooksUpserted.Inc()
	}

	return res, nil
}

// exec runs one statement on its own connection.
func (p *pgxRepo) exec(ctx context.Context, op, sql string, params []any) error {
	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, sql, params...); err != nil {
		return execError(op, err, conn.Conn().IsClosed())
	}
	return nil
}

// execError turns a lost connection into a ConnectionError so the batch stops; anything else
// stays a per-record failure.
func execError(op string, err error, closed bool) error {
	if closed || storage.ConnectionLost(err) {
		return apperr.Connection(op, err)
	}
	return err
}

func (p *pgxRepo) querySQL(f Filter) (string, []any, error) {
	qb := p.g.From(table).
		Prepared(true).
		Select(columns...)

	if pattern := storage.Contains(f.Title); pattern != "" {
		qb = qb.Where(goqu.C("title").ILike(pattern))
	}

	if pattern := storage.Contains(f.Author); pattern != "" {
		qb = qb.Where(goqu.C("authors").ILike(pattern))
	}

	if pattern := storage.Contains(f.Genre); pattern != "" {
		qb = qb.Where(goqu.C("categories").ILike(pattern))
	}

	if year := strings.TrimSpace(f.Year); year != "" {
		qb = qb.Where(goqu.C("published_year").Eq(year))
	}

	if f.MinRating > 0 {
		qb = qb.Where(goqu.C("average_rating").Gte(f.MinRating))
	}

	if f.MinPages > 0 {
		qb = qb.Where(goqu.C("page_count").Gte(f.MinPages))
	}

	limit := f.Limit
	if limit <= 0 || limit > PageSize {
		limit = PageSize
	}

	return qb.
		Order(goqu.C("average_rating").Desc(), goqu.C("book_id").Asc()).
		Limit(uint(limit)).
		ToSQL()
}

func (p *pgxRepo) Query(ctx context.Context, f Filter) ([]*types.Book, error) {
	const op = "query books"
	defer metrics.ObserveSince("query", time.Now())

	sql, params, err := p.querySQL(f)
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var rows []pgxBook

	err = pgxscan.Select(ctx, conn, &rows, sql, params...)
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	ret := make([]*types.Book, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.intoCommon())
	}

	return ret, nil
}

func (p *pgxRepo) GetById(ctx context.Context, id string) (*types.Book, error) {
	const op = "get book"

	sql, params, err := p.g.From(table).
		Prepared(true).
		Select(columns...).
		Where(goqu.C("book_id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var row pgxBook

	err = pgxscan.Get(ctx, conn, &row, sql, params...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Query(op, err)
	}

	return row.intoCommon(), nil
}

func (p *pgxRepo) Count(ctx context.Context) (int, error) {
	const op = "count books"

	sql, params, err := p.g.From(table).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		ToSQL()
	if err != nil {
		return 0, apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	var n int

	err = pgxscan.Get(ctx, conn, &n, sql, params...)
	if err != nil {
		return 0, apperr.Query(op, err)
	}

	return n, nil
}
