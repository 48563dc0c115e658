package authors

import (
	"context"
	"log/slog"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookscape/internal/apperr"
	"bookscape/internal/storage"
	"bookscape/internal/types"
)

func NewPGXRepository(pg *pgxpool.Pool, l *slog.Logger) Repository {
	return &pgxRepo{pg: pg, g: storage.Dialect(), l: l}
}

type pgxRepo struct {
	pg *pgxpool.Pool
	g  goqu.DialectWrapper
	l  *slog.Logger
}

type pgxAuthor struct {
	Name      string `db:"name"`
	BookCount int    `db:"book_count"`
}

func (a *pgxAuthor) intoCommon() *types.AuthorStat {
	return &types.AuthorStat{
		Name:      a.Name,
		BookCount: a.BookCount,
	}
}

func (p *pgxRepo) searchSQL(query string, limit int) (string, []any, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	names := p.g.From("books").
		Select(goqu.L("btrim(unnest(string_to_array(authors, ?)))", types.ListSeparator).As("name"))

	qb := p.g.From(names.As("a")).
		Prepared(true).
		Select(goqu.C("name"), goqu.COUNT(goqu.Star()).As("book_count")).
		Where(
			goqu.C("name").Neq(types.UnknownValue),
			goqu.C("name").Neq(""),
		).
		GroupBy(goqu.C("name")).
		Order(goqu.I("book_count").Desc(), goqu.C("name").Asc()).
		Limit(uint(limit))

	for _, word := range strings.Fields(query) {
		qb = qb.Where(goqu.C("name").ILike(storage.Contains(word)))
	}

	return qb.ToSQL()
}

func (p *pgxRepo) Search(ctx context.Context, query string, limit int) ([]*types.AuthorStat, error) {
	const op = "search authors"

	sql, params, err := p.searchSQL(query, limit)
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var rows []pgxAuthor

	err = pgxscan.Select(ctx, conn, &rows, sql, params...)
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	ret := make([]*types.AuthorStat, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.intoCommon())
	}

	return ret, nil
}
