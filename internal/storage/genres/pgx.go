package genres

import (
	"context"
	"log/slog"

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

func (p *pgxRepo) getAllSQL() (string, []any, error) {
	titles := p.g.From("books").
		Select(goqu.L("btrim(unnest(string_to_array(categories, ?)))", types.ListSeparator).As("title"))

	return p.g.From(titles.As("g")).
		Prepared(true).
		Select(goqu.C("title")).
		Distinct().
		Where(goqu.C("title").Neq("")).
		Order(goqu.C("title").Asc()).
		ToSQL()
}

func (p *pgxRepo) GetAll(ctx context.Context) ([]string, error) {
	const op = "list genres"

	sql, params, err := p.getAllSQL()
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows := make([]string, 0)

	err = pgxscan.Select(ctx, conn, &rows, sql, params...)
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	return rows, nil
}
