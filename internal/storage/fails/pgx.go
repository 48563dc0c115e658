package fails

import (
	"context"
	_ "embed"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookscape/internal/apperr"
	"bookscape/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

const table = "ingest_failure"

func NewPGXRepository(pg *pgxpool.Pool, l *slog.Logger) Repository {
	return &pgxRepo{pg: pg, g: storage.Dialect(), l: l}
}

type pgxRepo struct {
	pg *pgxpool.Pool
	g  goqu.DialectWrapper
	l  *slog.Logger
}

type pgxRecord struct {
	Id         uint64    `db:"id" goqu:"skipinsert"`
	OccurredAt time.Time `db:"occurred_at"`
	Stage      string    `db:"stage"`
	Query      string    `db:"query"`
	BookId     string    `db:"book_id"`
	ErrorType  string    `db:"error_type"`
	Error      string    `db:"error"`
}

func (p *pgxRepo) EnsureSchema(ctx context.Context) error {
	const op = "ensure failure log schema"

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

func (p *pgxRepo) saveSQL(r *Record) (string, []any, error) {
	occurredAt := r.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	return p.g.Insert(table).
		Prepared(true).
		Rows(pgxRecord{
			OccurredAt: occurredAt,
			Stage:      string(r.Stage),
			Query:      r.Query,
			BookId:     r.BookId,
			ErrorType:  r.ErrorType,
			Error:      r.Error,
		}).
		ToSQL()
}

func (p *pgxRepo) Save(ctx context.Context, r *Record) error {
	const op = "save ingest failure"

	sql, params, err := p.saveSQL(r)
	if err != nil {
		return apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, sql, params...); err != nil {
		return apperr.Query(op, err)
	}
	return nil
}

func (p *pgxRepo) GetFails(ctx context.Context, limit int) ([]*Record, error) {
	const op = "list ingest failures"

	if limit <= 0 {
		limit = DefaultLimit
	}

	sql, params, err := p.g.From(table).
		Prepared(true).
		Order(goqu.C("occurred_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var rows []pgxRecord

	err = pgxscan.Select(ctx, conn, &rows, sql, params...)
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	ret := make([]*Record, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, &Record{
			Id:         row.Id,
			OccurredAt: row.OccurredAt,
			Stage:      Stage(row.Stage),
			Query:      row.Query,
			BookId:     row.BookId,
			ErrorType:  row.ErrorType,
			Error:      row.Error,
		})
	}

	return ret, nil
}
