package reports

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookscape/internal/apperr"
	"bookscape/internal/metrics"
	"bookscape/internal/storage"
)

const table = "books"

func NewPGXRepository(pg *pgxpool.Pool, l *slog.Logger) Repository {
	return &pgxRepo{pg: pg, g: storage.Dialect(), l: l}
}

type pgxRepo struct {
	pg *pgxpool.Pool
	g  goqu.DialectWrapper
	l  *slog.Logger
}

type band struct {
	label string
	when  exp.Expression
}

var (
	ratingBands = []band{
		{"4.5+", goqu.C("average_rating").Gte(4.5)},
		{"4.0-4.5", goqu.C("average_rating").Gte(4.0)},
		{"3.5-4.0", goqu.C("average_rating").Gte(3.5)},
		{"Below 3.5", nil},
	}
	ratingDistribution = []band{
		{"4.5+ Stars", goqu.C("average_rating").Gte(4.5)},
		{"4.0-4.5 Stars", goqu.C("average_rating").Gte(4.0)},
		{"3.5-4.0 Stars", goqu.C("average_rating").Gte(3.5)},
		{"3.0-3.5 Stars", goqu.C("average_rating").Gte(3.0)},
		{"Below 3.0", nil},
	}
	priceDistribution = []band{
		{"Free", goqu.C("price").Eq(0)},
		{"0-10", goqu.C("price").Lt(10)},
		{"10-20", goqu.C("price").Lt(20)},
		{"20+", nil},
	}
)

func (p *pgxRepo) Run(ctx context.Context, key string) (*Table, error) {
	report, err := Lookup(key)
	if err != nil {
		return nil, err
	}

	op := "run report " + report.Slug
	defer metrics.ObserveSince("report", time.Now())
	metrics.ReportRuns.WithLabelValues(report.Slug).Inc()

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, report.SQL)
	if err != nil {
		return nil, apperr.Query(op, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	ret := &Table{
		Columns: make([]string, 0, len(fields)),
		Rows:    make([][]any, 0),
	}
	for _, f := range fields {
		ret.Columns = append(ret.Columns, f.Name)
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, apperr.Query(op, err)
		}

		row := make([]any, 0, len(vals))
		for _, v := range vals {
			row = append(row, plain(v))
		}
		ret.Rows = append(ret.Rows, row)
	}

	if err = rows.Err(); err != nil {
		return nil, apperr.Query(op, err)
	}

	p.l.DebugContext(ctx, "Report "+report.Slug+" returned "+strconv.Itoa(len(ret.Rows))+" rows")

	return ret, nil
}

func (p *pgxRepo) publishedYearsSQL() (string, []any, error) {
	return p.g.From(table).
		Prepared(true).
		Select(goqu.C("published_year")).
		Distinct().
		Where(goqu.C("published_year").Neq("")).
		Order(goqu.C("published_year").Desc()).
		ToSQL()
}

func (p *pgxRepo) PublishedYears(ctx context.Context) ([]string, error) {
	sql, params, err := p.publishedYearsSQL()
	if err != nil {
		return nil, apperr.Query("list published years", err)
	}

	ret := make([]string, 0)
	if err = p.selectRows(ctx, "list published years", &ret, sql, params); err != nil {
		return nil, err
	}
	return ret, nil
}

func (p *pgxRepo) yearCountsSQL(years []string) (string, []any, error) {
	qb := p.g.From(table).
		Prepared(true).
		Select(
			goqu.C("published_year").As("label"),
			goqu.COUNT(goqu.Star()).As("count"),
		).
		Where(goqu.C("published_year").Neq("")).
		GroupBy(goqu.C("published_year")).
		Order(goqu.C("published_year").Asc())

	clean := make([]string, 0, len(years))
	for _, y := range years {
		if y = strings.TrimSpace(y); y != "" {
			clean = append(clean, y)
		}
	}
	if len(clean) > 0 {
		qb = qb.Where(goqu.C("published_year").In(clean))
	}

	return qb.ToSQL()
}

func (p *pgxRepo) YearCounts(ctx context.Context, years ...string) ([]*Bucket, error) {
	sql, params, err := p.yearCountsSQL(years)
	if err != nil {
		return nil, apperr.Query("count books per year", err)
	}
	return p.buckets(ctx, "count books per year", sql, params)
}

// distributionSQL assigns every book to the first band whose condition holds; the last band
// has no condition and catches the rest. Buckets come back in band order, empty ones omitted.
func (p *pgxRepo) distributionSQL(bands []band) (string, []any, error) {
	label := goqu.Case()
	order := goqu.Case()
	for i, b := range bands {
		if b.when == nil {
			label = label.Else(b.label)
			order = order.Else(goqu.L(strconv.Itoa(i)))
			break
		}
		label = label.When(b.when, b.label)
		order = order.When(b.when, goqu.L(strconv.Itoa(i)))
	}

	inner := p.g.From(table).
		Select(label.As("label"), order.As("ord"))

	return p.g.From(inner.As("banded")).
		Prepared(true).
		Select(goqu.C("label"), goqu.COUNT(goqu.Star()).As("count")).
		GroupBy(goqu.C("label"), goqu.C("ord")).
		Order(goqu.C("ord").Asc()).
		ToSQL()
}

func (p *pgxRepo) distribution(ctx context.Context, op string, bands []band) ([]*Bucket, error) {
	sql, params, err := p.distributionSQL(bands)
	if err != nil {
		return nil, apperr.Query(op, err)
	}
	return p.buckets(ctx, op, sql, params)
}

func (p *pgxRepo) RatingBands(ctx context.Context) ([]*Bucket, error) {
	return p.distribution(ctx, "count rating bands", ratingBands)
}

func (p *pgxRepo) RatingDistribution(ctx context.Context) ([]*Bucket, error) {
	return p.distribution(ctx, "count rating distribution", ratingDistribution)
}

func (p *pgxRepo) PriceDistribution(ctx context.Context) ([]*Bucket, error) {
	return p.distribution(ctx, "count price distribution", priceDistribution)
}

func (p *pgxRepo) totalsSQL() (string, []any, error) {
	return p.g.From(table).
		Prepared(true).
		Select(
			goqu.COUNT(goqu.Star()).As("books"),
			goqu.COUNT(goqu.DISTINCT("publisher")).As("publishers"),
			goqu.L("COUNT(*) FILTER (WHERE is_ebook)").As("ebooks"),
			goqu.L("COALESCE(AVG(NULLIF(average_rating, 0)), 0)").As("average_rating"),
			goqu.L("COALESCE(AVG(NULLIF(price, 0)), 0)").As("average_price"),
			goqu.MAX("import_timestamp").As("last_import"),
		).
		ToSQL()
}

func (p *pgxRepo) Totals(ctx context.Context) (*Totals, error) {
	const op = "summarize books"

	sql, params, err := p.totalsSQL()
	if err != nil {
		return nil, apperr.Query(op, err)
	}

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	var ret Totals

	if err = pgxscan.Get(ctx, conn, &ret, sql, params...); err != nil {
		return nil, apperr.Query(op, err)
	}

	return &ret, nil
}

func (p *pgxRepo) buckets(ctx context.Context, op, sql string, params []any) ([]*Bucket, error) {
	ret := make([]*Bucket, 0)
	if err := p.selectRows(ctx, op, &ret, sql, params); err != nil {
		return nil, err
	}
	return ret, nil
}

func (p *pgxRepo) selectRows(ctx context.Context, op string, dst any, sql string, params []any) error {
	defer metrics.ObserveSince("chart", time.Now())

	conn, err := storage.Acquire(ctx, p.pg, op)
	if err != nil {
		return err
	}
	defer conn.Release()

	if err = pgxscan.Select(ctx, conn, dst, sql, params...); err != nil {
		return apperr.Query(op, err)
	}
	return nil
}
