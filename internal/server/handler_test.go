package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookscape/internal/apperr"
	"bookscape/internal/ingest"
	"bookscape/internal/response"
	"bookscape/internal/storage/books"
	"bookscape/internal/storage/fails"
	"bookscape/internal/storage/reports"
	"bookscape/internal/types"
)

type fakeIngest struct {
	query      string
	maxResults int
	advanced   *ingest.AdvancedRequest
	err        error
}

func (f *fakeIngest) Search(_ context.Context, query string, maxResults int) (*ingest.Result, error) {
	f.query, f.maxResults = query, maxResults
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Result{Query: query, Books: []*types.Book{}, Failed: []books.RecordError{}}, nil
}

func (f *fakeIngest) Advanced(_ context.Context, req ingest.AdvancedRequest) (*ingest.Result, error) {
	f.advanced = &req
	return &ingest.Result{Query: "q", Books: []*types.Book{}, Failed: []books.RecordError{}}, nil
}

type fakeBooks struct {
	filter books.Filter
	rows   map[string]*types.Book
}

func (f *fakeBooks) EnsureSchema(context.Context) error { return nil }

func (f *fakeBooks) Upsert(context.Context, ...*types.Book) (*books.UpsertResult, error) {
	return &books.UpsertResult{}, nil
}

func (f *fakeBooks) Query(_ context.Context, filter books.Filter) ([]*types.Book, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeBooks) GetById(_ context.Context, id string) (*types.Book, error) {
	return f.rows[id], nil
}

func (f *fakeBooks) Count(context.Context) (int, error) { return len(f.rows), nil }

type fakeAuthors struct{}

func (fakeAuthors) Search(context.Context, string, int) ([]*types.AuthorStat, error) {
	return []*types.AuthorStat{{Name: "Rob Pike", BookCount: 2}}, nil
}

type fakeGenres struct{ err error }

func (f fakeGenres) GetAll(context.Context) ([]string, error) {
	return nil, f.err
}

type fakeReports struct {
	years []string
}

func (f *fakeReports) Run(_ context.Context, key string) (*reports.Table, error) {
	return &reports.Table{
		Columns: []string{"publisher", "book_count"},
		Rows:    [][]any{{"O'Reilly", int64(3)}},
	}, nil
}

func (f *fakeReports) PublishedYears(context.Context) ([]string, error) {
	return []string{"2021", "2020"}, nil
}

func (f *fakeReports) YearCounts(_ context.Context, years ...string) ([]*reports.Bucket, error) {
	f.years = years
	return []*reports.Bucket{{Label: "2020", Count: 4}}, nil
}

func (f *fakeReports) RatingBands(context.Context) ([]*reports.Bucket, error) {
	return []*reports.Bucket{{Label: "4.5+", Count: 1}}, nil
}

func (f *fakeReports) RatingDistribution(context.Context) ([]*reports.Bucket, error) {
	return nil, nil
}

func (f *fakeReports) PriceDistribution(context.Context) ([]*reports.Bucket, error) {
	return []*reports.Bucket{{Label: "Free", Count: 2}}, nil
}

func (f *fakeReports) Totals(context.Context) (*reports.Totals, error) {
	return &reports.Totals{Books: 5, Publishers: 2}, nil
}

type fakeFails struct{ limit int }

func (f *fakeFails) EnsureSchema(context.Context) error { return nil }
func (f *fakeFails) Save(context.Context, *fails.Record) error { return nil }

func (f *fakeFails) GetFails(_ context.Context, limit int) ([]*fails.Record, error) {
	f.limit = limit
	return nil, nil
}

type fixture struct {
	ingest  *fakeIngest
	books   *fakeBooks
	reports *fakeReports
	fails   *fakeFails
	genres  fakeGenres
	handler http.Handler
}

func newFixture(rateLimit int) *fixture {
	f := &fixture{
		ingest:  &fakeIngest{},
		books:   &fakeBooks{rows: map[string]*types.Book{"abc": {BookId: "abc", Title: "T"}}},
		reports: &fakeReports{},
		fails:   &fakeFails{},
	}
	f.build(rateLimit)
	return f
}

func (f *fixture) build(rateLimit int) {
	f.handler = Handler(Services{
		Ingest:  f.ingest,
		Books:   f.books,
		Authors: fakeAuthors{},
		Genres:  f.genres,
		Reports: f.reports,
		Fails:   f.fails,
	}, &response.Responder{}, rateLimit)
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestVolumes(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodGet, "/volumes?q=+python+", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "python", f.ingest.query)
	assert.Equal(t, DefaultMaxResults, f.ingest.maxResults)
	assert.Equal(t, "python", body["query"])

	_, _ = f.do(t, http.MethodGet, "/volumes?q=go&max_results=25", "")
	assert.Equal(t, 25, f.ingest.maxResults)
}

func TestVolumesRequiresQuery(t *testing.T) {
	w, body := newFixture(0).do(t, http.MethodGet, "/volumes?q=%20", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])
}

func TestVolumesConnectionError(t *testing.T) {
	f := newFixture(0)
	f.ingest.err = apperr.Connection("upsert book", errors.New("connection refused"))

	w, body := f.do(t, http.MethodGet, "/volumes?q=go", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "connection_error", body["kind"])
}

func TestImports(t *testing.T) {
	f := newFixture(0)

	w, _ := f.do(t, http.MethodPost, "/imports", `{"title":"go","year":"2020","min_rating":4,"min_pages":200}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.ingest.advanced)
	assert.Equal(t, ingest.AdvancedRequest{Title: "go", Year: "2020", MinRating: 4, MinPages: 200}, *f.ingest.advanced)
}

func TestImportsRejectsBadBodies(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodPost, "/imports", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])

	w, body = f.do(t, http.MethodPost, "/imports", `{"year":"20","min_rating":7}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["error"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "AdvancedRequest.Year")
	assert.Contains(t, fields, "AdvancedRequest.MinRating")
	assert.Nil(t, f.ingest.advanced)
}

func TestBooksFilter(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodGet, "/books?title=go&author=pike&year=2020&min_rating=4.5&min_pages=100&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, books.Filter{Title: "go", Author: "pike", Year: "2020", MinRating: 4.5, MinPages: 100, Limit: 5}, f.books.filter)
	assert.Equal(t, []any{}, body["books"])

	w, _ = f.do(t, http.MethodGet, "/books?min_rating=6", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodGet, "/books?year=twenty", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBooksLimitIsCapped(t *testing.T) {
	f := newFixture(0)

	w, _ := f.do(t, http.MethodGet, "/books?limit=500", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, books.PageSize, f.books.filter.Limit)

	w, _ = f.do(t, http.MethodGet, "/books?limit=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, books.PageSize, f.books.filter.Limit)

	w, _ = f.do(t, http.MethodGet, "/books?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookById(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodGet, "/books/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T", body["title"])

	w, body = f.do(t, http.MethodGet, "/books/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["kind"])
}

func TestFacets(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodGet, "/authors?search=pike", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["authors"], 1)

	w, body = f.do(t, http.MethodGet, "/genres", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["genres"])

	f.genres.err = apperr.Query("list genres", errors.New("relation does not exist"))
	f.build(0)
	w, _ = f.do(t, http.MethodGet, "/genres", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReports(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodGet, "/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["reports"], len(reports.Catalog))

	w, body = f.do(t, http.MethodGet, "/reports/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"publisher", "book_count"}, body["columns"])
	report, ok := body["report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "publisher-most-books", report["slug"])

	w, body = f.do(t, http.MethodGet, "/reports/99", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])
}

func TestReportCSV(t *testing.T) {
	w, _ := newFixture(0).do(t, http.MethodGet, "/reports/publisher-most-books/csv", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=book_query_publisher-most-books.csv", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "publisher,book_count\nO'Reilly,3\n", w.Body.String())
}

func TestCharts(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodGet, "/charts/years?year=2020&year=+&year=2021", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"2020", "2021"}, f.reports.years)
	assert.Equal(t, []any{"2021", "2020"}, body["years"])
	assert.Equal(t, []any{"2020", "2021"}, body["selected"])

	w, body = f.do(t, http.MethodGet, "/charts/ratings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["buckets"])

	for _, path := range []string{"/charts/rating-bands", "/charts/prices"} {
		w, body = f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Len(t, body["buckets"], 1, path)
	}
}

func TestStatsAndFailures(t *testing.T) {
	f := newFixture(0)

	w, body := f.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, body["books"])

	w, body = f.do(t, http.MethodGet, "/failures", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fails.DefaultLimit, f.fails.limit)
	assert.Equal(t, []any{}, body["failures"])

	_, _ = f.do(t, http.MethodGet, "/failures?limit=3", "")
	assert.Equal(t, 3, f.fails.limit)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(1)

	w, _ := f.do(t, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodGet, "/stats", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestNoRateLimit(t *testing.T) {
	f := newFixture(0)

	for i := 0; i < 5; i++ {
		w, _ := f.do(t, http.MethodGet, "/stats", "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
