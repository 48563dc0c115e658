package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"bookscape/internal/apperr"
	"bookscape/internal/ingest"
	"bookscape/internal/response"
	"bookscape/internal/storage/authors"
	"bookscape/internal/storage/books"
	"bookscape/internal/storage/fails"
	"bookscape/internal/storage/genres"
	"bookscape/internal/storage/reports"
	"bookscape/internal/types"
)

// DefaultMaxResults is the basic search page size when max_results is absent.
const DefaultMaxResults = 10

var validate = validator.New()

type Ingester interface {
	Search(ctx context.Context, query string, maxResults int) (*ingest.Result, error)
	Advanced(ctx context.Context, req ingest.AdvancedRequest) (*ingest.Result, error)
}

type Services struct {
	Ingest  Ingester
	Books   books.Repository
	Authors authors.Repository
	Genres  genres.Repository
	Reports reports.Repository
	Fails   fails.Repository
}

// filterRequest is the query string form of books.Filter.
type filterRequest struct {
	Title     string  `validate:"max=200"`
	Author    string  `validate:"max=200"`
	Genre     string  `validate:"max=200"`
	Year      string  `validate:"omitempty,len=4,numeric"`
	MinRating float64 `validate:"gte=0,lte=5"`
	MinPages  int     `validate:"gte=0"`
	Limit     int     `validate:"gte=0"`
}

// filter caps the limit at books.PageSize, the same bound the store applies.
func (f *filterRequest) filter() books.Filter {
	limit := f.Limit
	if limit == 0 || limit > books.PageSize {
		limit = books.PageSize
	}

	return books.Filter{
		Title:     f.Title,
		Author:    f.Author,
		Genre:     f.Genre,
		Year:      f.Year,
		MinRating: f.MinRating,
		MinPages:  f.MinPages,
		Limit:     limit,
	}
}

// Handler serves the JSON API. A positive rateLimitPerMinute enables per-IP limiting.
func Handler(s Services, rr *response.Responder, rateLimitPerMinute int) http.Handler {
	r := chi.NewRouter()

	if rateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(rateLimitPerMinute, time.Minute))
	}

	r.Get("/volumes", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		query := strings.TrimSpace(q.Get("q"))
		if query == "" {
			rr.RespondError(w, r.Context(), apperr.InvalidInput("search volumes", "q is required"))
			return
		}

		res, err := s.Ingest.Search(r.Context(), query, getIntOrDefault("max_results", q, DefaultMaxResults))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		rr.SendJson(w, r.Context(), res)
	})

	r.Post("/imports", func(w http.ResponseWriter, r *http.Request) {
		var req ingest.AdvancedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rr.RespondError(w, r.Context(), apperr.InvalidInput("decode import request", "%v", err))
			return
		}

		if err := validate.Struct(&req); err != nil {
			rr.RespondValidation(w, r.Context(), err)
			return
		}

		res, err := s.Ingest.Advanced(r.Context(), req)
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		rr.SendJson(w, r.Context(), res)
	})

	r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		req := filterRequest{
			Title:     strings.TrimSpace(q.Get("title")),
			Author:    strings.TrimSpace(q.Get("author")),
			Genre:     strings.TrimSpace(q.Get("genre")),
			Year:      strings.TrimSpace(q.Get("year")),
			MinRating: getFloatOrDefault("min_rating", q, 0),
			MinPages:  getIntOrDefault("min_pages", q, 0),
			Limit:     getIntOrDefault("limit", q, books.PageSize),
		}
		if err := validate.Struct(&req); err != nil {
			rr.RespondValidation(w, r.Context(), err)
			return
		}

		rows, err := s.Books.Query(r.Context(), req.filter())
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if rows == nil {
			rows = make([]*types.Book, 0)
		}

		rr.SendJson(w, r.Context(), struct {
			Books []*types.Book `json:"books"`
		}{Books: rows})
	})

	r.Get("/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		book, err := s.Books.GetById(r.Context(), id)
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if book == nil {
			rr.RespondError(w, r.Context(), apperr.NotFound("get book", "no book with id %q", id))
			return
		}

		rr.SendJson(w, r.Context(), book)
	})

	r.Get("/authors", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		rows, err := s.Authors.Search(r.Context(), q.Get("search"),
			getIntOrDefault("limit", q, authors.DefaultLimit))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if rows == nil {
			rows = make([]*types.AuthorStat, 0)
		}

		rr.SendJson(w, r.Context(), struct {
			Authors []*types.AuthorStat `json:"authors"`
		}{Authors: rows})
	})

	r.Get("/genres", func(w http.ResponseWriter, r *http.Request) {
		rows, err := s.Genres.GetAll(r.Context())
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if rows == nil {
			rows = make([]string, 0)
		}

		rr.SendJson(w, r.Context(), struct {
			Genres []string `json:"genres"`
		}{Genres: rows})
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			rr.SendJson(w, r.Context(), struct {
				Reports []*reports.Report `json:"reports"`
			}{Reports: reports.Catalog})
		})

		r.Get("/{key}", func(w http.ResponseWriter, r *http.Request) {
			report, tbl, ok := runReport(w, r, s.Reports, rr)
			if !ok {
				return
			}

			rr.SendJson(w, r.Context(), struct {
				Report *reports.Report `json:"report"`
				*reports.Table
			}{Report: report, Table: tbl})
		})

		r.Get("/{key}/csv", func(w http.ResponseWriter, r *http.Request) {
			report, tbl, ok := runReport(w, r, s.Reports, rr)
			if !ok {
				return
			}

			rr.SendCSV(w, r.Context(), report.FileName(), tbl.WriteCSV)
		})
	})

	r.Route("/charts", func(r chi.Router) {
		r.Get("/years", func(w http.ResponseWriter, r *http.Request) {
			selected := getMulti("year", r.URL.Query())

			available, err := s.Reports.PublishedYears(r.Context())
			if err != nil {
				rr.RespondError(w, r.Context(), err)
				return
			}

			buckets, err := s.Reports.YearCounts(r.Context(), selected...)
			if err != nil {
				rr.RespondError(w, r.Context(), err)
				return
			}

			if selected == nil {
				selected = make([]string, 0)
			}

			rr.SendJson(w, r.Context(), struct {
				Years    []string          `json:"years"`
				Selected []string          `json:"selected"`
				Buckets  []*reports.Bucket `json:"buckets"`
			}{Years: available, Selected: selected, Buckets: buckets})
		})

		r.Get("/ratings", chart(s.Reports.RatingDistribution, rr))
		r.Get("/rating-bands", chart(s.Reports.RatingBands, rr))
		r.Get("/prices", chart(s.Reports.PriceDistribution, rr))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		totals, err := s.Reports.Totals(r.Context())
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		rr.SendJson(w, r.Context(), totals)
	})

	r.Get("/failures", func(w http.ResponseWriter, r *http.Request) {
		rows, err := s.Fails.GetFails(r.Context(), getIntOrDefault("limit", r.URL.Query(), fails.DefaultLimit))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if rows == nil {
			rows = make([]*fails.Record, 0)
		}

		rr.SendJson(w, r.Context(), struct {
			Failures []*fails.Record `json:"failures"`
		}{Failures: rows})
	})

	return r
}

func runReport(w http.ResponseWriter, r *http.Request, rep reports.Repository,
	rr *response.Responder) (*reports.Report, *reports.Table, bool) {

	report, err := reports.Lookup(chi.URLParam(r, "key"))
	if err != nil {
		rr.RespondError(w, r.Context(), err)
		return nil, nil, false
	}

	tbl, err := rep.Run(r.Context(), report.Slug)
	if err != nil {
		rr.RespondError(w, r.Context(), err)
		return nil, nil, false
	}

	return report, tbl, true
}

func chart(load func(context.Context) ([]*reports.Bucket, error), rr *response.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buckets, err := load(r.Context())
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if buckets == nil {
			buckets = make([]*reports.Bucket, 0)
		}

		rr.SendJson(w, r.Context(), struct {
			Buckets []*reports.Bucket `json:"buckets"`
		}{Buckets: buckets})
	}
}

func getIntOrDefault(key string, q url.Values, default_ int) int {
	if ls := q.Get(key); ls != "" {
		limit, err := strconv.Atoi(ls)
		if err == nil {
			return limit
		}
	}

	return default_
}

func getFloatOrDefault(key string, q url.Values, default_ float64) float64 {
	if fs := q.Get(key); fs != "" {
		f, err := strconv.ParseFloat(fs, 64)
		if err == nil {
			return f
		}
	}

	return default_
}

func getMulti(key string, q url.Values) []string {
	raw, ok := q[key]
	if !ok {
		return nil
	}

	vals := make([]string, 0, len(raw))
	for _, val := range raw {
		val = strings.TrimSpace(val)
		if val != "" {
			vals = append(vals, val)
		}
	}

	return vals
}
