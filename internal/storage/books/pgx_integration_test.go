//go:build integration

package books

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookscape/internal/apperr"
	"bookscape/internal/config"
	"bookscape/internal/testinfra"
	"bookscape/internal/types"
)

func newRepo(t *testing.T, policy string) Repository {
	t.Helper()

	repo := NewPGXRepository(testinfra.NewPool(t), policy, slog.Default())
	require.NoError(t, repo.EnsureSchema(context.Background()))
	// schema creation is repeatable
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func book(id, title string, rating float64, pages int) *types.Book {
	return &types.Book{
		BookId:          id,
		Title:           title,
		Authors:         []string{"Author " + id},
		Publisher:       "Pub",
		PublishedYear:   "2020",
		ISBN:            "isbn-" + id,
		PageCount:       pages,
		Categories:      []string{"Computers"},
		AverageRating:   rating,
		Price:           10,
		Currency:        "USD",
		ImportTimestamp: time.Now().UTC().Truncate(time.Second),
	}
}

func TestUpsertIdentityPolicyRefreshesOnlyIdentityFields(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, config.ConflictRefreshIdentity)

	first := book("abc", "First", 3, 100)
	res, err := repo.Upsert(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)

	second := book("abc", "Second", 4, 999)
	second.Price = 99
	second.ISBN = "other"
	res, err = repo.Upsert(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetById(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Second", got.Title)
	assert.Equal(t, 10.0, got.Price)
	assert.Equal(t, "isbn-abc", got.ISBN)
	assert.Equal(t, 100, got.PageCount)
}

func TestUpsertAllPolicyRefreshesEverything(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, config.ConflictRefreshAll)

	_, err := repo.Upsert(ctx, book("abc", "First", 3, 100))
	require.NoError(t, err)

	second := book("abc", "Second", 4, 999)
	second.Price = 99
	_, err = repo.Upsert(ctx, second)
	require.NoError(t, err)

	got, err := repo.GetById(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)
	assert.Equal(t, 99.0, got.Price)
	assert.Equal(t, 999, got.PageCount)
}

func TestUpsertIsolatesBadRecord(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "")

	res, err := repo.Upsert(ctx, book("a", "A", 1, 1), book("", "Blank", 1, 1), nil, book("b", "B", 1, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Saved)
	require.Len(t, res.Failed, 2)
	assert.True(t, apperr.Is(res.Failed[0].Err, apperr.KindInvalidInput))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertStoresQuotesVerbatim(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "")

	b := book("q", "It's a 'quoted' title; DROP TABLE books; --", 1, 1)
	b.Authors = []string{"O'Brien"}
	_, err := repo.Upsert(ctx, b)
	require.NoError(t, err)

	got, err := repo.GetById(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, b.Title, got.Title)
	assert.Equal(t, []string{"O'Brien"}, got.Authors)
}

func TestQueryRespectsBoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "")

	_, err := repo.Upsert(ctx,
		book("1", "Low rating", 3.9, 500),
		book("2", "Few pages", 4.8, 150),
		book("3", "Good", 4.2, 300),
		book("4", "Best", 4.9, 200),
		book("5", "Also good", 4.2, 250),
	)
	require.NoError(t, err)

	got, err := repo.Query(ctx, Filter{MinRating: 4.0, MinPages: 200})
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, b := range got {
		assert.GreaterOrEqual(t, b.AverageRating, 4.0)
		assert.GreaterOrEqual(t, b.PageCount, 200)
		ids = append(ids, b.BookId)
	}
	assert.Equal(t, []string{"4", "3", "5"}, ids)
}

func TestQuerySubstringFilters(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, "")

	a := book("a", "Machine Learning", 4, 100)
	a.Authors = []string{"Ann", "Bob"}
	a.Categories = []string{"Computers", "AI"}
	b := book("b", "100% Python", 3, 100)
	b.PublishedYear = "2019"
	_, err := repo.Upsert(ctx, a, b)
	require.NoError(t, err)

	got, err := repo.Query(ctx, Filter{Title: "machine"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].BookId)

	got, err = repo.Query(ctx, Filter{Author: "bob", Genre: "ai"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = repo.Query(ctx, Filter{Title: "100%"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].BookId)

	got, err = repo.Query(ctx, Filter{Year: "2019"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].BookId)
}

func TestGetByIdMissing(t *testing.T) {
	repo := newRepo(t, "")

	got, err := repo.GetById(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}
