package reports

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookscape/internal/apperr"
)

func TestCatalogIsComplete(t *testing.T) {
	require.Len(t, Catalog, 20)

	slugs := make(map[string]struct{}, len(Catalog))
	for i, r := range Catalog {
		assert.Equal(t, i+1, r.Id)
		assert.NotEmpty(t, r.Title)

		_, dup := slugs[r.Slug]
		assert.False(t, dup, "duplicate slug %s", r.Slug)
		slugs[r.Slug] = struct{}{}

		sql := strings.ToUpper(strings.TrimSpace(r.SQL))
		assert.True(t, strings.HasPrefix(sql, "SELECT") || strings.HasPrefix(sql, "WITH"), r.Slug)
		assert.NotContains(t, r.SQL, ";", r.Slug)
		for _, verb := range []string{"INSERT ", "UPDATE ", "DELETE ", "DROP ", "ALTER "} {
			assert.NotContains(t, sql, verb, r.Slug)
		}
	}
}

func TestLookup(t *testing.T) {
	r, err := Lookup("2")
	require.NoError(t, err)
	assert.Equal(t, "publisher-most-books", r.Slug)

	r, err = Lookup(" Rating-Outliers ")
	require.NoError(t, err)
	assert.Equal(t, 19, r.Id)

	for _, key := range []string{"", "0", "21", "-1", "nope"} {
		_, err = Lookup(key)
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput), key)
	}

	for _, c := range Catalog {
		byId, err := Lookup(strconv.Itoa(c.Id))
		require.NoError(t, err)
		bySlug, err := Lookup(c.Slug)
		require.NoError(t, err)
		assert.Same(t, byId, bySlug)
	}
}

func TestFileName(t *testing.T) {
	r, err := Lookup("4")
	require.NoError(t, err)
	assert.Equal(t, "book_query_most-expensive-books.csv", r.FileName())
}
