package authors

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchSQL(t *testing.T) {
	repo := NewPGXRepository(nil, slog.Default()).(*pgxRepo)

	sql, params, err := repo.searchSQL(" tolkien  j_r ", 0)
	require.NoError(t, err)

	assert.Contains(t, sql, "string_to_array(authors, $1)")
	assert.Contains(t, sql, `GROUP BY "name"`)
	assert.Contains(t, sql, `ORDER BY "book_count" DESC, "name" ASC`)
	assert.Contains(t, sql, `"name" ILIKE`)

	assert.Equal(t, "|", params[0])
	assert.Contains(t, params, "Unknown")
	assert.Contains(t, params, "%tolkien%")
	assert.Contains(t, params, `%j\_r%`)
	assert.EqualValues(t, DefaultLimit, params[len(params)-1])
}
