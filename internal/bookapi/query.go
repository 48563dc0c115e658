package bookapi

import "strings"

// FallbackQuery is searched when an advanced query has no terms at all.
const FallbackQuery = "python"

type AdvancedQuery struct {
	Title  string
	Author string
	Genre  string
	Year   string
}

// BuildQuery composes a catalog query using the inauthor:/subject: keywords and a
// publication date window for the year.
func BuildQuery(q AdvancedQuery) string {
	var parts []string

	if s := strings.TrimSpace(q.Title); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(q.Author); s != "" {
		parts = append(parts, "inauthor:"+s)
	}
	if s := strings.TrimSpace(q.Genre); s != "" {
		parts = append(parts, "subject:"+s)
	}
	if s := strings.TrimSpace(q.Year); s != "" {
		parts = append(parts, "after:"+s+"-01-01 before:"+s+"-12-31")
	}

	if len(parts) == 0 {
		return FallbackQuery
	}

	return strings.Join(parts, " ")
}
