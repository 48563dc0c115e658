package types

import (
	"strings"
	"time"
)

const (
	// ListSeparator joins multi-valued fields (authors, categories) into one column.
	// A separator inside a name is not escaped.
	ListSeparator = "|"

	UnknownValue       = "Unknown"
	UncategorizedValue = "Uncategorized"
	DefaultCurrency    = "USD"

	MaxDescriptionLength = 500
)

// Book is the canonical record stored in and read from the books table.
type Book struct {
	BookId          string    `json:"book_id"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	Publisher       string    `json:"publisher"`
	PublishedYear   string    `json:"published_year"`
	Description     string    `json:"description"`
	ISBN            string    `json:"isbn"`
	PageCount       int       `json:"page_count"`
	Categories      []string  `json:"categories"`
	AverageRating   float64   `json:"average_rating"`
	RatingsCount    int       `json:"ratings_count"`
	Price           float64   `json:"price"`
	Currency        string    `json:"currency"`
	Thumbnail       string    `json:"thumbnail"`
	IsEbook         bool      `json:"is_ebook"`
	ImportTimestamp time.Time `json:"import_timestamp"`
}

func (b *Book) AuthorsString() string {
	return JoinList(b.Authors, UnknownValue)
}

func (b *Book) CategoriesString() string {
	return JoinList(b.Categories, UncategorizedValue)
}

// JoinList serializes a multi-valued field, falling back to a single fallback entry
// so the stored value is never empty.
func JoinList(vals []string, fallback string) string {
	if len(vals) == 0 {
		return fallback
	}
	return strings.Join(vals, ListSeparator)
}

func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ListSeparator)
}

// AuthorStat is one distinct author name found in the authors column.
type AuthorStat struct {
	Name      string `json:"name"`
	BookCount int    `json:"book_count"`
}
