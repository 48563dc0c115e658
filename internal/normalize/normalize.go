// Package normalize maps raw catalog items onto canonical book records.
//
// Normalization never fails: a missing section, a missing field or a value of the wrong JSON
// type all fall back to the field's default. Values are not escaped here; the store binds
// every value as a query parameter.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"bookscape/internal/bookapi"
	"bookscape/internal/types"
)

const (
	identifierISBN10 = "ISBN_10"
	identifierISBN13 = "ISBN_13"

	maxRating = 5.0
)

// Book produces exactly one canonical record from one catalog item.
// now becomes the record's import timestamp.
func Book(item bookapi.Item, now time.Time) *types.Book {
	volume := object(item["volumeInfo"])
	sale := object(item["saleInfo"])
	retail := object(sale["retailPrice"])
	images := object(volume["imageLinks"])

	return &types.Book{
		BookId:          strings.TrimSpace(text(item["id"])),
		Title:           textOr(volume["title"], types.UnknownValue),
		Authors:         listOr(volume["authors"], types.UnknownValue),
		Publisher:       textOr(volume["publisher"], types.UnknownValue),
		PublishedYear:   Year(text(volume["publishedDate"])),
		Description:     Truncate(text(volume["description"]), types.MaxDescriptionLength),
		ISBN:            ISBN(volume["industryIdentifiers"]),
		PageCount:       nonNegativeInt(volume["pageCount"]),
		Categories:      listOr(volume["categories"], types.UncategorizedValue),
		AverageRating:   clamp(number(volume["averageRating"]), 0, maxRating),
		RatingsCount:    nonNegativeInt(volume["ratingsCount"]),
		Price:           clamp(number(retail["amount"]), 0, math.MaxFloat64),
		Currency:        textOr(retail["currencyCode"], types.DefaultCurrency),
		Thumbnail:       text(images["thumbnail"]),
		IsEbook:         boolean(sale["isEbook"]),
		ImportTimestamp: now,
	}
}

// Books normalizes every item, preserving order.
func Books(items []bookapi.Item, now time.Time) []*types.Book {
	ret := make([]*types.Book, 0, len(items))
	for _, item := range items {
		ret = append(ret, Book(item, now))
	}
	return ret
}

// Year returns the first four characters of a publication date ("2020-05-01", "2020"),
// or "" when the date is shorter than a year.
func Year(date string) string {
	date = strings.TrimSpace(date)
	if utf8.RuneCountInString(date) < 4 {
		return ""
	}
	return string([]rune(date)[:4])
}

// Truncate cuts s to at most n characters without splitting a multi-byte rune.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ISBN returns the first ISBN_10 or ISBN_13 identifier in list order, or "".
func ISBN(identifiers any) string {
	list, _ := identifiers.([]any)
	for _, entry := range list {
		id := object(entry)
		switch text(id["type"]) {
		case identifierISBN10, identifierISBN13:
			if v := strings.TrimSpace(text(id["identifier"])); v != "" {
				return v
			}
		}
	}
	return ""
}

func object(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case bookapi.Item:
		return o
	default:
		return nil
	}
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func textOr(v any, fallback string) string {
	if s := strings.TrimSpace(text(v)); s != "" {
		return s
	}
	return fallback
}

func listOr(v any, fallback string) []string {
	raw, _ := v.([]any)

	vals := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s := strings.TrimSpace(text(entry)); s != "" {
			vals = append(vals, s)
		}
	}

	if len(vals) == 0 {
		return []string{fallback}
	}
	return vals
}

// number accepts JSON numbers and numeric strings; anything else is 0.
func number(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0
		}
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0
		}
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func nonNegativeInt(v any) int {
	f := number(v)
	if f <= 0 {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}

func boolean(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	default:
		return false
	}
}
