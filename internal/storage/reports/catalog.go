package reports

import (
	"strconv"
	"strings"

	"bookscape/internal/apperr"
)

// Report is one predefined read-only query over the books table.
type Report struct {
	Id    int    `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
	SQL   string `json:"-"`
}

// FileName is the name CSV exports of the report are offered under.
func (r *Report) FileName() string {
	return "book_query_" + r.Slug + ".csv"
}

// Lookup finds a report by its number ("2") or slug ("publisher-most-books").
func Lookup(key string) (*Report, error) {
	key = strings.ToLower(strings.TrimSpace(key))

	if id, err := strconv.Atoi(key); err == nil {
		if id >= 1 && id <= len(Catalog) {
			return Catalog[id-1], nil
		}
	} else {
		for _, r := range Catalog {
			if r.Slug == key {
				return r, nil
			}
		}
	}

	return nil, apperr.InvalidInput("lookup report", "unknown report %q", key)
}

// Catalog is ordered by Id, starting at 1.
var Catalog = []*Report{
	{
		Id:    1,
		Slug:  "ebook-availability",
		Title: "Check Availability of eBooks vs Physical Books",
		SQL: `
SELECT
    COUNT(*) FILTER (WHERE is_ebook) AS ebook_count,
    COUNT(*) FILTER (WHERE NOT is_ebook) AS physical_count,
    ROUND(COUNT(*) FILTER (WHERE is_ebook) * 100.0 / NULLIF(COUNT(*), 0), 2) AS ebook_percentage
FROM books`,
	},
	{
		Id:    2,
		Slug:  "publisher-most-books",
		Title: "Find the Publisher with the Most Books Published",
		SQL: `
SELECT publisher, COUNT(*) AS book_count
FROM books
WHERE publisher <> 'Unknown'
GROUP BY publisher
ORDER BY book_count DESC, publisher
LIMIT 1`,
	},
	{
		Id:    3,
		Slug:  "publisher-highest-rating",
		Title: "Identify the Publisher with the Highest Average Rating",
		SQL: `
SELECT publisher, AVG(average_rating) AS avg_rating
FROM books
WHERE publisher <> 'Unknown'
GROUP BY publisher
HAVING COUNT(*) > 5
ORDER BY avg_rating DESC, publisher
LIMIT 1`,
	},
	{
		Id:    4,
		Slug:  "most-expensive-books",
		Title: "Get the Top 5 Most Expensive Books by Retail Price",
		SQL: `
SELECT title, authors, price, currency
FROM books
WHERE price > 0
ORDER BY price DESC
LIMIT 5`,
	},
	{
		Id:    5,
		Slug:  "long-books-after-2010",
		Title: "Find Books Published After 2010 with at Least 500 Pages",
		SQL: `
SELECT title, authors, published_year, page_count
FROM books
WHERE published_year > '2010' AND page_count >= 500
ORDER BY page_count DESC
LIMIT 100`,
	},
	{
		Id:    6,
		Slug:  "discounted-books",
		Title: "List Books with Discounts Greater than 20%",
		SQL: `
WITH priced AS (
    SELECT b.title, b.authors, b.price,
           (SELECT AVG(b2.price) FROM books b2 WHERE b2.categories = b.categories) AS category_price
    FROM books b
    WHERE b.price > 0
)
SELECT title, authors, price,
       ROUND(category_price::numeric, 2) AS avg_category_price,
       ROUND(((1 - price / category_price) * 100)::numeric, 2) AS discount_percentage
FROM priced
WHERE (1 - price / category_price) * 100 > 20
ORDER BY discount_percentage DESC
LIMIT 50`,
	},
	{
		Id:    7,
		Slug:  "ebook-page-count",
		Title: "Find the Average Page Count for eBooks vs Physical Books",
		SQL: `
SELECT
    AVG(page_count) FILTER (WHERE is_ebook) AS avg_ebook_pages,
    AVG(page_count) FILTER (WHERE NOT is_ebook) AS avg_physical_pages
FROM books
WHERE page_count > 0`,
	},
	{
		Id:    8,
		Slug:  "top-authors",
		Title: "Find the Top 3 Authors with the Most Books",
		SQL: `
SELECT authors, COUNT(*) AS book_count
FROM books
WHERE authors <> 'Unknown'
GROUP BY authors
ORDER BY book_count DESC, authors
LIMIT 3`,
	},
	{
		Id:    9,
		Slug:  "publishers-over-10-books",
		Title: "List Publishers with More than 10 Books",
		SQL: `
SELECT publisher, COUNT(*) AS book_count
FROM books
WHERE publisher <> 'Unknown'
GROUP BY publisher
HAVING COUNT(*) > 10
ORDER BY book_count DESC, publisher`,
	},
	{
		Id:    10,
		Slug:  "category-page-count",
		Title: "Find the Average Page Count for Each Category",
		SQL: `
SELECT categories, AVG(page_count) AS avg_page_count, COUNT(*) AS book_count
FROM books
WHERE categories <> '' AND page_count > 0
GROUP BY categories
ORDER BY avg_page_count DESC
LIMIT 20`,
	},
	{
		Id:    11,
		Slug:  "multi-author-books",
		Title: "Retrieve Books with More than 3 Authors",
		SQL: `
SELECT title, authors, author_count
FROM (
    SELECT title, authors,
           LENGTH(authors) - LENGTH(REPLACE(authors, '|', '')) + 1 AS author_count
    FROM books
) counted
WHERE author_count > 3
ORDER BY author_count DESC
LIMIT 50`,
	},
	{
		Id:    12,
		Slug:  "above-average-ratings-count",
		Title: "Books with Ratings Count Greater Than the Average",
		SQL: `
SELECT title, authors, ratings_count, average_rating
FROM books
WHERE ratings_count > (SELECT AVG(ratings_count) FROM books WHERE ratings_count > 0)
ORDER BY ratings_count DESC
LIMIT 50`,
	},
	{
		Id:    13,
		Slug:  "author-same-year",
		Title: "Books with the Same Author Published in the Same Year",
		SQL: `
SELECT authors, published_year, COUNT(*) AS book_count
FROM books
WHERE authors <> 'Unknown' AND published_year <> ''
GROUP BY authors, published_year
HAVING COUNT(*) > 1
ORDER BY book_count DESC
LIMIT 50`,
	},
	{
		Id:    14,
		Slug:  "machine-titles",
		Title: "Books with a Specific Keyword in the Title",
		SQL: `
SELECT title, authors, published_year
FROM books
WHERE title ILIKE '%machine%'
LIMIT 50`,
	},
	{
		Id:    15,
		Slug:  "priciest-year",
		Title: "Year with the Highest Average Book Price",
		SQL: `
SELECT published_year, AVG(price) AS avg_price
FROM books
WHERE price > 0 AND published_year <> ''
GROUP BY published_year
ORDER BY avg_price DESC
LIMIT 1`,
	},
	{
		Id:    16,
		Slug:  "consecutive-year-authors",
		Title: "Count Authors Who Published 3 Consecutive Years",
		SQL: `
WITH author_years AS (
    SELECT authors, published_year::int AS year
    FROM books
    WHERE authors <> 'Unknown' AND published_year ~ '^[0-9]{4}$'
    GROUP BY authors, published_year
), lagged AS (
    SELECT authors, year,
           LAG(year, 1) OVER (PARTITION BY authors ORDER BY year) AS prev_year,
           LAG(year, 2) OVER (PARTITION BY authors ORDER BY year) AS prev_prev_year
    FROM author_years
)
SELECT COUNT(DISTINCT authors) AS authors_with_3_consecutive_years
FROM lagged
WHERE year = prev_year + 1 AND year = prev_prev_year + 2`,
	},
	{
		Id:    17,
		Slug:  "multi-publisher-authors",
		Title: "Authors with Multiple Publishers in Same Year",
		SQL: `
SELECT authors, published_year,
       COUNT(DISTINCT publisher) AS publisher_count,
       COUNT(*) AS book_count
FROM books
WHERE authors <> 'Unknown'
  AND published_year <> ''
  AND publisher <> 'Unknown'
GROUP BY authors, published_year
HAVING COUNT(DISTINCT publisher) > 1
ORDER BY book_count DESC
LIMIT 50`,
	},
	{
		Id:    18,
		Slug:  "ebook-price",
		Title: "Average Price Comparison: eBooks vs Physical",
		SQL: `
SELECT
    AVG(price) FILTER (WHERE is_ebook) AS avg_ebook_price,
    AVG(price) FILTER (WHERE NOT is_ebook) AS avg_physical_price
FROM books
WHERE price > 0`,
	},
	{
		Id:    19,
		Slug:  "rating-outliers",
		Title: "Rating Outliers (2+ Standard Deviations)",
		SQL: `
WITH rating_stats AS (
    SELECT AVG(average_rating) AS mean, STDDEV_POP(average_rating) AS stddev
    FROM books
    WHERE average_rating > 0
)
SELECT title, average_rating, ratings_count
FROM books, rating_stats
WHERE average_rating > 0
  AND (average_rating > mean + 2 * stddev OR average_rating < mean - 2 * stddev)
ORDER BY ABS(average_rating - mean) DESC
LIMIT 50`,
	},
	{
		Id:    20,
		Slug:  "top-rated-publisher",
		Title: "Top Rated Publisher (10+ Books)",
		SQL: `
SELECT publisher, AVG(average_rating) AS avg_rating, COUNT(*) AS book_count
FROM books
WHERE publisher <> 'Unknown' AND average_rating > 0
GROUP BY publisher
HAVING COUNT(*) > 10
ORDER BY avg_rating DESC
LIMIT 1`,
	},
}
