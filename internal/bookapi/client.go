package bookapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"bookscape/internal/apperr"
	"bookscape/internal/config"
	"bookscape/internal/metrics"
)

const (
	MinResults = 1
	MaxResults = 40

	opSearch = "search volumes"
)

// Item is one raw catalog entry as decoded from the response: {id, volumeInfo, saleInfo, ...}.
// It is kept untyped so that a malformed field never rejects the whole item.
type Item map[string]any

type searchResponse struct {
	Items []Item `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
	apiKey  string
}

func NewClient(cfg config.GoogleBooks, client *http.Client, l *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		client:  client,
		logger:  l,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// ClampResults bounds a requested result count to what one catalog page can return.
func ClampResults(n int) int {
	if n < MinResults {
		return MinResults
	}
	if n > MaxResults {
		return MaxResults
	}
	return n
}

// Search issues exactly one catalog request. The returned slice is never nil: on any failure
// it is empty and the error is an APIError, so callers can treat it as "no results".
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Item, error) {
	maxResults = ClampResults(maxResults)

	u, err := url.Parse(c.baseURL + "/volumes")
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("transport_error").Inc()
		return []Item{}, apperr.API(opSearch, fmt.Errorf("parsing base URL: %w", err))
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(maxResults))
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	u.RawQuery = params.Encode()

	l := c.logger.With(slog.String("query", query))
	l.DebugContext(ctx, "Begin catalog search", slog.Int("max_results", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("transport_error").Inc()
		return []Item{}, apperr.API(opSearch, fmt.Errorf("creating request: %w", err))
	}

	res, err := c.client.Do(req)
	if err != nil {
		l.ErrorContext(ctx, "Failed to fetch volumes: "+err.Error())
		metrics.UpstreamRequests.WithLabelValues("transport_error").Inc()
		return []Item{}, apperr.API(opSearch, fmt.Errorf("fetching volumes: %w", err))
	}

	var bs []byte
	func() {
		defer res.Body.Close()
		bs, err = io.ReadAll(res.Body)
	}()

	if err != nil {
		l.ErrorContext(ctx, "Failed to read body of volumes response: "+err.Error())
		metrics.UpstreamRequests.WithLabelValues("transport_error").Inc()
		return []Item{}, apperr.API(opSearch, fmt.Errorf("fetching volumes (reading response): %w", err))
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := "catalog returned status " + strconv.Itoa(res.StatusCode)
		var er errorResponse
		if json.Unmarshal(bs, &er) == nil && er.Error.Message != "" {
			msg += ": " + er.Error.Message
		}

		l.ErrorContext(ctx, "Failed to search volumes, "+msg)
		metrics.UpstreamRequests.WithLabelValues("bad_status").Inc()
		return []Item{}, apperr.API(opSearch, errors.New(msg))
	}

	var body searchResponse
	if err := json.Unmarshal(bs, &body); err != nil {
		l.ErrorContext(ctx, "Failed to unmarshal volumes response: "+err.Error())
		metrics.UpstreamRequests.WithLabelValues("decode_error").Inc()
		return []Item{}, apperr.API(opSearch, fmt.Errorf("unmarshalling volumes: %w", err))
	}

	metrics.UpstreamRequests.WithLabelValues("ok").Inc()

	items := make([]Item, 0, len(body.Items))
	for _, item := range body.Items {
		if item == nil {
			l.WarnContext(ctx, "Skipping null catalog item")
			continue
		}
		items = append(items, item)
	}

	metrics.UpstreamItems.Add(float64(len(items)))
	l.DebugContext(ctx, "Found "+strconv.Itoa(len(items))+" catalog items")

	return items, nil
}
