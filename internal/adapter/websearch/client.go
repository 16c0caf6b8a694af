// Package websearch queries the DuckDuckGo instant-answer API behind a
// per-client rate limit.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/ratelimit"
	"github.com/RideMatch1/neuraxon-viz/internal/text"
)

const (
	DefaultURL        = "https://api.duckduckgo.com/"
	DefaultMaxResults = 5
	maxQueryChars     = 200
)

var (
	ErrEmptyQuery = errors.New("empty query")
	ErrUpstream   = errors.New("search request failed")
)

// LimitError is returned when the client exhausted one of its windows.
type LimitError struct {
	Limit int
	Unit  string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Web search rate limit exceeded: %d searches per %s", e.Limit, e.Unit)
}

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Count   int      `json:"count"`
}

type Client struct {
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
}

func NewClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

type ddgResponse struct {
	Heading       string `json:"Heading"`
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     *string `json:"Text"`
		FirstURL *string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search charges the client's quota, then queries. The abstract, when
// present, is the first result.
func (c *Client) Search(ctx context.Context, client, query string, maxResults int) (*Response, error) {
	if err := c.limiter.Allow(client); err != nil {
		var exceeded *ratelimit.ExceededError
		if errors.As(err, &exceeded) {
			return nil, &LimitError{Limit: exceeded.Window.Limit, Unit: exceeded.Window.Unit}
		}
		return nil, err
	}

	query = text.Truncate(strings.TrimSpace(query), maxQueryChars)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "web search failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var data ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}

	var results []Result
	for i, topic := range data.RelatedTopics {
		if i >= maxResults {
			break
		}
		if topic.Text == nil || topic.FirstURL == nil {
			continue
		}
		results = append(results, Result{
			Title:   text.Truncate(*topic.Text, 100),
			URL:     *topic.FirstURL,
			Snippet: text.Truncate(*topic.Text, 300),
		})
	}

	if data.AbstractText != "" {
		title := data.Heading
		if title == "" {
			title = query
		}
		results = append([]Result{{
			Title:   title,
			URL:     data.AbstractURL,
			Snippet: text.Truncate(data.AbstractText, 300),
		}}, results...)
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if results == nil {
		results = []Result{}
	}
	return &Response{Query: query, Results: results, Count: len(results)}, nil
}

// Format renders results as plain text for a language model.
func Format(r *Response) string {
	if r == nil || len(r.Results) == 0 {
		return "No web search results found."
	}

	var sb strings.Builder
	sb.WriteString("Web search results:\n\n")
	for i, res := range r.Results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, res.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", res.URL)
		fmt.Fprintf(&sb, "   %s\n\n", res.Snippet)
	}
	return sb.String()
}
