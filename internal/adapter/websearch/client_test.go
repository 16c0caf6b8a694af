package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/internal/ratelimit"
)

const ddgBody = `{
  "Heading": "Neuraxon",
  "AbstractText": "Neuraxon is a neural network model.",
  "AbstractURL": "https://example.test/neuraxon",
  "RelatedTopics": [
    {"Text": "Topic one", "FirstURL": "https://example.test/1"},
    {"Name": "Category", "Topics": []},
    {"Text": "Topic two", "FirstURL": "https://example.test/2"},
    {"Text": "Topic three", "FirstURL": "https://example.test/3"}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, perMinute int) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL+"/", time.Second, ratelimit.New(ratelimit.Windows(perMinute, 100, 100)))
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "neuraxon", q.Get("q"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "1", q.Get("no_html"))
		assert.Equal(t, "1", q.Get("skip_disambig"))
		_, _ = w.Write([]byte(ddgBody))
	}, 5)

	resp, err := c.Search(context.Background(), "1.1.1.1", "  neuraxon  ", 3)
	require.NoError(t, err)

	assert.Equal(t, "neuraxon", resp.Query)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, Result{Title: "Neuraxon", URL: "https://example.test/neuraxon", Snippet: "Neuraxon is a neural network model."}, resp.Results[0])
	assert.Equal(t, "Topic one", resp.Results[1].Title)
	assert.Equal(t, "Topic two", resp.Results[2].Title)
	assert.Equal(t, 3, resp.Count)
}

func TestSearch_TruncatesFields(t *testing.T) {
	long := strings.Repeat("z", 400)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Len(t, r.URL.Query().Get("q"), 200)
		_, _ = w.Write([]byte(`{"RelatedTopics":[{"Text":"` + long + `","FirstURL":"u"}]}`))
	}, 5)

	resp, err := c.Search(context.Background(), "a", strings.Repeat("q", 250), 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Len(t, resp.Results[0].Title, 100)
	assert.Len(t, resp.Results[0].Snippet, 300)
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no upstream call expected")
	}, 5)

	_, err := c.Search(context.Background(), "a", "   ", 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_RateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, 2)

	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), "a", "q", 5)
		require.NoError(t, err)
	}
	_, err := c.Search(context.Background(), "a", "q", 5)
	var le *LimitError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "Web search rate limit exceeded: 2 searches per minute", le.Error())

	_, err = c.Search(context.Background(), "b", "q", 5)
	assert.NoError(t, err)
}

func TestSearch_Upstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 5)

	_, err := c.Search(context.Background(), "a", "q", 5)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestSearch_NoResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"RelatedTopics":[]}`))
	}, 5)

	resp, err := c.Search(context.Background(), "a", "q", 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, "No web search results found.", Format(resp))
}

func TestFormat(t *testing.T) {
	out := Format(&Response{Results: []Result{{Title: "T", URL: "https://u", Snippet: "S"}}})
	assert.Equal(t, "Web search results:\n\n1. T\n   URL: https://u\n   S\n\n", out)
}
