package reranker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/internal/adapter"
	"github.com/RideMatch1/neuraxon-viz/internal/adapter/reranker"
)

func rerankServer(t *testing.T, key string, check func(body map[string]interface{})) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "Bearer "+key, r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		check(body)

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 1, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.8},
				{"index": 7, "relevance_score": 0.1},
			},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Rerank_Jina(t *testing.T) {
	ts := rerankServer(t, "k1", func(body map[string]interface{}) {
		assert.Equal(t, "q", body["query"])
		assert.NotContains(t, body, "top_n")
	})

	client := reranker.NewClient(reranker.ProviderJina, "k1")
	client.SetBaseURL(ts.URL + "/v1/rerank")

	indices, err := client.Rerank(context.Background(), "q", []string{"d1", "d2"})
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 0}, indices)
}

func TestClient_Rerank_Cohere(t *testing.T) {
	ts := rerankServer(t, "k2", func(body map[string]interface{}) {
		assert.EqualValues(t, 2, body["top_n"])
		assert.Equal(t, false, body["return_documents"])
	})

	client := reranker.NewClient(reranker.ProviderCohere, "k2")
	client.SetBaseURL(ts.URL + "/v1/rerank")

	indices, err := client.Rerank(context.Background(), "q", []string{"d1", "d2"})
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 0}, indices)
}

func TestClient_Rerank_None(t *testing.T) {
	assert.False(t, reranker.Enabled("none"))
	assert.False(t, reranker.Enabled(""))
	assert.True(t, reranker.Enabled("jina"))

	client := reranker.NewClient("none", "")
	indices, err := client.Rerank(context.Background(), "q", []string{"d1", "d2"})
	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1}, indices)
}

func TestClient_Rerank_ErrorHandling(t *testing.T) {
	t.Run("client error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"invalid query"}`))
		}))
		defer ts.Close()

		client := reranker.NewClient(reranker.ProviderJina, "k1")
		client.SetBaseURL(ts.URL)

		_, err := client.Rerank(context.Background(), "q", []string{"d1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jina api error: 400")
		assert.Contains(t, err.Error(), `{"detail":"invalid query"}`)
		assert.False(t, adapter.IsTransient(err))
	})

	t.Run("rate limited", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer ts.Close()

		client := reranker.NewClient(reranker.ProviderCohere, "k1")
		client.SetBaseURL(ts.URL)

		_, err := client.Rerank(context.Background(), "q", []string{"d1"})
		assert.True(t, adapter.IsTransient(err))
	})
}
