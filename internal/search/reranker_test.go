package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeRerankerServer(t *testing.T, scores []float64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Query)

		var resp rerankResponse
		for i := range req.Documents {
			score := 0.0
			if i < len(scores) {
				score = scores[i]
			}
			resp.Results = append(resp.Results, struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{Index: i, Score: score})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRerankerScoresDocuments(t *testing.T) {
	srv := newFakeRerankerServer(t, []float64{0.2, 0.9})

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Available(context.Background()))

	results, err := r.Rerank(context.Background(), "退款政策", []string{"文档一", "文档二"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 0, results[0].Index)
	assert.InDelta(t, 0.2, results[0].Score, 1e-9)
	assert.Equal(t, 1, results[1].Index)
	assert.InDelta(t, 0.9, results[1].Score, 1e-9)
}

func TestHTTPRerankerEmptyDocuments(t *testing.T) {
	srv := newFakeRerankerServer(t, nil)

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "退款", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHTTPRerankerHealthCheckFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check")
}

func TestHTTPRerankerClosedRejects(t *testing.T) {
	srv := newFakeRerankerServer(t, nil)

	r, err := NewHTTPReranker(context.Background(), HTTPRerankerConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Rerank(context.Background(), "退款", []string{"文档"})
	require.Error(t, err)
	assert.False(t, r.Available(context.Background()))
}

func TestNoopRerankerNeverAvailable(t *testing.T) {
	var r NoopReranker

	assert.False(t, r.Available(context.Background()))
	results, err := r.Rerank(context.Background(), "退款", []string{"文档"})
	require.NoError(t, err)
	assert.Empty(t, results)
	require.NoError(t, r.Close())
}
