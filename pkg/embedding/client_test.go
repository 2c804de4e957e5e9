package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-assist-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(config.EmbeddingConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
	})
}

func TestCreateEmbeddingsBatchesOneRequest(t *testing.T) {
	calls := 0
	_, client := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 3)

		// 服务端返回顺序与 index 归位无关
		_, _ = w.Write([]byte(`{"data":[
			{"index":2,"embedding":[0.3]},
			{"index":0,"embedding":[0.1]},
			{"index":1,"embedding":[0.2]}
		]}`))
	})

	vectors, err := client.CreateEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0.1}, vectors[0])
	assert.Equal(t, []float32{0.2}, vectors[1])
	assert.Equal(t, []float32{0.3}, vectors[2])
	assert.Equal(t, 1, calls)
}

func TestCreateEmbeddingDelegatesToBatch(t *testing.T) {
	_, client := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,0.6]}]}`))
	})

	vector, err := client.CreateEmbedding(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, vector)
}

func TestCreateEmbeddingsRejectsCountMismatch(t *testing.T) {
	_, client := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1]}]}`))
	})

	_, err := client.CreateEmbeddings(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 vectors for 2 inputs")
}

func TestCreateEmbeddingsRejectsErrorStatus(t *testing.T) {
	_, client := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.CreateEmbeddings(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-200")
}

func TestCreateEmbeddingsRejectsEmptyInput(t *testing.T) {
	_, client := newEmbeddingServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called")
	})

	_, err := client.CreateEmbeddings(context.Background(), nil)
	assert.Error(t, err)
}
