package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func TestRemoteClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)

		var req remoteSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "owner-1", req.Filters.OwnerID)
		assert.Equal(t, 4, req.TopK)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": "c1", "content": "first", "score": 0.9, "filename": "a.txt", "chunk_index": 0},
				{"id": "c2", "content": "second", "score": 0.4, "filename": "b.txt", "chunk_index": 3},
			},
		})
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, time.Second, zap.NewNop())
	results := client.Search(context.Background(), "owner-1", "query", 4)

	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Text)
	assert.Equal(t, "a.txt", results[0].Filename)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
}

func TestRemoteClient_DegradesOnUnreachable(t *testing.T) {
	// server is closed immediately: connection refused
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewRemoteClient(srv.URL, time.Second, zap.NewNop())
	assert.Nil(t, client.Search(context.Background(), "owner-1", "query", 4))
}

func TestRemoteClient_DegradesOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRemoteClient(srv.URL, time.Second, zap.NewNop())
	assert.Nil(t, client.Search(context.Background(), "owner-1", "query", 4))
}

func TestRemoteClient_DegradesOnTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client := NewRemoteClient(srv.URL, 50*time.Millisecond, zap.NewNop())
	start := time.Now()
	assert.Nil(t, client.Search(context.Background(), "owner-1", "query", 4))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRemoteClient_Disabled(t *testing.T) {
	client := NewRemoteClient("", time.Second, zap.NewNop())
	assert.False(t, client.Enabled())
	assert.Nil(t, client.Search(context.Background(), "owner-1", "query", 4))
}
