package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

// DefaultRemoteTimeout bounds one retrieval microservice call
const DefaultRemoteTimeout = 15 * time.Second

// RemoteClient talks to the optional retrieval microservice. Absence or
// unreachability of the service never fails a turn: Search degrades to an
// empty result set.
type RemoteClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewRemoteClient creates a client for the retrieval microservice.
// An empty baseURL yields a disabled client whose Search always returns
// no results.
func NewRemoteClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RemoteClient {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteClient{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Enabled reports whether a service URL is configured
func (c *RemoteClient) Enabled() bool {
	return c.baseURL != ""
}

type remoteSearchRequest struct {
	Query   string        `json:"query"`
	TopK    int           `json:"top_k"`
	Filters remoteFilters `json:"filters"`
}

type remoteFilters struct {
	OwnerID string `json:"owner_id"`
}

type remoteSearchResponse struct {
	Results []struct {
		ID         string  `json:"id"`
		Content    string  `json:"content"`
		Score      float64 `json:"score"`
		Filename   string  `json:"filename"`
		ChunkIndex int     `json:"chunk_index"`
	} `json:"results"`
}

// Search queries the microservice, bounded by the configured ceiling.
// Timeouts, transport failures and error statuses are logged and degrade
// to an empty result set.
func (c *RemoteClient) Search(ctx context.Context, ownerID, query string, topK int) []domain.RetrievalResult {
	if !c.Enabled() || topK <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(remoteSearchRequest{
		Query:   query,
		TopK:    topK,
		Filters: remoteFilters{OwnerID: ownerID},
	})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("retrieval service unreachable, falling back to local search", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("retrieval service rejected request",
			zap.Int("status", resp.StatusCode))
		return nil
	}

	var parsed remoteSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Warn("retrieval service returned malformed response", zap.Error(err))
		return nil
	}

	results := make([]domain.RetrievalResult, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("remote-%d", i)
		}
		results = append(results, domain.RetrievalResult{
			ChunkID:    id,
			Text:       r.Content,
			Score:      r.Score,
			Filename:   r.Filename,
			ChunkIndex: r.ChunkIndex,
		})
	}
	return results
}
