// Package llm provides clients for OpenAI-compatible completion backends
// and the incremental decoder for their streamed responses.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

// Message is one entry of the conversation sent to a backend
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest holds the parameters of one completion call
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// EnableRetrievalTool advertises the document-search function to
	// the model so it can request retrieval mid-stream.
	EnableRetrievalTool bool
}

// functionDef mirrors the OpenAI function declaration wire format
type functionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

var retrievalFunction = functionDef{
	Name:        domain.RetrievalToolName,
	Description: "Search practice-specific documents for relevant information to answer user questions",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query for finding relevant practice documents",
			},
			"top_k": map[string]any{
				"type":        "number",
				"description": "Number of relevant documents to retrieve",
			},
		},
		"required": []string{"query"},
	},
}

type completionBody struct {
	Model        string        `json:"model,omitempty"`
	Messages     []Message     `json:"messages"`
	Temperature  float64       `json:"temperature"`
	MaxTokens    int           `json:"max_tokens"`
	Stream       bool          `json:"stream"`
	Functions    []functionDef `json:"functions,omitempty"`
	FunctionCall string        `json:"function_call,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Backend is a client for one OpenAI-compatible completion backend
type Backend struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// responseHeaderTimeout bounds the wait for response headers so a
// backend that accepts the connection but never answers still fails
// over. Streamed bodies stay unbounded; the caller's context governs
// them.
var responseHeaderTimeout = 30 * time.Second

// NewBackend creates a completion backend client. Connect and
// time-to-first-header are bounded; streamed bodies are read without a
// deadline and bounded by the caller's context.
func NewBackend(name, baseURL, apiKey, model string) *Backend {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = responseHeaderTimeout
	return &Backend{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client: &http.Client{
			Transport: transport,
			Timeout:   0,
		},
	}
}

// Name returns the backend's configured name
func (b *Backend) Name() string { return b.name }

// StreamReader couples a decoder to its underlying response body
type StreamReader struct {
	*Decoder
	body io.Closer
}

// Close releases the upstream connection
func (s *StreamReader) Close() error { return s.body.Close() }

// Stream opens a streaming completion. The returned reader must be
// closed by the caller. Errors are classified as *BackendError.
func (b *Backend) Stream(ctx context.Context, req CompletionRequest) (*StreamReader, error) {
	resp, err := b.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &StreamReader{Decoder: NewDecoder(resp.Body), body: resp.Body}, nil
}

// Complete performs a non-streaming completion and returns the full
// response content.
func (b *Backend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := b.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response carried no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (b *Backend) post(ctx context.Context, req CompletionRequest, stream bool) (*http.Response, error) {
	body := completionBody{
		Model:       b.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.EnableRetrievalTool {
		body.Functions = []functionDef{retrievalFunction}
		body.FunctionCall = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Backend: b.name, Kind: TransportUnavailable, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &BackendError{Backend: b.name, Kind: UpstreamRejected, Status: resp.StatusCode}
	}
	return resp, nil
}
