package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adavi-labs/practicegpt/internal/config"
	"github.com/adavi-labs/practicegpt/internal/domain"
	"github.com/adavi-labs/practicegpt/internal/llm"
	"github.com/adavi-labs/practicegpt/internal/repository"
	"github.com/adavi-labs/practicegpt/internal/retrieval"
)

type completionPayload struct {
	Stream   bool `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// streamHandler serves an SSE completion built from the given frames
func streamHandler(t *testing.T, frames ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func contentFrame(text string) string {
	return fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, text)
}

func newTestChatService(t *testing.T, primaryURL, secondaryURL string) (*ChatService, *repository.ThreadRepository, *repository.DocumentRepository) {
	t.Helper()

	db, err := repository.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	threads := repository.NewThreadRepository(db)
	documents := repository.NewDocumentRepository(db)
	settings := repository.NewSettingsRepository(db)

	cfg := &config.Config{}
	cfg.Retrieval.TopK = 4
	cfg.Chat.MaxTokens = 1000
	cfg.Chat.DeepMaxTokens = 2000
	cfg.Chat.HistoryLimit = 20

	svc := NewChatService(
		cfg,
		zap.NewNop(),
		threads,
		settings,
		retrieval.NewIndex(documents),
		retrieval.NewRemoteClient("", 0, zap.NewNop()),
		llm.NewBackend("primary", primaryURL, "", "gpt-test"),
		llm.NewBackend("secondary", secondaryURL, "", "llama-test"),
	)
	return svc, threads, documents
}

func drain(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestChatStreamPrimarySuccess(t *testing.T) {
	primary := httptest.NewServer(streamHandler(t, contentFrame("Hello"), contentFrame(" world")))
	defer primary.Close()

	svc, threads, _ := newTestChatService(t, primary.URL, "http://127.0.0.1:1")

	events, thread, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "hi there"})
	require.NoError(t, err)
	require.NotEmpty(t, thread.ID)

	got := drain(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, domain.EventContent, got[0].Type)
	assert.Equal(t, "Hello", got[0].Content)
	assert.Equal(t, " world", got[1].Content)
	assert.Equal(t, domain.EventDone, got[2].Type)
	assert.Equal(t, "Hello world", got[2].Content)
	assert.Equal(t, thread.ID, got[2].ThreadID)

	messages, err := threads.Messages(thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "hi there", messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Equal(t, "Hello world", messages[1].Content)
}

func TestChatStreamFailsOverToSecondary(t *testing.T) {
	secondary := httptest.NewServer(streamHandler(t, contentFrame("from secondary")))
	defer secondary.Close()

	// unreachable primary: nothing it produces may appear in the turn
	svc, threads, _ := newTestChatService(t, "http://127.0.0.1:1", secondary.URL)

	events, thread, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)

	got := drain(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, "from secondary", got[0].Content)
	assert.Equal(t, domain.EventDone, got[1].Type)
	assert.Equal(t, "from secondary", got[1].Content)

	messages, err := threads.Messages(thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "from secondary", messages[1].Content)
}

func TestChatStreamMidStreamRetrySameBackend(t *testing.T) {
	var streamCalls, completeCalls int
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload completionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		if payload.Stream {
			streamCalls++
			// partial content, then the connection drops without a
			// terminator
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprintf(w, "data: %s\n\n", contentFrame("partial "))
			return
		}
		completeCalls++
		fmt.Fprint(w, `{"choices":[{"message":{"content":"complete answer"}}]}`)
	}))
	defer primary.Close()

	svc, threads, _ := newTestChatService(t, primary.URL, "http://127.0.0.1:1")

	events, thread, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)

	got := drain(t, events)
	last := got[len(got)-1]
	assert.Equal(t, domain.EventDone, last.Type)
	assert.Equal(t, "complete answer", last.Content)
	assert.Equal(t, 1, streamCalls)
	assert.Equal(t, 1, completeCalls)

	// the interrupted stream's fragment must not leak into the record
	messages, err := threads.Messages(thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "complete answer", messages[1].Content)
}

func TestChatStreamAllTiersExhausted(t *testing.T) {
	svc, threads, _ := newTestChatService(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	events, thread, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)

	got := drain(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventError, got[0].Type)
	assert.Equal(t, domain.ErrCodeUnreachable, got[0].Code)

	// the turn still records an explanatory assistant message
	messages, err := threads.Messages(thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Contains(t, messages[1].Content, "unavailable")
}

func TestChatStreamRejectedCode(t *testing.T) {
	refuse := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer refuse.Close()

	svc, _, _ := newTestChatService(t, refuse.URL, refuse.URL)

	events, _, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)

	got := drain(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventError, got[0].Type)
	assert.Equal(t, domain.ErrCodeRejected, got[0].Code)
}

func TestChatStreamRetrievalAugmentsPrompt(t *testing.T) {
	var sawContext atomic.Bool
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload completionPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		for _, m := range payload.Messages {
			if m.Role == domain.RoleSystem && strings.Contains(m.Content, "RELEVANT DOCUMENTS") {
				sawContext.Store(true)
			}
		}
		streamHandler(t, contentFrame("ok"))(w, r)
	}))
	defer primary.Close()

	svc, _, documents := newTestChatService(t, primary.URL, "http://127.0.0.1:1")

	doc, err := documents.CreateDocument("alice", "botox-aftercare.txt")
	require.NoError(t, err)
	require.NoError(t, documents.InsertChunks("alice", doc.ID, "botox-aftercare.txt",
		[]string{"Avoid rubbing the treated area for 24 hours after botox."}))

	events, _, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "botox aftercare instructions"})
	require.NoError(t, err)

	got := drain(t, events)
	last := got[len(got)-1]
	require.Equal(t, domain.EventDone, last.Type)
	assert.True(t, sawContext.Load(), "system prompt should carry retrieved context")
	assert.Equal(t, []string{"botox-aftercare.txt"}, last.Citations)
}

func TestChatStreamMidStreamFunctionCall(t *testing.T) {
	frames := []string{
		contentFrame("Let me check. "),
		`{"choices":[{"delta":{"function_call":{"name":"search_practice_documents","arguments":"{\"query\":"}}}]}`,
		`{"choices":[{"delta":{"function_call":{"arguments":"\"laser pricing\"}"}}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"function_call"}]}`,
		contentFrame("Here is what I found."),
	}
	primary := httptest.NewServer(streamHandler(t, frames...))
	defer primary.Close()

	svc, threads, documents := newTestChatService(t, primary.URL, "http://127.0.0.1:1")

	doc, err := documents.CreateDocument("alice", "laser-pricing.txt")
	require.NoError(t, err)
	require.NoError(t, documents.InsertChunks("alice", doc.ID, "laser-pricing.txt",
		[]string{"Laser hair removal pricing starts at $150 per session."}))

	events, thread, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "hello", Deep: true})
	require.NoError(t, err)

	got := drain(t, events)
	last := got[len(got)-1]
	require.Equal(t, domain.EventDone, last.Type)
	assert.Contains(t, last.Content, "Based on practice documents")
	assert.Contains(t, last.Content, "Laser hair removal pricing")
	assert.Contains(t, last.Citations, "laser-pricing.txt")

	messages, err := threads.Messages(thread.ID)
	require.NoError(t, err)
	assert.Contains(t, messages[1].Content, "Based on practice documents")
}

func TestChatStreamExplicitThreadOwnership(t *testing.T) {
	svc, threads, _ := newTestChatService(t, "http://127.0.0.1:1", "http://127.0.0.1:1")

	thread, err := threads.Create("bob", "bob's thread", "amanda")
	require.NoError(t, err)

	_, _, err = svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "hi", ThreadID: thread.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatStreamReusesActiveThread(t *testing.T) {
	primary := httptest.NewServer(streamHandler(t, contentFrame("first")))
	defer primary.Close()

	svc, _, _ := newTestChatService(t, primary.URL, "http://127.0.0.1:1")

	events, first, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "one"})
	require.NoError(t, err)
	drain(t, events)

	events, second, err := svc.ChatStream(context.Background(), "alice",
		&domain.ChatRequest{Message: "two"})
	require.NoError(t, err)
	drain(t, events)

	assert.Equal(t, first.ID, second.ID)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "New Chat", deriveTitle("   "))
	assert.Equal(t, "short question", deriveTitle("short question"))

	long := strings.Repeat("a", 80)
	title := deriveTitle(long)
	assert.Equal(t, strings.Repeat("a", 50)+"...", title)
}
