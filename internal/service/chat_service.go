package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/adavi-labs/practicegpt/internal/config"
	"github.com/adavi-labs/practicegpt/internal/domain"
	"github.com/adavi-labs/practicegpt/internal/llm"
	"github.com/adavi-labs/practicegpt/internal/prompt"
	"github.com/adavi-labs/practicegpt/internal/repository"
	"github.com/adavi-labs/practicegpt/internal/retrieval"
)

// unavailableMessage keeps the conversation coherent when every
// completion tier has failed: the turn still gets an assistant message.
const unavailableMessage = "The assistant service is currently unavailable. Please try again in a moment."

// contextInsertionHeader marks retrieval results folded into the visible
// content after a mid-stream function call.
const contextInsertionHeader = "\n\n**Based on practice documents:**\n"

// titleLimit bounds thread titles derived from the first user message
const titleLimit = 50

// completionTier is one strategy in the ordered fallback list
type completionTier struct {
	backend   *llm.Backend
	request   llm.CompletionRequest
	citations []string
}

// midStreamError marks a failure after the streaming connection opened.
// It triggers a non-streaming retry of the same backend instead of a
// tier switch.
type midStreamError struct {
	err error
}

func (e *midStreamError) Error() string { return fmt.Sprintf("stream interrupted: %v", e.err) }
func (e *midStreamError) Unwrap() error { return e.err }

// ChatService orchestrates multi-tier streaming completions
type ChatService struct {
	cfg       *config.Config
	logger    *zap.Logger
	threads   *repository.ThreadRepository
	settings  *repository.SettingsRepository
	index     *retrieval.Index
	remote    *retrieval.RemoteClient
	primary   *llm.Backend
	secondary *llm.Backend

	// recent-history buffer seeding the next turn's prior messages,
	// capped per owner to bound prompt growth
	historyMu sync.Mutex
	history   map[string][]llm.Message
}

// NewChatService creates a new chat service
func NewChatService(
	cfg *config.Config,
	logger *zap.Logger,
	threads *repository.ThreadRepository,
	settings *repository.SettingsRepository,
	index *retrieval.Index,
	remote *retrieval.RemoteClient,
	primary, secondary *llm.Backend,
) *ChatService {
	return &ChatService{
		cfg:       cfg,
		logger:    logger,
		threads:   threads,
		settings:  settings,
		index:     index,
		remote:    remote,
		primary:   primary,
		secondary: secondary,
		history:   make(map[string][]llm.Message),
	}
}

// Thread returns a thread with its messages, section-flagged for
// rendering. Ownership is verified.
func (s *ChatService) Thread(threadID, ownerID string) (*domain.Thread, []domain.Message, error) {
	thread, err := s.threads.Get(threadID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if thread == nil {
		return nil, nil, domain.ErrNotFound
	}
	messages, err := s.threads.Messages(threadID)
	if err != nil {
		return nil, nil, err
	}
	return thread, domain.FlagSections(messages), nil
}

// ChatStream runs one chat turn. It resolves the thread, persists the
// user message, then drives the completion tiers, emitting content
// deltas on the returned channel followed by one done event, or one
// error event when all tiers exhaust. The channel is closed when the
// turn ends.
func (s *ChatService) ChatStream(ctx context.Context, ownerID string, req *domain.ChatRequest) (<-chan domain.StreamEvent, *domain.Thread, error) {
	settings, err := s.settings.Get(ownerID)
	if err != nil {
		return nil, nil, err
	}

	tenant := req.Tenant
	if tenant == "" {
		tenant = settings.Tenant
	}
	persona := domain.GetPersona(tenant)
	basePrompt := persona.SystemPrompt
	if settings.SystemPrompt != "" {
		basePrompt = settings.SystemPrompt
	}

	thread, err := s.resolveThread(ownerID, req)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.threads.AppendMessage(thread.ID, domain.RoleUser, req.Message, nil); err != nil {
		return nil, nil, err
	}

	// pre-fetched retrieval context, only when enabled for this owner
	var results []domain.RetrievalResult
	if settings.EnableRAG {
		results = s.retrieve(ctx, ownerID, req.Message, s.cfg.Retrieval.TopK)
	}
	augmentedPrompt, citations := prompt.Assemble(basePrompt, results)

	maxTokens := s.cfg.Chat.MaxTokens
	if req.Deep {
		maxTokens = s.cfg.Chat.DeepMaxTokens
	}

	prior := s.priorMessages(ownerID)
	userTurn := llm.Message{Role: domain.RoleUser, Content: req.Message}

	tiers := []completionTier{
		{
			backend: s.primary,
			request: llm.CompletionRequest{
				Messages:            buildMessages(augmentedPrompt, prior, userTurn),
				Temperature:         persona.Temperature,
				MaxTokens:           maxTokens,
				EnableRetrievalTool: req.Deep,
			},
			citations: citations,
		},
		{
			// secondary runs without retrieval augmentation
			backend: s.secondary,
			request: llm.CompletionRequest{
				Messages:    buildMessages(basePrompt, prior, userTurn),
				Temperature: persona.Temperature,
				MaxTokens:   maxTokens,
			},
		},
	}

	events := make(chan domain.StreamEvent, 64)
	go s.run(ctx, events, ownerID, thread, req.Message, tiers)
	return events, thread, nil
}

// run drives the tier fallback loop and owns the turn's stream session
func (s *ChatService) run(ctx context.Context, events chan<- domain.StreamEvent, ownerID string, thread *domain.Thread, userMessage string, tiers []completionTier) {
	defer close(events)

	var lastErr error
	for _, tier := range tiers {
		content, citations, err := s.streamTier(ctx, events, ownerID, tier)
		if err == nil {
			s.finish(ctx, events, ownerID, thread, userMessage, content, citations)
			return
		}
		if ctx.Err() != nil {
			// aborted turn: release upstream, persist nothing
			return
		}

		var mid *midStreamError
		if errors.As(err, &mid) {
			// the stream broke after the connection opened: retry the
			// same backend once without streaming
			s.logger.Warn("stream interrupted, retrying backend without streaming",
				zap.String("backend", tier.backend.Name()), zap.Error(err))
			full, cerr := tier.backend.Complete(ctx, tier.request)
			if cerr == nil {
				events <- domain.StreamEvent{Type: domain.EventContent, Content: full}
				s.finish(ctx, events, ownerID, thread, userMessage, full, tier.citations)
				return
			}
			lastErr = cerr
			continue
		}

		s.logger.Warn("completion tier failed, trying next",
			zap.String("backend", tier.backend.Name()), zap.Error(err))
		lastErr = err
	}

	// all tiers exhausted
	code := domain.ErrCodeUnreachable
	if llm.IsUpstreamRejected(lastErr) {
		code = domain.ErrCodeRejected
	}
	s.logger.Error("all completion tiers exhausted", zap.Error(lastErr))

	if ctx.Err() == nil {
		if _, err := s.threads.AppendMessage(thread.ID, domain.RoleAssistant, unavailableMessage, nil); err != nil {
			s.logger.Error("failed to persist failure message", zap.Error(err))
		}
	}
	events <- domain.StreamEvent{Type: domain.EventError, Content: unavailableMessage, Code: code, ThreadID: thread.ID}
}

// streamTier attempts one streaming completion. Content deltas are
// emitted as they arrive; the accumulated content of a failed tier is
// discarded by the caller, never merged into the next tier's response.
func (s *ChatService) streamTier(ctx context.Context, events chan<- domain.StreamEvent, ownerID string, tier completionTier) (string, []string, error) {
	stream, err := tier.backend.Stream(ctx, tier.request)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var accumulated strings.Builder
	citations := tier.citations

	for {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		ev, err := stream.Next()
		if err != nil {
			return "", nil, &midStreamError{err: err}
		}

		switch ev.Kind {
		case llm.EventContent:
			accumulated.WriteString(ev.Text)
			events <- domain.StreamEvent{Type: domain.EventContent, Content: ev.Text}
		case llm.EventFunctionCall:
			if ev.Name != domain.RetrievalToolName {
				continue
			}
			// content accumulation pauses while retrieval runs, then the
			// results are folded into the visible content
			insertion, extra := s.toolRetrieval(ctx, ownerID, ev.Arguments)
			if insertion != "" {
				accumulated.WriteString(insertion)
				events <- domain.StreamEvent{Type: domain.EventContent, Content: insertion}
				citations = mergeCitations(citations, extra)
			}
		case llm.EventDone:
			return accumulated.String(), citations, nil
		}
	}
}

// finish persists the assistant message exactly once and emits the
// terminal done event. An aborted turn persists nothing.
func (s *ChatService) finish(ctx context.Context, events chan<- domain.StreamEvent, ownerID string, thread *domain.Thread, userMessage, content string, citations []string) {
	if ctx.Err() != nil {
		return
	}

	if _, err := s.threads.AppendMessage(thread.ID, domain.RoleAssistant, content, citations); err != nil {
		// already-streamed content has been delivered; report the
		// persistence failure without clawing tokens back
		s.logger.Error("failed to persist assistant message", zap.Error(err))
		events <- domain.StreamEvent{Type: domain.EventError, Content: "failed to save response", Code: "persistence_failure", ThreadID: thread.ID}
		return
	}

	s.appendHistory(ownerID, userMessage, content)
	events <- domain.StreamEvent{Type: domain.EventDone, Content: content, Citations: citations, ThreadID: thread.ID}
}

// resolveThread verifies an explicit thread id or falls back to the
// owner's active thread, creating one when none exists.
func (s *ChatService) resolveThread(ownerID string, req *domain.ChatRequest) (*domain.Thread, error) {
	if req.ThreadID != "" {
		thread, err := s.threads.Get(req.ThreadID, ownerID)
		if err != nil {
			return nil, err
		}
		if thread == nil {
			return nil, domain.ErrNotFound
		}
		return thread, nil
	}

	thread, err := s.threads.GetActive(ownerID)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		return thread, nil
	}
	return s.threads.Create(ownerID, deriveTitle(req.Message), req.Tenant)
}

// retrieve prefers the remote retrieval service and falls back to the
// in-process index when it is absent or yields nothing.
func (s *ChatService) retrieve(ctx context.Context, ownerID, query string, topK int) []domain.RetrievalResult {
	if topK <= 0 {
		return nil
	}
	if s.remote != nil && s.remote.Enabled() {
		if results := s.remote.Search(ctx, ownerID, query, topK); len(results) > 0 {
			return results
		}
	}
	results, err := s.index.Search(ownerID, query, topK)
	if err != nil {
		s.logger.Warn("local retrieval failed", zap.Error(err))
		return nil
	}
	return results
}

// toolRetrieval serves a mid-stream retrieval function call and formats
// the results as a marked context insertion.
func (s *ChatService) toolRetrieval(ctx context.Context, ownerID, arguments string) (string, []string) {
	var args struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Query == "" {
		s.logger.Warn("malformed retrieval function call", zap.Error(err))
		return "", nil
	}
	if args.TopK <= 0 {
		args.TopK = s.cfg.Retrieval.TopK
	}

	results := s.retrieve(ctx, ownerID, args.Query, args.TopK)
	if len(results) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(contextInsertionHeader)
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Text)
	}
	return b.String(), prompt.Citations(results)
}

func (s *ChatService) priorMessages(ownerID string) []llm.Message {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	buffer := s.history[ownerID]
	out := make([]llm.Message, len(buffer))
	copy(out, buffer)
	return out
}

func (s *ChatService) appendHistory(ownerID, userMessage, assistantMessage string) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	buffer := append(s.history[ownerID],
		llm.Message{Role: domain.RoleUser, Content: userMessage},
		llm.Message{Role: domain.RoleAssistant, Content: assistantMessage},
	)
	limit := s.cfg.Chat.HistoryLimit
	if limit > 0 && len(buffer) > limit {
		buffer = buffer[len(buffer)-limit:]
	}
	s.history[ownerID] = buffer
}

func buildMessages(systemPrompt string, prior []llm.Message, userTurn llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(prior)+2)
	messages = append(messages, llm.Message{Role: domain.RoleSystem, Content: systemPrompt})
	messages = append(messages, prior...)
	return append(messages, userTurn)
}

func deriveTitle(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) == 0 {
		return "New Chat"
	}
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return string(runes)
}

func mergeCitations(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[c] = struct{}{}
	}
	for _, c := range extra {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		existing = append(existing, c)
	}
	return existing
}
