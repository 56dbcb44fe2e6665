package domain

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Thread represents a conversation thread. At most one thread per owner
// is active at any time.
type Thread struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Tenant    string    `json:"tenant"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a chat message. Messages are append-only and ordered
// by CreatedAt within a thread.
type Message struct {
	ID        string   `json:"id"`
	ThreadID  string   `json:"thread_id"`
	Role      string   `json:"role"` // user, assistant, system
	Content   string   `json:"content"`
	Citations []string `json:"citations,omitempty"`
	// NewSection marks a message that starts a new visual turn. It is
	// derived when history is returned, not persisted.
	NewSection bool      `json:"new_section,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatRequest is the request to send a chat message
type ChatRequest struct {
	Message  string `json:"message" binding:"required"`
	ThreadID string `json:"thread_id,omitempty"`
	Tenant   string `json:"tenant,omitempty"`
	Deep     bool   `json:"deep,omitempty"`
}

// Stream event types
const (
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// Machine-readable error codes carried by terminal error events
const (
	ErrCodeUnreachable = "upstream_unreachable"
	ErrCodeRejected    = "upstream_rejected"
)

// StreamEvent is one event in a streamed chat response
type StreamEvent struct {
	Type      string   `json:"type"` // content, done, error
	Content   string   `json:"content,omitempty"`
	Citations []string `json:"citations,omitempty"`
	ThreadID  string   `json:"thread_id,omitempty"`
	Code      string   `json:"code,omitempty"`
}
