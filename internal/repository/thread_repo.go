package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

// ThreadRepository handles thread and message persistence
type ThreadRepository struct {
	db *DB
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// Create creates a new active thread. All of the owner's other threads
// are deactivated in the same transaction so that at most one thread per
// owner is active.
func (r *ThreadRepository) Create(ownerID, title, tenant string) (*domain.Thread, error) {
	if tenant == "" {
		tenant = domain.DefaultTenant
	}
	thread := &domain.Thread{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     title,
		Tenant:    tenant,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE threads SET is_active = 0 WHERE owner_id = ? AND is_active = 1`, ownerID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`
		INSERT INTO threads (id, owner_id, title, tenant, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, thread.ID, thread.OwnerID, thread.Title, thread.Tenant, thread.CreatedAt, thread.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetActive returns the owner's active thread, or nil when none exists
func (r *ThreadRepository) GetActive(ownerID string) (*domain.Thread, error) {
	return r.scanOne(`
		SELECT id, owner_id, title, tenant, is_active, created_at, updated_at
		FROM threads WHERE owner_id = ? AND is_active = 1
	`, ownerID)
}

// Get returns a thread by id, verifying ownership
func (r *ThreadRepository) Get(threadID, ownerID string) (*domain.Thread, error) {
	return r.scanOne(`
		SELECT id, owner_id, title, tenant, is_active, created_at, updated_at
		FROM threads WHERE id = ? AND owner_id = ?
	`, threadID, ownerID)
}

// List returns the owner's threads, most recently updated first
func (r *ThreadRepository) List(ownerID string) ([]*domain.Thread, error) {
	rows, err := r.db.Query(`
		SELECT id, owner_id, title, tenant, is_active, created_at, updated_at
		FROM threads WHERE owner_id = ?
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []*domain.Thread
	for rows.Next() {
		thread := &domain.Thread{}
		if err := rows.Scan(&thread.ID, &thread.OwnerID, &thread.Title, &thread.Tenant,
			&thread.IsActive, &thread.CreatedAt, &thread.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

// SetActive activates a thread after deactivating all of the owner's
// threads in the same transaction. Returns domain.ErrNotFound when the
// thread does not exist or belongs to another owner.
func (r *ThreadRepository) SetActive(threadID, ownerID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE threads SET is_active = 0 WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	res, err := tx.Exec(`UPDATE threads SET is_active = 1 WHERE id = ? AND owner_id = ?`, threadID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

// Delete removes a thread after verifying ownership; messages cascade
func (r *ThreadRepository) Delete(threadID, ownerID string) error {
	res, err := r.db.Exec(`DELETE FROM threads WHERE id = ? AND owner_id = ?`, threadID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendMessage appends a message to a thread and bumps the thread's
// updated_at timestamp.
func (r *ThreadRepository) AppendMessage(threadID, role, content string, citations []string) (*domain.Message, error) {
	message := &domain.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		Citations: citations,
		CreatedAt: time.Now(),
	}

	var citationsJSON []byte
	if len(citations) > 0 {
		citationsJSON, _ = json.Marshal(citations)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, thread_id, role, content, citations, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, message.ID, message.ThreadID, message.Role, message.Content,
		nullableString(citationsJSON), message.CreatedAt); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`UPDATE threads SET updated_at = ? WHERE id = ?`, time.Now(), threadID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return message, nil
}

// Messages returns all messages of a thread ordered by creation time
func (r *ThreadRepository) Messages(threadID string) ([]domain.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, thread_id, role, content, citations, created_at
		FROM messages WHERE thread_id = ?
		ORDER BY created_at ASC
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var message domain.Message
		var citationsJSON sql.NullString
		if err := rows.Scan(&message.ID, &message.ThreadID, &message.Role,
			&message.Content, &citationsJSON, &message.CreatedAt); err != nil {
			return nil, err
		}
		if citationsJSON.Valid && citationsJSON.String != "" {
			json.Unmarshal([]byte(citationsJSON.String), &message.Citations)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (r *ThreadRepository) scanOne(query string, args ...any) (*domain.Thread, error) {
	thread := &domain.Thread{}
	err := r.db.QueryRow(query, args...).Scan(&thread.ID, &thread.OwnerID, &thread.Title,
		&thread.Tenant, &thread.IsActive, &thread.CreatedAt, &thread.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return thread, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
