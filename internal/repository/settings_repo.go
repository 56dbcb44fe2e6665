package repository

import (
	"database/sql"
	"time"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

// UserSettings holds per-owner assistant settings. They live in the
// store, not in process memory, so they survive restarts and never leak
// across requests.
type UserSettings struct {
	OwnerID      string `json:"owner_id"`
	EnableRAG    bool   `json:"enable_rag"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Tenant       string `json:"tenant"`
}

// SettingsRepository handles user settings persistence
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the owner's settings, with defaults when none are stored
func (r *SettingsRepository) Get(ownerID string) (*UserSettings, error) {
	settings := &UserSettings{OwnerID: ownerID}
	var systemPrompt sql.NullString

	err := r.db.QueryRow(`
		SELECT enable_rag, system_prompt, tenant
		FROM user_settings WHERE owner_id = ?
	`, ownerID).Scan(&settings.EnableRAG, &systemPrompt, &settings.Tenant)

	if err == sql.ErrNoRows {
		settings.EnableRAG = true
		settings.Tenant = domain.DefaultTenant
		return settings, nil
	}
	if err != nil {
		return nil, err
	}

	if systemPrompt.Valid {
		settings.SystemPrompt = systemPrompt.String
	}
	return settings, nil
}

// Update upserts the owner's settings
func (r *SettingsRepository) Update(settings *UserSettings) error {
	if settings.Tenant == "" {
		settings.Tenant = domain.DefaultTenant
	}
	_, err := r.db.Exec(`
		INSERT INTO user_settings (owner_id, enable_rag, system_prompt, tenant, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			enable_rag = excluded.enable_rag,
			system_prompt = excluded.system_prompt,
			tenant = excluded.tenant,
			updated_at = excluded.updated_at
	`, settings.OwnerID, settings.EnableRAG, settings.SystemPrompt, settings.Tenant, time.Now())
	return err
}
