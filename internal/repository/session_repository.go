package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vpn-assistant/internal/database"
	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/domain/dto"
)

const (
	getSessionQuery = `
SELECT chat_id, state, total, current_device, platforms, created_at, updated_at
  FROM dialogue_sessions
 WHERE chat_id = $1
   AND updated_at > $2;`

	upsertSessionQuery = `
INSERT INTO dialogue_sessions (chat_id, state, total, current_device, platforms, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
    ON CONFLICT (chat_id) DO UPDATE
   SET state = EXCLUDED.state,
       total = EXCLUDED.total,
       current_device = EXCLUDED.current_device,
       platforms = EXCLUDED.platforms,
       updated_at = EXCLUDED.updated_at;`

	deleteSessionQuery = `DELETE FROM dialogue_sessions WHERE chat_id = $1;`

	deleteExpiredSessionsQuery = `DELETE FROM dialogue_sessions WHERE updated_at <= $1;`
)

// SessionRepository persists dialogue states in PostgreSQL so enrollments
// survive a restart.
type SessionRepository struct {
	db  database.DB
	ttl time.Duration
	now func() time.Time
}

// NewSessionRepository creates a new session repository instance
func NewSessionRepository(db database.DB, ttl time.Duration) *SessionRepository {
	if db == nil {
		panic("database cannot be nil")
	}

	return &SessionRepository{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the chat's state, or StateStart when unknown or expired
func (r *SessionRepository) Get(ctx context.Context, chatID int64) (domain.SessionState, error) {
	row := &dto.DialogueSession{}
	err := r.db.QueryRowStruct(ctx, row, getSessionQuery, chatID, r.now().Add(-r.ttl).UTC())
	if database.NotFound(err) {
		return domain.StateStart{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return decodeState(row)
}

// Set stores the chat's state. Storing StateStart deletes the row.
func (r *SessionRepository) Set(ctx context.Context, chatID int64, state domain.SessionState) error {
	if _, idle := state.(domain.StateStart); idle || state == nil {
		return r.Clear(ctx, chatID)
	}

	row := encodeState(chatID, state)
	_, err := r.db.Exec(ctx, upsertSessionQuery, row.ChatID, row.State, row.Total, row.Current, row.Platforms, r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear deletes the chat's session
func (r *SessionRepository) Clear(ctx context.Context, chatID int64) error {
	if _, err := r.db.Exec(ctx, deleteSessionQuery, chatID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Sweep deletes expired sessions and returns how many were removed
func (r *SessionRepository) Sweep(ctx context.Context) (int64, error) {
	removed, err := r.db.Exec(ctx, deleteExpiredSessionsQuery, r.now().Add(-r.ttl).UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return removed, nil
}

func encodeState(chatID int64, state domain.SessionState) dto.DialogueSession {
	row := dto.DialogueSession{
		ChatID:    chatID,
		State:     state.Name(),
		Platforms: []string{},
	}

	if info, ok := state.(domain.StateReceiveDeviceInfo); ok {
		row.Total = info.Total
		row.Current = info.Current
		row.Platforms = append(row.Platforms, info.Platforms...)
	}

	return row
}

func decodeState(row *dto.DialogueSession) (domain.SessionState, error) {
	switch row.State {
	case domain.StateNameStart:
		return domain.StateStart{}, nil
	case domain.StateNameReceiveDeviceCount:
		return domain.StateReceiveDeviceCount{}, nil
	case domain.StateNameReceiveDeviceInfo:
		if row.Total < 1 || row.Total > domain.MaxDevices || row.Current < 1 || row.Current > row.Total || len(row.Platforms) != row.Current-1 {
			return nil, errors.New("stored enrollment progress is inconsistent")
		}

		platforms := make([]string, len(row.Platforms))
		copy(platforms, row.Platforms)
		return domain.StateReceiveDeviceInfo{Total: row.Total, Current: row.Current, Platforms: platforms}, nil
	default:
		return nil, fmt.Errorf("unknown session state %q", row.State)
	}
}
