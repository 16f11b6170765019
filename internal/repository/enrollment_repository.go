package repository

import (
	"context"
	"errors"
	"fmt"

	"vpn-assistant/internal/database"
	"vpn-assistant/internal/domain"
	"vpn-assistant/internal/domain/dto"
)

const (
	insertEnrollmentQuery = `
INSERT INTO provisioned_clients (chat_id, user_id, platform, client_id, sub_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	listEnrollmentsQuery = `
SELECT id, chat_id, user_id, platform, client_id, sub_url, created_at
  FROM provisioned_clients
 WHERE user_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2;`
)

// EnrollmentRepository keeps the audit trail of clients created by the bot
type EnrollmentRepository struct {
	db database.DB
}

// NewEnrollmentRepository creates a new enrollment repository instance
func NewEnrollmentRepository(db database.DB) *EnrollmentRepository {
	if db == nil {
		panic("database cannot be nil")
	}

	return &EnrollmentRepository{db: db}
}

// Record appends one created client to the audit trail
func (r *EnrollmentRepository) Record(ctx context.Context, entry domain.EnrollmentEntry) error {
	if entry.ClientID == "" {
		return errors.New("client id cannot be empty")
	}

	_, err := r.db.Exec(ctx, insertEnrollmentQuery,
		entry.ChatID,
		entry.UserID,
		entry.Platform,
		entry.ClientID,
		entry.SubURL,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record enrollment: %w", err)
	}
	return nil
}

// RecentByUser lists the latest clients created for a user, newest first
func (r *EnrollmentRepository) RecentByUser(ctx context.Context, userID int64, limit int) ([]domain.EnrollmentEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []dto.ProvisionedClient
	if err := r.db.QueryStruct(ctx, &rows, listEnrollmentsQuery, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	entries := make([]domain.EnrollmentEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.EnrollmentEntry{
			ChatID:    row.ChatID,
			UserID:    row.UserID,
			Platform:  row.Platform,
			ClientID:  row.ClientID,
			SubURL:    row.SubURL,
			CreatedAt: row.CreatedAt,
		})
	}

	return entries, nil
}
