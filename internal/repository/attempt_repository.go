package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/cvtailor/internal/models"
)

const (
	AttemptInitiated  = "initiated"
	AttemptRedirected = "redirected"
	AttemptFailed     = "failed"
)

// AttemptRepository journals top-up attempts for operators. It never stores
// gateway session data or balances.
type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *models.TopUpAttempt) error {
	const query = `
INSERT INTO top_up_attempts (attempt_id, session_key, plan_slug, gateway, status, detail)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, attempt.AttemptID, attempt.SessionKey, attempt.PlanSlug, string(attempt.Gateway), attempt.Status, attempt.Detail)
	if err != nil {
		return fmt.Errorf("insert top-up attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	attempt.ID = id
	return nil
}

func (r *AttemptRepository) UpdateStatus(ctx context.Context, attemptID, status, detail string) error {
	const query = `UPDATE top_up_attempts SET status = ?, detail = NULLIF(?, ''), updated_at = NOW() WHERE attempt_id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, detail, attemptID); err != nil {
		return fmt.Errorf("update top-up attempt: %w", err)
	}
	return nil
}

// ListRecent returns the latest attempts of a session, newest first.
func (r *AttemptRepository) ListRecent(ctx context.Context, sessionKey string, limit int) ([]models.TopUpAttempt, error) {
	const query = `
SELECT id, attempt_id, session_key, plan_slug, gateway, status, COALESCE(detail, ''), created_at, COALESCE(updated_at, created_at)
FROM top_up_attempts
WHERE session_key = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list top-up attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.TopUpAttempt
	for rows.Next() {
		var a models.TopUpAttempt
		var gateway string
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.SessionKey, &a.PlanSlug, &gateway, &a.Status, &a.Detail, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan top-up attempt: %w", err)
		}
		a.Gateway = models.Gateway(gateway)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
