package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medorbit/televisit/pkg/database"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/types"
)

// SessionRepository implements checkout session persistence
type SessionRepository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewSessionRepository creates a new checkout session repository
func NewSessionRepository(db *database.DB, log *logger.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: log,
	}
}

// Create persists a checkout session record
func (r *SessionRepository) Create(ctx context.Context, session *types.CheckoutSession) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	query := `
		INSERT INTO checkout_sessions (id, visit_id, user_id, mode, status, price_ref, url, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		nullableID(session.VisitID),
		session.UserID,
		session.Mode,
		session.Status,
		session.PriceRef,
		session.URL,
		metadata,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create checkout session: %w", err)
	}

	return nil
}

// GetByID retrieves a checkout session by its provider id
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.CheckoutSession, error) {
	query := `
		SELECT id, visit_id, user_id, mode, status, price_ref, url, metadata, created_at
		FROM checkout_sessions
		WHERE id = $1`

	session, err := r.scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("checkout session not found: %s", id))
		}
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}

	return session, nil
}

// ListByVisit retrieves all checkout sessions recorded for a visit, newest
// first
func (r *SessionRepository) ListByVisit(ctx context.Context, visitID string) ([]*types.CheckoutSession, error) {
	query := `
		SELECT id, visit_id, user_id, mode, status, price_ref, url, metadata, created_at
		FROM checkout_sessions
		WHERE visit_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, visitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.CheckoutSession
	for rows.Next() {
		session, err := r.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkout session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// MarkStatus records the latest resolved status of a session
func (r *SessionRepository) MarkStatus(ctx context.Context, id, status string) error {
	query := `UPDATE checkout_sessions SET status = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update checkout session status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("checkout session not found: %s", id))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SessionRepository) scanSession(row rowScanner) (*types.CheckoutSession, error) {
	session := &types.CheckoutSession{}
	var visitID sql.NullString
	var metadata []byte

	err := row.Scan(
		&session.ID,
		&visitID,
		&session.UserID,
		&session.Mode,
		&session.Status,
		&session.PriceRef,
		&session.URL,
		&metadata,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.VisitID = visitID.String

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session metadata: %w", err)
		}
	}

	return session, nil
}

func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
