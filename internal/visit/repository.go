package visit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/medorbit/televisit/pkg/database"
	"github.com/medorbit/televisit/pkg/logger"
	"github.com/medorbit/televisit/pkg/query"
	"github.com/medorbit/televisit/pkg/types"
)

// Repository implements visit persistence
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new visit repository
func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: log,
	}
}

const visitColumns = `id, patient_id, provider_id, reason, questionnaire_answers, is_ai_visit,
	payment_status, visit_status, soap_note, summary, action_items, created_at, updated_at`

// Create persists a new visit
func (r *Repository) Create(ctx context.Context, visit *types.Visit) error {
	answers, err := json.Marshal(visit.QuestionnaireAnswers)
	if err != nil {
		return fmt.Errorf("failed to marshal questionnaire answers: %w", err)
	}

	actionItems, err := json.Marshal(visit.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to marshal action items: %w", err)
	}

	query := `
		INSERT INTO visits (id, patient_id, provider_id, reason, questionnaire_answers, is_ai_visit,
			payment_status, visit_status, soap_note, summary, action_items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.ExecContext(ctx, query,
		visit.ID,
		visit.PatientID,
		nullableID(visit.ProviderID),
		visit.Reason,
		answers,
		visit.IsAIVisit,
		visit.PaymentStatus,
		visit.VisitStatus,
		nullableText(visit.SOAPNote),
		nullableText(visit.Summary),
		actionItems,
		visit.CreatedAt,
		visit.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}

	r.logger.WithVisitID(visit.ID).Info("Visit created")
	return nil
}

// GetByID retrieves a visit by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*types.Visit, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM visits WHERE id = $1", visitColumns), id)

	visit, err := scanVisit(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("visit not found: %s", id))
		}
		return nil, fmt.Errorf("failed to get visit: %w", err)
	}

	return visit, nil
}

// Transition applies a compare-and-set lifecycle update: the write lands only
// when the stored state still equals expected. A zero-row update means a
// concurrent writer won or the transition is illegal for the current state;
// either way the caller must re-read.
func (r *Repository) Transition(ctx context.Context, id string, expected, next types.VisitState) error {
	query := `
		UPDATE visits
		SET visit_status = $1, payment_status = $2, updated_at = $3
		WHERE id = $4 AND visit_status = $5 AND payment_status = $6`

	result, err := r.db.ExecContext(ctx, query,
		next.VisitStatus,
		next.PaymentStatus,
		time.Now().UTC(),
		id,
		expected.VisitStatus,
		expected.PaymentStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to transition visit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return types.NewConflictError(types.ErrCodeInvalidState,
			"visit state changed since it was read",
			map[string]interface{}{
				"visit_id":       id,
				"expected_state": expected,
			})
	}

	return nil
}

// AttachDocumentation merges documentation fields into a visit. Only fields
// present in the update are written; set fields overwrite.
func (r *Repository) AttachDocumentation(ctx context.Context, id string, update *types.DocumentationUpdate) error {
	setParts := []string{}
	args := []interface{}{}
	argIndex := 1

	if update.SOAPNote != "" {
		setParts = append(setParts, fmt.Sprintf("soap_note = $%d", argIndex))
		args = append(args, update.SOAPNote)
		argIndex++
	}
	if update.Summary != "" {
		setParts = append(setParts, fmt.Sprintf("summary = $%d", argIndex))
		args = append(args, update.Summary)
		argIndex++
	}
	if update.ActionItems != nil {
		items, err := json.Marshal(update.ActionItems)
		if err != nil {
			return fmt.Errorf("failed to marshal action items: %w", err)
		}
		setParts = append(setParts, fmt.Sprintf("action_items = $%d", argIndex))
		args = append(args, items)
		argIndex++
	}

	if len(setParts) == 0 {
		return types.NewValidationError(types.ErrCodeInvalidInput, "documentation update is empty", nil)
	}

	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", argIndex))
	args = append(args, time.Now().UTC())
	argIndex++

	query := fmt.Sprintf("UPDATE visits SET %s WHERE id = $%d",
		strings.Join(setParts, ", "), argIndex)
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to attach documentation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, fmt.Sprintf("visit not found: %s", id))
	}

	return nil
}

// Find retrieves visits matching the given filters, newest first
func (r *Repository) Find(ctx context.Context, filters []query.Filter, limit, offset int) ([]*types.Visit, error) {
	where, args, err := query.ToSQL(filters, 1)
	if err != nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, err.Error(), nil)
	}

	sqlQuery := fmt.Sprintf("SELECT %s FROM visits", visitColumns)
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += " ORDER BY created_at DESC"

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	sqlQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find visits: %w", err)
	}
	defer rows.Close()

	var visits []*types.Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, visit)
	}

	return visits, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVisit(row rowScanner) (*types.Visit, error) {
	visit := &types.Visit{}
	var providerID, soapNote, summary sql.NullString
	var answers, actionItems []byte

	err := row.Scan(
		&visit.ID,
		&visit.PatientID,
		&providerID,
		&visit.Reason,
		&answers,
		&visit.IsAIVisit,
		&visit.PaymentStatus,
		&visit.VisitStatus,
		&soapNote,
		&summary,
		&actionItems,
		&visit.CreatedAt,
		&visit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	visit.ProviderID = providerID.String
	visit.SOAPNote = soapNote.String
	visit.Summary = summary.String

	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &visit.QuestionnaireAnswers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal questionnaire answers: %w", err)
		}
	}
	if len(actionItems) > 0 {
		if err := json.Unmarshal(actionItems, &visit.ActionItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action items: %w", err)
		}
	}

	return visit, nil
}

func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}

func nullableText(text string) interface{} {
	if text == "" {
		return nil
	}
	return text
}
