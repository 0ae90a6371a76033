package types

import "time"

// VisitStatus represents the lifecycle status of a visit
type VisitStatus string

const (
	VisitScheduled  VisitStatus = "scheduled"
	VisitWaiting    VisitStatus = "waiting"
	VisitInProgress VisitStatus = "in_progress"
	VisitCompleted  VisitStatus = "completed"
	VisitCancelled  VisitStatus = "cancelled"
)

// PaymentStatus represents the payment state attached to a visit
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Visit represents one telehealth encounter record spanning scheduling,
// payment and documentation
type Visit struct {
	ID                   string            `json:"id" db:"id"`
	PatientID            string            `json:"patient_id" db:"patient_id"`
	ProviderID           string            `json:"provider_id,omitempty" db:"provider_id"`
	Reason               string            `json:"reason" db:"reason"`
	QuestionnaireAnswers map[string]string `json:"questionnaire_answers,omitempty" db:"questionnaire_answers"`
	IsAIVisit            bool              `json:"is_ai_visit" db:"is_ai_visit"`
	PaymentStatus        PaymentStatus     `json:"payment_status" db:"payment_status"`
	VisitStatus          VisitStatus       `json:"visit_status" db:"visit_status"`
	SOAPNote             string            `json:"soap_note,omitempty" db:"soap_note"`
	Summary              string            `json:"summary,omitempty" db:"summary"`
	ActionItems          []string          `json:"action_items,omitempty" db:"action_items"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// VisitState is the compound (visitStatus, paymentStatus) pair the lifecycle
// state machine transitions over. Used as the expected pre-state in
// compare-and-set writes.
type VisitState struct {
	VisitStatus   VisitStatus
	PaymentStatus PaymentStatus
}

// State returns the visit's compound lifecycle state
func (v *Visit) State() VisitState {
	return VisitState{VisitStatus: v.VisitStatus, PaymentStatus: v.PaymentStatus}
}

// VisitCreationRequest represents the client input for creating a visit
type VisitCreationRequest struct {
	PatientID            string            `json:"patient_id"`
	Reason               string            `json:"reason"`
	QuestionnaireAnswers map[string]string `json:"questionnaire_answers,omitempty"`
	IsAIVisit            bool              `json:"is_ai_visit"`
}

// DocumentationUpdate carries AI-generated or provider-edited documentation to
// attach to a visit. Empty fields are left untouched; ProviderEdit marks an
// explicit clinician overwrite of previously written fields.
type DocumentationUpdate struct {
	SOAPNote     string   `json:"soap_note,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	ActionItems  []string `json:"action_items,omitempty"`
	ProviderEdit bool     `json:"provider_edit,omitempty"`
}

// VisitFilters represents filters for visit queries
type VisitFilters struct {
	PatientID     string        `json:"patient_id,omitempty"`
	ProviderID    string        `json:"provider_id,omitempty"`
	VisitStatus   VisitStatus   `json:"visit_status,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	CreatedAfter  time.Time     `json:"created_after,omitempty"`
	Limit         int           `json:"limit,omitempty"`
	Offset        int           `json:"offset,omitempty"`
}

// BillingEvent is emitted when a cancellation may require a refund decision by
// a billing collaborator. The lifecycle manager only records and emits; it
// never refunds.
type BillingEvent struct {
	VisitID       string        `json:"visit_id"`
	PatientID     string        `json:"patient_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Event         string        `json:"event"`
	OccurredAt    time.Time     `json:"occurred_at"`
}
