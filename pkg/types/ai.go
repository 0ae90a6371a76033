package types

// SOAPNoteRequest represents the input for clinical note generation
type SOAPNoteRequest struct {
	PatientHistory string `json:"patient_history"`
}

// SOAPNoteResult carries a generated clinical note. Transient: the result is
// folded into the visit record on success and nothing is written on failure.
type SOAPNoteResult struct {
	SOAPNote string `json:"soap_note"`
}

// VisitSummaryRequest represents the input for visit summary generation
type VisitSummaryRequest struct {
	SOAPNote    string `json:"soap_note"`
	PatientName string `json:"patient_name"`
}

// VisitSummaryResult carries a generated patient-facing summary. Summary is
// always non-empty prose; ActionItems is always a slice, possibly empty, of
// short imperative strings.
type VisitSummaryResult struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// CopilotRequest represents the input for the assistant reply endpoint
type CopilotRequest struct {
	Prompt string `json:"prompt"`
}

// CopilotResult carries an assistant reply
type CopilotResult struct {
	Text string `json:"text"`
}

// ImageRequest represents the input for image generation
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

// ImageResult carries a reference to a generated image
type ImageResult struct {
	ImageRef string `json:"image_ref"`
}
