package model

// CellErrorType is the closed set of reasons a single cell can fail.
// None of these abort the ingestion by themselves.
type CellErrorType string

const (
	ErrorRequiredMissing CellErrorType = "required_missing"
	ErrorTypeCoercion    CellErrorType = "type_coercion"
	ErrorValidationFailed CellErrorType = "validation_failed"
)

// CellError is one failed check against one cell.
type CellError struct {
	Column        string        `json:"column"`
	ErrorType     CellErrorType `json:"error_type"`
	ValidatorType ValidatorKind `json:"validator_type,omitempty"`
	Message       string        `json:"message"`
	RawValue      string        `json:"raw_value,omitempty"`
}

// RowAction is what happened to a row at the end of validation, per the
// schema's ErrorPolicy.
type RowAction string

const (
	ActionValid    RowAction = "valid"
	ActionFlagged  RowAction = "flagged"
	ActionRejected RowAction = "rejected"
	ActionCoerced  RowAction = "coerced"
)

// RowError is the per-row outcome: 1-indexed row number (for human
// display), the action taken, and every cell error found on that row.
type RowError struct {
	RowIndex int         `json:"row_index"`
	Action   RowAction   `json:"action"`
	Errors   []CellError `json:"errors"`
}

// ValidationResult is the output of the validate stage.
type ValidationResult struct {
	ValidRowCount   int              `json:"valid_row_count"`
	InvalidRowCount int              `json:"invalid_row_count"`
	RowErrors       []RowError       `json:"row_errors"`
	ErrorsByColumn  map[string]int   `json:"errors_by_column"`
}
