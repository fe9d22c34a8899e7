package model

import "time"

// Status is the ingestion state machine's node set.
// Initial: Pending. Terminal: Complete, Failed.
type Status string

const (
	StatusPending         Status = "pending"
	StatusParsing         Status = "parsing"
	StatusInferring       Status = "inferring"
	StatusMapping         Status = "mapping"
	StatusAwaitingReview  Status = "awaiting_review"
	StatusValidating      Status = "validating"
	StatusOutputting      Status = "outputting"
	StatusComplete        Status = "complete"
	StatusFailed          Status = "failed"
)

// statusOrder gives each non-branch status its position in the sequence,
// used to check monotonic advancement and to let a stage recognize "the
// record is already past me" for idempotent re-execution.
var statusOrder = map[Status]int{
	StatusPending:        0,
	StatusParsing:        1,
	StatusInferring:      2,
	StatusMapping:        3,
	StatusAwaitingReview: 3, // branch, not an advance past mapping
	StatusValidating:     4,
	StatusOutputting:     5,
	StatusComplete:       6,
	StatusFailed:         -1, // terminal, not comparable
}

// AtLeast reports whether s has reached or passed other in the normal
// sequence. Failed never compares true; awaiting_review compares equal to
// mapping (it is a branch off the same point, not an advance).
func (s Status) AtLeast(other Status) bool {
	so, ok := statusOrder[s]
	oo, ok2 := statusOrder[other]
	if !ok || !ok2 || so < 0 {
		return false
	}
	return so >= oo
}

// Source records which adapter produced RawFileKey. Display-only; never
// changes pipeline semantics.
type Source string

const (
	SourceBlob   Source = "blob"
	SourceXLSX   Source = "xlsx"
	SourceSheets Source = "sheets"
)

// Ingestion is the process instance threaded through every stage.
type Ingestion struct {
	ID               string            `json:"id"`
	SchemaID         *string           `json:"schema_id,omitempty"`
	Status           Status            `json:"status"`
	RawFileKey       string            `json:"raw_file_key"`
	OriginalFilename string            `json:"original_filename,omitempty"`
	Source           Source            `json:"source,omitempty"`
	OutputFileKey    string            `json:"output_file_key,omitempty"`
	DetectedDelimiter string           `json:"detected_delimiter,omitempty"`

	InferredSchema   *InferredSchema   `json:"inferred_schema,omitempty"`
	MappingResult    *MappingResult    `json:"mapping_result,omitempty"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`

	RowCount      *int    `json:"row_count,omitempty"`
	ValidRowCount *int    `json:"valid_row_count,omitempty"`
	Error         string  `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Stage is one of the five pipeline stages a DecisionLog entry belongs to.
type Stage string

const (
	StageParse    Stage = "parse"
	StageInfer    Stage = "infer"
	StageMap      Stage = "map"
	StageValidate Stage = "validate"
	StageOutput   Stage = "output"
)

// DecisionLog is one append-only journal entry.
type DecisionLog struct {
	ID           string         `json:"id"`
	IngestionID  string         `json:"ingestion_id"`
	Stage        Stage          `json:"stage"`
	DecisionType string         `json:"decision_type"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
