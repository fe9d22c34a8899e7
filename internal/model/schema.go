// Package model holds the data types shared by every pipeline stage:
// canonical schemas, inferred schemas, mappings, validation results, and
// the ingestion record that threads them together.
package model

// ColumnType is the closed set of target types a canonical column can
// declare. Validate coerces raw cell strings into one of these.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInteger  ColumnType = "integer"
	TypeFloat    ColumnType = "float"
	TypeBoolean  ColumnType = "boolean"
	TypeDate     ColumnType = "date"
	TypeDatetime ColumnType = "datetime"
	TypeEmail    ColumnType = "email"
	TypeUUID     ColumnType = "uuid"
	TypeURL      ColumnType = "url"
	TypeJSON     ColumnType = "json"
)

// ErrorPolicy governs what happens to a row that contains at least one
// cell error during validation and output.
type ErrorPolicy string

const (
	PolicyRejectRow      ErrorPolicy = "reject_row"
	PolicyFlag           ErrorPolicy = "flag"
	PolicyCoerceDefault  ErrorPolicy = "coerce_default"
	PolicyAbort          ErrorPolicy = "abort"
)

// ValidatorKind is the closed tagged union of per-cell/per-dataset checks a
// ColumnDefinition can declare.
type ValidatorKind string

const (
	ValidatorRegex     ValidatorKind = "regex"
	ValidatorMin       ValidatorKind = "min"
	ValidatorMax       ValidatorKind = "max"
	ValidatorMinLength ValidatorKind = "minLength"
	ValidatorMaxLength ValidatorKind = "maxLength"
	ValidatorEnum      ValidatorKind = "enum"
	ValidatorUnique    ValidatorKind = "unique"
)

// Validator is a tagged variant; only the field(s) relevant to Kind are
// populated. Dispatch is a switch on Kind, never a type assertion chain.
type Validator struct {
	Kind    ValidatorKind `json:"kind"`
	Pattern string        `json:"pattern,omitempty"` // regex
	Value   float64       `json:"value,omitempty"`   // min, max, minLength, maxLength
	Values  []string      `json:"values,omitempty"`  // enum
	Message string        `json:"message,omitempty"`
}

// ColumnDefinition is one target column of a CanonicalSchema.
type ColumnDefinition struct {
	Name       string      `json:"name"`
	Type       ColumnType  `json:"type"`
	Required   bool        `json:"required"`
	Nullable   bool        `json:"nullable"`
	Aliases    []string    `json:"aliases,omitempty"`
	Default    any         `json:"default,omitempty"`
	DateFormat string      `json:"date_format,omitempty"`
	Validators []Validator `json:"validators,omitempty"`
}

// CanonicalSchema is the user-declared target a source file must conform
// to. A nil *CanonicalSchema anywhere downstream means "passthrough mode".
type CanonicalSchema struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Version     int                `json:"version"`
	Description string             `json:"description,omitempty"`
	Columns     []ColumnDefinition `json:"columns"`
	ErrorPolicy ErrorPolicy        `json:"error_policy"`
	Strict      bool               `json:"strict"`
}

// ColumnByName returns the column definition with the given name, or nil.
func (s *CanonicalSchema) ColumnByName(name string) *ColumnDefinition {
	if s == nil {
		return nil
	}
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// NewCanonicalSchema applies the standard defaults: error policy "flag"
// and strict=false unless the caller overrides them.
func NewCanonicalSchema(name string, columns []ColumnDefinition) *CanonicalSchema {
	return &CanonicalSchema{
		Name:        name,
		Columns:     columns,
		ErrorPolicy: PolicyFlag,
		Strict:      false,
	}
}
