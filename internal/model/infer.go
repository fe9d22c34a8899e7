package model

// InferredColumn is the type-voting verdict for one source column.
type InferredColumn struct {
	Name          string     `json:"name"`
	InferredType  ColumnType `json:"inferred_type"`
	Confidence    float64    `json:"confidence"`
	Nullable      bool       `json:"nullable"`
	UniqueRatio   float64    `json:"unique_ratio"`
	SampleValues  []string   `json:"sample_values,omitempty"`
	NullCount     int        `json:"null_count"`
	TotalCount    int        `json:"total_count"`
}

// ParseRowError records a single malformed row encountered while parsing.
type ParseRowError struct {
	RowIndex int    `json:"row_index"`
	Message  string `json:"message"`
}

// InferredSchema is the output of the infer stage: one InferredColumn per
// source column, in source order, plus the row count and parse errors
// carried forward from the parse stage.
type InferredSchema struct {
	Columns     []InferredColumn `json:"columns"`
	RowCount    int              `json:"row_count"`
	ParseErrors []ParseRowError  `json:"parse_errors,omitempty"`
}

// ColumnByName returns the inferred column with the given name, or nil.
func (s *InferredSchema) ColumnByName(name string) *InferredColumn {
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
