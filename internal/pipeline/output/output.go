// Package output implements the ingestion pipeline's fifth stage: building
// the canonical column sequence and emitting the five deterministic output
// artifacts.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"time"

	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/pipeline/validate"
)

// Metadata describes the output.json envelope's metadata block.
type Metadata struct {
	IngestionID   string    `json:"ingestionId"`
	SchemaID      string    `json:"schemaId,omitempty"`
	SchemaName    string    `json:"schemaName,omitempty"`
	SchemaVersion int       `json:"schemaVersion,omitempty"`
	ProcessedAt   time.Time `json:"processedAt"`
	TotalRows     int       `json:"totalRows"`
	OutputRows    int       `json:"outputRows"`
	RejectedRows  int       `json:"rejectedRows"`
}

// JSONDocument is the full output/<id>.json artifact shape.
type JSONDocument struct {
	Metadata Metadata            `json:"metadata"`
	Columns  []string             `json:"columns"`
	Data     []map[string]any     `json:"data"`
}

// SchemaDocument is the output/<id>/schema.json artifact shape.
type SchemaDocument struct {
	CanonicalSchema *model.CanonicalSchema `json:"canonicalSchema,omitempty"`
	InferredSchema  *model.InferredSchema  `json:"inferredSchema"`
	MappingResult   *model.MappingResult   `json:"mappingResult"`
}

// Artifacts holds the five emitted byte blobs, keyed by their deterministic
// blobstore suffix (everything after "output/<id>").
type Artifacts struct {
	CSV      []byte
	JSON     []byte
	Errors   []byte
	Decisions []byte
	Schema   []byte
}

// columnSequence builds the output column order: schema order when a
// schema exists, else the ordered set of mapped target names.
func columnSequence(schema *model.CanonicalSchema, mappingResult *model.MappingResult) []string {
	if schema != nil {
		cols := make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			cols[i] = c.Name
		}
		return cols
	}
	var cols []string
	for _, m := range mappingResult.Mappings {
		if m.TargetColumn != nil {
			cols = append(cols, *m.TargetColumn)
		}
	}
	return cols
}

// rowErrorsByIndex indexes validation row errors by 1-based row index for
// O(1) lookup while building output rows.
func rowErrorsByIndex(validation *model.ValidationResult) map[int]*model.RowError {
	idx := make(map[int]*model.RowError)
	if validation == nil {
		return idx
	}
	for i := range validation.RowErrors {
		idx[validation.RowErrors[i].RowIndex] = &validation.RowErrors[i]
	}
	return idx
}

// buildOutputRow applies §4.6's row transform: skip rejected rows (caller
// filters those before calling), substitute column defaults for coerced
// rows' offending columns, and re-apply §4.5's per-type coercion (no
// validators) to every other mapped cell before writing it out.
func buildOutputRow(columns []string, reverse map[string]string, schema *model.CanonicalSchema, row map[string]string, rowErr *model.RowError) map[string]any {
	offending := make(map[string]bool)
	coerced := rowErr != nil && rowErr.Action == model.ActionCoerced
	if coerced {
		for _, ce := range rowErr.Errors {
			offending[ce.Column] = true
		}
	}

	out := make(map[string]any, len(columns))
	for _, col := range columns {
		if coerced && offending[col] && schema != nil {
			if def := schema.ColumnByName(col); def != nil && def.Default != nil {
				out[col] = def.Default
				continue
			}
		}
		if schema == nil {
			out[col] = row[col]
			continue
		}
		source, ok := reverse[col]
		if !ok {
			out[col] = ""
			continue
		}
		raw := row[source]
		def := schema.ColumnByName(col)
		if def == nil || strings.TrimSpace(raw) == "" {
			out[col] = raw
			continue
		}
		if value, cellErr := validate.Coerce(def, raw); cellErr == nil {
			out[col] = valueToAny(value)
		} else {
			out[col] = raw
		}
	}
	return out
}

// valueToAny renders a coerced model.Value as the native Go type that
// should be embedded in the output row, mirroring model.Value.MarshalJSON.
func valueToAny(v model.Value) any {
	switch v.Kind {
	case model.KindNull:
		return nil
	case model.KindString:
		return v.Str
	case model.KindInt:
		return v.Int
	case model.KindFloat:
		return v.Flt
	case model.KindBool:
		return v.Bool
	case model.KindJSON:
		if len(v.Raw) == 0 {
			return nil
		}
		var js any
		if err := json.Unmarshal(v.Raw, &js); err != nil {
			return string(v.Raw)
		}
		return js
	default:
		return nil
	}
}

// Run builds the CSV, JSON, errors and schema artifacts; the decisions
// artifact comes from BuildDecisionsArtifact. rows is the full re-parse
// (no sample cap); validation may be nil (no-schema passthrough).
func Run(ingestionID string, schema *model.CanonicalSchema, inferredSchema *model.InferredSchema, mappingResult *model.MappingResult, validation *model.ValidationResult, rows []map[string]string, now time.Time) (*Artifacts, error) {
	columns := columnSequence(schema, mappingResult)
	reverse := mappingResult.ReverseIndex()
	errByRow := rowErrorsByIndex(validation)

	var data []map[string]any
	rejected := 0
	for i, row := range rows {
		rowNum := i + 1
		rowErr := errByRow[rowNum]
		if rowErr != nil && rowErr.Action == model.ActionRejected {
			rejected++
			continue
		}
		data = append(data, buildOutputRow(columns, reverse, schema, row, rowErr))
	}

	csvBytes, err := buildCSV(columns, data)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		IngestionID: ingestionID,
		ProcessedAt: now,
		TotalRows:   len(rows),
		OutputRows:  len(data),
		RejectedRows: rejected,
	}
	if schema != nil {
		meta.SchemaID = schema.ID
		meta.SchemaName = schema.Name
		meta.SchemaVersion = schema.Version
	}

	jsonDoc := JSONDocument{Metadata: meta, Columns: columns, Data: data}
	jsonBytes, err := marshalIndent(jsonDoc)
	if err != nil {
		return nil, err
	}

	var errorsBytes []byte
	if validation != nil {
		errorsBytes, err = marshalIndent(validation)
		if err != nil {
			return nil, err
		}
	} else {
		errorsBytes, _ = marshalIndent(model.ValidationResult{ValidRowCount: len(rows)})
	}

	schemaDoc := SchemaDocument{CanonicalSchema: schema, InferredSchema: inferredSchema, MappingResult: mappingResult}
	schemaBytes, err := marshalIndent(schemaDoc)
	if err != nil {
		return nil, err
	}

	return &Artifacts{CSV: csvBytes, JSON: jsonBytes, Errors: errorsBytes, Schema: schemaBytes}, nil
}

func buildCSV(columns []string, rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = stringify(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// BuildDecisionsArtifact renders the full journal snapshot for
// output/<id>/decisions.json.
func BuildDecisionsArtifact(entries []model.DecisionLog) ([]byte, error) {
	return marshalIndent(entries)
}
