// Package validate implements the ingestion pipeline's fourth stage:
// type coercion and validator dispatch against a full re-parse of the raw
// file.
package validate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/csv-ingest/internal/model"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	uuidRe  = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	isoRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

var boolTrue = map[string]bool{"true": true, "1": true, "yes": true, "y": true, "on": true}
var boolFalse = map[string]bool{"false": true, "0": true, "no": true, "n": true, "off": true}

// dateLayouts lists the accepted raw formats in try order. MM/DD/YYYY is
// ambiguous with DD/MM/YYYY; this implementation deliberately assumes US
// month-first ordering.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "01-02-2006"}
var datetimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// cellOutcome is the per-cell result of emptiness resolution + coercion,
// before validator dispatch.
type cellOutcome struct {
	value      model.Value
	raw        string
	coerceFail bool
}

// uniqueTracker holds the per-column "seen" sets needed for the unique
// validator, which is dataset-wide rather than per-cell.
type uniqueTracker map[string]map[string]bool

// Run validates every row of a full re-parse against schema (nil means
// passthrough: everything copied verbatim, no errors possible) using the
// mapping's reverse index to find each target column's source cell.
func Run(schema *model.CanonicalSchema, mappingResult *model.MappingResult, rows []map[string]string) (*model.ValidationResult, error) {
	result := &model.ValidationResult{
		ErrorsByColumn: make(map[string]int),
	}

	if schema == nil {
		result.ValidRowCount = len(rows)
		return result, nil
	}

	reverse := mappingResult.ReverseIndex()
	tracker := make(uniqueTracker)

	for rowIdx, row := range rows {
		rowErrors := validateRow(schema, reverse, row, tracker)
		rowNum := rowIdx + 1

		if len(rowErrors) == 0 {
			result.ValidRowCount++
			continue
		}

		result.InvalidRowCount++
		for _, ce := range rowErrors {
			result.ErrorsByColumn[ce.Column]++
		}

		switch schema.ErrorPolicy {
		case model.PolicyAbort:
			return nil, fmt.Errorf("row %d: %s", rowNum, rowErrors[0].Message)
		case model.PolicyRejectRow:
			result.RowErrors = append(result.RowErrors, model.RowError{RowIndex: rowNum, Action: model.ActionRejected, Errors: rowErrors})
		case model.PolicyCoerceDefault:
			result.RowErrors = append(result.RowErrors, model.RowError{RowIndex: rowNum, Action: model.ActionCoerced, Errors: rowErrors})
		default:
			result.RowErrors = append(result.RowErrors, model.RowError{RowIndex: rowNum, Action: model.ActionFlagged, Errors: rowErrors})
		}
	}

	return result, nil
}

func validateRow(schema *model.CanonicalSchema, reverse map[string]string, row map[string]string, tracker uniqueTracker) []model.CellError {
	var errs []model.CellError

	for i := range schema.Columns {
		col := &schema.Columns[i]
		source, mapped := reverse[col.Name]
		raw := ""
		if mapped {
			raw = row[source]
		}

		outcome, emptyErr := resolveEmptiness(col, raw)
		if emptyErr != nil {
			errs = append(errs, *emptyErr)
			continue
		}
		if outcome.value.IsNull() {
			continue
		}

		coerced, coerceErr := coerce(col, outcome.raw)
		if coerceErr != nil {
			errs = append(errs, *coerceErr)
			if col.Default != nil {
				coerced = valueFromDefault(col.Default)
			} else {
				coerced = model.StringValue(outcome.raw)
			}
		}

		errs = append(errs, runValidators(col, coerced, tracker)...)
	}

	return errs
}

// resolveEmptiness resolves required/default handling for an empty cell.
func resolveEmptiness(col *model.ColumnDefinition, raw string) (cellOutcome, *model.CellError) {
	if strings.TrimSpace(raw) != "" {
		return cellOutcome{raw: raw}, nil
	}
	if col.Nullable {
		return cellOutcome{value: model.Null}, nil
	}
	if col.Default != nil {
		return cellOutcome{value: valueFromDefault(col.Default)}, nil
	}
	if col.Required {
		return cellOutcome{}, &model.CellError{
			Column:    col.Name,
			ErrorType: model.ErrorRequiredMissing,
			Message:   fmt.Sprintf("%s is required", col.Name),
			RawValue:  raw,
		}
	}
	return cellOutcome{value: model.Null}, nil
}

func valueFromDefault(def any) model.Value {
	switch v := def.(type) {
	case string:
		return model.StringValue(v)
	case float64:
		return model.FloatValue(v)
	case int:
		return model.IntValue(int64(v))
	case bool:
		return model.BoolValue(v)
	default:
		raw, _ := json.Marshal(def)
		return model.JSONValue(raw)
	}
}

// Coerce exposes the per-type conversion coerce performs, for callers
// outside this package that need the same conversion without validator
// dispatch (the output stage's §4.6 re-application).
func Coerce(col *model.ColumnDefinition, raw string) (model.Value, *model.CellError) {
	return coerce(col, raw)
}

// coerce converts a non-empty raw string into col.Type.
func coerce(col *model.ColumnDefinition, raw string) (model.Value, *model.CellError) {
	fail := func(msg string) *model.CellError {
		return &model.CellError{Column: col.Name, ErrorType: model.ErrorTypeCoercion, Message: msg, RawValue: raw}
	}

	switch col.Type {
	case model.TypeString:
		return model.StringValue(strings.TrimSpace(raw)), nil

	case model.TypeInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return model.Value{}, fail(fmt.Sprintf("%q is not a valid integer", raw))
		}
		return model.IntValue(i), nil

	case model.TypeFloat:
		trimmed := strings.TrimSpace(raw)
		if strings.Count(trimmed, ".") > 1 {
			return model.Value{}, fail(fmt.Sprintf("%q is not a valid float", raw))
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return model.Value{}, fail(fmt.Sprintf("%q is not a valid float", raw))
		}
		return model.FloatValue(f), nil

	case model.TypeBoolean:
		lower := strings.ToLower(strings.TrimSpace(raw))
		if boolTrue[lower] {
			return model.BoolValue(true), nil
		}
		if boolFalse[lower] {
			return model.BoolValue(false), nil
		}
		return model.Value{}, fail(fmt.Sprintf("%q is not a valid boolean", raw))

	case model.TypeDate:
		t, err := parseDate(raw, col.DateFormat)
		if err != nil {
			return model.Value{}, fail(err.Error())
		}
		return model.StringValue(t.Format("2006-01-02")), nil

	case model.TypeDatetime:
		t, err := parseDatetime(raw, col.DateFormat)
		if err != nil {
			return model.Value{}, fail(err.Error())
		}
		return model.StringValue(t.UTC().Format(time.RFC3339)), nil

	case model.TypeEmail:
		if !emailRe.MatchString(raw) {
			return model.Value{}, fail(fmt.Sprintf("%q is not a valid email", raw))
		}
		return model.StringValue(strings.ToLower(raw)), nil

	case model.TypeUUID:
		if !uuidRe.MatchString(raw) {
			return model.Value{}, fail(fmt.Sprintf("%q is not a valid uuid", raw))
		}
		return model.StringValue(strings.ToLower(raw)), nil

	case model.TypeURL:
		u, err := url.ParseRequestURI(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return model.Value{}, fail(fmt.Sprintf("%q is not a valid absolute url", raw))
		}
		return model.StringValue(raw), nil

	case model.TypeJSON:
		var js json.RawMessage
		if err := json.Unmarshal([]byte(raw), &js); err != nil {
			return model.Value{}, fail(fmt.Sprintf("%q is not valid json", raw))
		}
		return model.JSONValue(js), nil

	default:
		return model.StringValue(raw), nil
	}
}

// parseDate tries, in order: strict ISO-8601 date, YYYY/MM/DD, MM/DD/YYYY
// (US month-first), MM-DD-YYYY.
func parseDate(raw, customFormat string) (time.Time, error) {
	if customFormat != "" {
		if t, err := time.Parse(customFormat, raw); err == nil {
			return t, nil
		}
	}
	if isoRe.MatchString(raw) {
		if t, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			return t, nil
		}
	}
	for _, layout := range dateLayouts[1:] {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q does not match a recognized date format", raw)
}

func parseDatetime(raw, customFormat string) (time.Time, error) {
	if customFormat != "" {
		if t, err := time.Parse(customFormat, raw); err == nil {
			return t, nil
		}
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if t, err := parseDate(raw, ""); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q does not match a recognized datetime format", raw)
}

// runValidators runs every declared validator in order; unique is
// dataset-wide and tracked via tracker.
func runValidators(col *model.ColumnDefinition, value model.Value, tracker uniqueTracker) []model.CellError {
	var errs []model.CellError
	for _, v := range col.Validators {
		if err := runValidator(col, v, value, tracker); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

func runValidator(col *model.ColumnDefinition, v model.Validator, value model.Value, tracker uniqueTracker) *model.CellError {
	msg := func(def string) string {
		if v.Message != "" {
			return v.Message
		}
		return def
	}
	fail := func(def string) *model.CellError {
		return &model.CellError{
			Column:        col.Name,
			ErrorType:     model.ErrorValidationFailed,
			ValidatorType: v.Kind,
			Message:       msg(def),
			RawValue:      value.AsString(),
		}
	}

	switch v.Kind {
	case model.ValidatorRegex:
		re, err := regexp.Compile(v.Pattern)
		if err != nil || !re.MatchString(value.AsString()) {
			return fail(fmt.Sprintf("value does not match pattern %q", v.Pattern))
		}

	case model.ValidatorMin:
		n, ok := numericOf(value)
		if !ok || n < v.Value {
			return fail(fmt.Sprintf("value must be >= %v", v.Value))
		}

	case model.ValidatorMax:
		n, ok := numericOf(value)
		if !ok || n > v.Value {
			return fail(fmt.Sprintf("value must be <= %v", v.Value))
		}

	case model.ValidatorMinLength:
		if float64(len(value.AsString())) < v.Value {
			return fail(fmt.Sprintf("value must be at least %v characters", v.Value))
		}

	case model.ValidatorMaxLength:
		if float64(len(value.AsString())) > v.Value {
			return fail(fmt.Sprintf("value must be at most %v characters", v.Value))
		}

	case model.ValidatorEnum:
		found := false
		for _, allowed := range v.Values {
			if allowed == value.AsString() {
				found = true
				break
			}
		}
		if !found {
			return fail(fmt.Sprintf("value must be one of %v", v.Values))
		}

	case model.ValidatorUnique:
		seen, ok := tracker[col.Name]
		if !ok {
			seen = make(map[string]bool)
			tracker[col.Name] = seen
		}
		s := value.AsString()
		if seen[s] {
			return fail("value must be unique")
		}
		seen[s] = true
	}

	return nil
}

func numericOf(v model.Value) (float64, bool) {
	if n, ok := v.Numeric(); ok {
		return n, true
	}
	f, err := strconv.ParseFloat(v.AsString(), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
