package validate

import (
	"testing"

	"github.com/yourorg/csv-ingest/internal/model"
)

func identityMapping(columns ...string) *model.MappingResult {
	r := &model.MappingResult{}
	for _, c := range columns {
		target := c
		r.Mappings = append(r.Mappings, model.ColumnMapping{SourceColumn: c, TargetColumn: &target})
	}
	return r
}

func TestRun_NoSchemaPassthrough(t *testing.T) {
	rows := []map[string]string{{"a": "1"}, {"a": "2"}}
	result, err := Run(nil, nil, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ValidRowCount != 2 || result.InvalidRowCount != 0 {
		t.Errorf("expected all rows valid under passthrough, got %+v", result)
	}
}

func TestRun_RequiredMissingFlagged(t *testing.T) {
	schema := &model.CanonicalSchema{
		ErrorPolicy: model.PolicyFlag,
		Columns:     []model.ColumnDefinition{{Name: "email", Type: model.TypeString, Required: true, Nullable: false}},
	}
	rows := []map[string]string{{"email": ""}}
	result, err := Run(schema, identityMapping("email"), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.InvalidRowCount != 1 {
		t.Fatalf("expected 1 invalid row, got %d", result.InvalidRowCount)
	}
	if result.RowErrors[0].Action != model.ActionFlagged {
		t.Errorf("expected flagged action, got %s", result.RowErrors[0].Action)
	}
	if result.RowErrors[0].Errors[0].ErrorType != model.ErrorRequiredMissing {
		t.Errorf("expected required_missing error, got %+v", result.RowErrors[0].Errors[0])
	}
}

func TestRun_RejectRowPolicy(t *testing.T) {
	schema := &model.CanonicalSchema{
		ErrorPolicy: model.PolicyRejectRow,
		Columns:     []model.ColumnDefinition{{Name: "age", Type: model.TypeInteger, Required: true}},
	}
	rows := []map[string]string{{"age": "not-a-number"}}
	result, err := Run(schema, identityMapping("age"), rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RowErrors[0].Action != model.ActionRejected {
		t.Errorf("expected rejected action, got %s", result.RowErrors[0].Action)
	}
}

func TestRun_AbortPolicyFailsStage(t *testing.T) {
	schema := &model.CanonicalSchema{
		ErrorPolicy: model.PolicyAbort,
		Columns:     []model.ColumnDefinition{{Name: "age", Type: model.TypeInteger, Required: true}},
	}
	rows := []map[string]string{{"age": "bad"}}
	_, err := Run(schema, identityMapping("age"), rows)
	if err == nil {
		t.Fatalf("expected abort policy to return an error")
	}
}

func TestRun_IntegerCoercionFailure(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{Name: "age", Type: model.TypeInteger, Required: true}},
	}
	rows := []map[string]string{{"age": "12.5"}}
	result, _ := Run(schema, identityMapping("age"), rows)
	if result.InvalidRowCount != 1 {
		t.Fatalf("expected integer coercion to fail on a float string")
	}
	if result.RowErrors[0].Errors[0].ErrorType != model.ErrorTypeCoercion {
		t.Errorf("expected type_coercion error, got %+v", result.RowErrors[0].Errors[0])
	}
}

func TestRun_FloatCoercionRejectsMultipleDots(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{Name: "price", Type: model.TypeFloat, Required: true}},
	}
	rows := []map[string]string{{"price": "1.2.3"}}
	result, _ := Run(schema, identityMapping("price"), rows)
	if result.InvalidRowCount != 1 {
		t.Fatalf("expected multi-dot float to fail coercion")
	}
}

func TestRun_BooleanCoercionVariants(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{Name: "active", Type: model.TypeBoolean, Required: true}},
	}
	rows := []map[string]string{{"active": "Yes"}, {"active": "0"}}
	result, _ := Run(schema, identityMapping("active"), rows)
	if result.ValidRowCount != 2 {
		t.Errorf("expected both boolean variants to coerce cleanly, got %+v", result)
	}
}

func TestRun_EmailLowercasedOnAccept(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{Name: "email", Type: model.TypeEmail, Required: true}},
	}
	rows := []map[string]string{{"email": "A@Example.COM"}}
	result, _ := Run(schema, identityMapping("email"), rows)
	if result.InvalidRowCount != 0 {
		t.Errorf("expected valid email, got errors: %+v", result.RowErrors)
	}
	if v, cerr := Coerce(&schema.Columns[0], "A@Example.COM"); cerr != nil || v.Str != "a@example.com" {
		t.Errorf("expected lowercased email, got %+v (err %+v)", v, cerr)
	}
}

func TestRun_DateNormalizedToISO(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{Name: "dob", Type: model.TypeDate, Required: true}},
	}
	rows := []map[string]string{{"dob": "01/15/2024"}}
	result, _ := Run(schema, identityMapping("dob"), rows)
	if result.InvalidRowCount != 0 {
		t.Errorf("expected US-ordered MM/DD/YYYY to parse cleanly, got %+v", result.RowErrors)
	}
	if v, cerr := Coerce(&schema.Columns[0], "01/15/2024"); cerr != nil || v.Str != "2024-01-15" {
		t.Errorf("expected ISO date 2024-01-15, got %+v (err %+v)", v, cerr)
	}
}

func TestRun_EnumValidatorRejectsOutOfSet(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{
			Name: "status", Type: model.TypeString, Required: true,
			Validators: []model.Validator{{Kind: model.ValidatorEnum, Values: []string{"open", "closed"}}},
		}},
	}
	rows := []map[string]string{{"status": "pending"}}
	result, _ := Run(schema, identityMapping("status"), rows)
	if result.InvalidRowCount != 1 {
		t.Fatalf("expected enum validator to reject out-of-set value")
	}
	if result.RowErrors[0].Errors[0].ValidatorType != model.ValidatorEnum {
		t.Errorf("expected enum validator type on error, got %+v", result.RowErrors[0].Errors[0])
	}
}

func TestRun_UniqueValidatorFlagsSecondOccurrence(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{
			Name: "sku", Type: model.TypeString, Required: true,
			Validators: []model.Validator{{Kind: model.ValidatorUnique}},
		}},
	}
	rows := []map[string]string{{"sku": "ABC"}, {"sku": "ABC"}}
	result, _ := Run(schema, identityMapping("sku"), rows)
	if result.InvalidRowCount != 1 {
		t.Fatalf("expected exactly one row flagged for duplicate sku, got %d", result.InvalidRowCount)
	}
	if result.RowErrors[0].RowIndex != 2 {
		t.Errorf("expected the second occurrence (row 2) to be flagged, got row %d", result.RowErrors[0].RowIndex)
	}
}

func TestRun_MinMaxValidators(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{
			Name: "age", Type: model.TypeInteger, Required: true,
			Validators: []model.Validator{{Kind: model.ValidatorMin, Value: 18}, {Kind: model.ValidatorMax, Value: 65}},
		}},
	}
	rows := []map[string]string{{"age": "10"}, {"age": "30"}, {"age": "99"}}
	result, _ := Run(schema, identityMapping("age"), rows)
	if result.InvalidRowCount != 2 {
		t.Errorf("expected 2 rows out of [18,65] range flagged, got %d", result.InvalidRowCount)
	}
}

func TestRun_NullableEmptyStaysNull(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{Name: "middle_name", Type: model.TypeString, Nullable: true}},
	}
	rows := []map[string]string{{"middle_name": ""}}
	result, _ := Run(schema, identityMapping("middle_name"), rows)
	if result.InvalidRowCount != 0 {
		t.Errorf("expected nullable empty cell to produce no error, got %+v", result.RowErrors)
	}
}

func TestRun_ErrorsByColumnHistogram(t *testing.T) {
	schema := &model.CanonicalSchema{
		Columns: []model.ColumnDefinition{{Name: "age", Type: model.TypeInteger, Required: true}},
	}
	rows := []map[string]string{{"age": "x"}, {"age": "y"}}
	result, _ := Run(schema, identityMapping("age"), rows)
	if result.ErrorsByColumn["age"] != 2 {
		t.Errorf("expected histogram count 2 for age, got %d", result.ErrorsByColumn["age"])
	}
}
