package infer

import "testing"

func TestColumn_IntegerFloatPromotion(t *testing.T) {
	col := Column("price", []string{"1", "2", "3.5", "4"})
	if col.InferredType != "float" {
		t.Errorf("expected promotion to float, got %s", col.InferredType)
	}
	if col.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0 (all 4 credited), got %f", col.Confidence)
	}
}

func TestColumn_AllString(t *testing.T) {
	col := Column("name", []string{"alice", "bob", "carol"})
	if col.InferredType != "string" {
		t.Errorf("expected string, got %s", col.InferredType)
	}
	if col.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", col.Confidence)
	}
}

func TestColumn_NullsExcludedFromVotes(t *testing.T) {
	col := Column("age", []string{"1", "", "2", "", "3"})
	if col.NullCount != 2 {
		t.Errorf("expected 2 nulls, got %d", col.NullCount)
	}
	if col.TotalCount != 5 {
		t.Errorf("expected total count 5, got %d", col.TotalCount)
	}
	if !col.Nullable {
		t.Errorf("expected nullable=true")
	}
	if col.InferredType != "integer" {
		t.Errorf("expected integer, got %s", col.InferredType)
	}
}

func TestColumn_UUIDDetection(t *testing.T) {
	col := Column("id", []string{"550e8400-e29b-41d4-a716-446655440000"})
	if col.InferredType != "uuid" {
		t.Errorf("expected uuid, got %s", col.InferredType)
	}
}

func TestColumn_EmailDetection(t *testing.T) {
	col := Column("email", []string{"a@example.com", "b@example.com"})
	if col.InferredType != "email" {
		t.Errorf("expected email, got %s", col.InferredType)
	}
}

func TestColumn_DateVsDatetime(t *testing.T) {
	dateCol := Column("d", []string{"2024-01-15"})
	if dateCol.InferredType != "date" {
		t.Errorf("expected date, got %s", dateCol.InferredType)
	}
	dtCol := Column("dt", []string{"2024-01-15T10:30:00Z"})
	if dtCol.InferredType != "datetime" {
		t.Errorf("expected datetime, got %s", dtCol.InferredType)
	}
}

func TestColumn_UniqueRatio(t *testing.T) {
	col := Column("status", []string{"a", "a", "b", "b"})
	if col.UniqueRatio != 0.5 {
		t.Errorf("expected unique ratio 0.5, got %f", col.UniqueRatio)
	}
}

func TestColumn_SampleValuesCappedAtFive(t *testing.T) {
	col := Column("n", []string{"1", "2", "3", "4", "5", "6", "7"})
	if len(col.SampleValues) != 5 {
		t.Errorf("expected 5 sample values, got %d", len(col.SampleValues))
	}
}

func TestColumn_AllNullConfidenceZero(t *testing.T) {
	col := Column("x", []string{"", "", ""})
	if col.Confidence != 0 {
		t.Errorf("expected confidence 0 for all-null column, got %f", col.Confidence)
	}
	if col.NullCount != 3 {
		t.Errorf("expected 3 nulls, got %d", col.NullCount)
	}
}

func TestRun_BuildsOneInferredColumnPerSourceColumn(t *testing.T) {
	rows := []map[string]string{
		{"a": "1", "b": "x"},
		{"a": "2", "b": "y"},
	}
	schema := Run([]string{"a", "b"}, rows, 2, nil)
	if len(schema.Columns) != 2 {
		t.Fatalf("expected 2 inferred columns, got %d", len(schema.Columns))
	}
	if schema.RowCount != 2 {
		t.Errorf("expected row count 2, got %d", schema.RowCount)
	}
}
