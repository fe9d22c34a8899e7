package advisory

import (
	"strings"
	"testing"

	"github.com/yourorg/csv-ingest/internal/model"
)

func TestDescribeMapping_IncludesAlternatives(t *testing.T) {
	target := "full_name"
	m := &model.ColumnMapping{
		SourceColumn: "nm",
		TargetColumn: &target,
		Method:       model.MethodFuzzy,
		Confidence:   0.55,
		AlternativeMappings: []model.AlternativeMapping{
			{TargetColumn: "first_name", Confidence: 0.5},
			{TargetColumn: "last_name", Confidence: 0.42},
		},
	}

	out := describeMapping(m)
	if !strings.Contains(out, "nm") || !strings.Contains(out, "full_name") {
		t.Fatalf("expected description to mention source and target, got:\n%s", out)
	}
	if !strings.Contains(out, "first_name") || !strings.Contains(out, "last_name") {
		t.Fatalf("expected description to list alternatives, got:\n%s", out)
	}
}

func TestDescribeMapping_UnmappedColumn(t *testing.T) {
	m := &model.ColumnMapping{SourceColumn: "mystery", Method: model.MethodUnmapped}
	out := describeMapping(m)
	if !strings.Contains(out, "(unmapped)") {
		t.Fatalf("expected unmapped placeholder, got:\n%s", out)
	}
}

func TestNew_AppliesModelDefault(t *testing.T) {
	a := New("test-key", "", 0)
	if a.model != "gpt-4o-mini" {
		t.Errorf("expected default model, got %s", a.model)
	}
	if a.timeout <= 0 {
		t.Errorf("expected a positive default timeout")
	}
}
