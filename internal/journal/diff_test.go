package journal

import (
	"strings"
	"testing"

	"github.com/yourorg/csv-ingest/internal/model"
)

func TestRenderMappingDiff_ShowsTargetChange(t *testing.T) {
	target1 := "amount"
	target2 := "total_amount"
	before := model.ColumnMapping{SourceColumn: "Total", TargetColumn: &target1, Method: model.MethodFuzzy, Confidence: 0.6}
	after := model.ColumnMapping{SourceColumn: "Total", TargetColumn: &target2, Method: model.MethodManual, Confidence: 1.0}

	out, err := RenderMappingDiff(before, after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "amount") || !strings.Contains(out, "total_amount") {
		t.Errorf("expected diff to mention both targets, got:\n%s", out)
	}
}
