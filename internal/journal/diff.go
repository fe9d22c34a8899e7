package journal

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/yourorg/csv-ingest/internal/model"
)

// RenderMappingDiff produces a unified diff between the auto-computed
// mapping and a human's override, for attaching to a human_resolved
// journal entry's details.diff. Purely a presentation aid; no stage
// consults this output.
func RenderMappingDiff(before, after model.ColumnMapping) (string, error) {
	beforeLines := mappingLines(before)
	afterLines := mappingLines(after)

	diff := difflib.UnifiedDiff{
		A:        beforeLines,
		B:        afterLines,
		FromFile: "auto",
		ToFile:   "human",
		Context:  1,
	}
	return difflib.GetUnifiedDiffString(diff)
}

func mappingLines(m model.ColumnMapping) []string {
	target := "null"
	if m.TargetColumn != nil {
		target = *m.TargetColumn
	}
	return []string{
		fmt.Sprintf("source: %s", m.SourceColumn),
		fmt.Sprintf("target: %s", target),
		fmt.Sprintf("method: %s", m.Method),
		fmt.Sprintf("confidence: %.2f", m.Confidence),
	}
}
