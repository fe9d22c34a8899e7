package mapping

import (
	"testing"

	"github.com/yourorg/csv-ingest/internal/model"
)

func inferred(names ...string) *model.InferredSchema {
	s := &model.InferredSchema{}
	for _, n := range names {
		s.Columns = append(s.Columns, model.InferredColumn{Name: n})
	}
	return s
}

func TestRun_NoSchemaPassthrough(t *testing.T) {
	result := Run("", inferred("Name", "Email"), nil, 0, nil)
	if result.RequiresReview {
		t.Errorf("passthrough should never require review")
	}
	if len(result.Mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(result.Mappings))
	}
	if result.Mappings[0].Method != model.MethodExact || *result.Mappings[0].TargetColumn != "Name" {
		t.Errorf("unexpected passthrough mapping: %+v", result.Mappings[0])
	}
}

func TestRun_ExactMatch(t *testing.T) {
	schema := &model.CanonicalSchema{Columns: []model.ColumnDefinition{{Name: "email"}}}
	result := Run("s1", inferred("email"), schema, 0, nil)
	m := result.Mappings[0]
	if m.Method != model.MethodExact || m.Confidence != 1.0 {
		t.Errorf("expected exact match confidence 1.0, got %+v", m)
	}
}

func TestRun_CaseInsensitiveMatch(t *testing.T) {
	schema := &model.CanonicalSchema{Columns: []model.ColumnDefinition{{Name: "Email"}}}
	result := Run("s1", inferred("email"), schema, 0, nil)
	m := result.Mappings[0]
	if m.Method != model.MethodCaseInsensitive || m.Confidence != 0.95 {
		t.Errorf("expected case_insensitive match, got %+v", m)
	}
}

func TestRun_AliasMatch(t *testing.T) {
	schema := &model.CanonicalSchema{Columns: []model.ColumnDefinition{
		{Name: "email_address", Aliases: []string{"e-mail", "contact email"}},
	}}
	result := Run("s1", inferred("E-Mail"), schema, 0, nil)
	m := result.Mappings[0]
	if m.Method != model.MethodAlias {
		t.Errorf("expected alias match, got %+v", m)
	}
}

func TestRun_FuzzyMatch(t *testing.T) {
	schema := &model.CanonicalSchema{Columns: []model.ColumnDefinition{{Name: "first_name"}}}
	result := Run("s1", inferred("firstname"), schema, 0, nil)
	m := result.Mappings[0]
	if m.Method != model.MethodFuzzy {
		t.Errorf("expected fuzzy match, got %+v", m)
	}
	if m.Confidence < fuzzyMinSimilarity {
		t.Errorf("expected confidence >= %f, got %f", fuzzyMinSimilarity, m.Confidence)
	}
}

func TestRun_UnmappedWhenNoCandidate(t *testing.T) {
	schema := &model.CanonicalSchema{Columns: []model.ColumnDefinition{{Name: "zzz_totally_unrelated"}}}
	result := Run("s1", inferred("completely_different_thing_xyz"), schema, 0, nil)
	m := result.Mappings[0]
	if m.Method != model.MethodUnmapped || m.TargetColumn != nil {
		t.Errorf("expected unmapped, got %+v", m)
	}
}

func TestRun_GreedyPoolRemoval(t *testing.T) {
	schema := &model.CanonicalSchema{Columns: []model.ColumnDefinition{{Name: "id"}}}
	result := Run("s1", inferred("id", "ID"), schema, 0, nil)
	if *result.Mappings[0].TargetColumn != "id" {
		t.Errorf("expected first source to claim exact target")
	}
	if result.Mappings[1].Method != model.MethodUnmapped {
		t.Errorf("expected second source unmapped since target pool exhausted, got %+v", result.Mappings[1])
	}
}

func TestRun_StrictUnmappedRequiresReview(t *testing.T) {
	schema := &model.CanonicalSchema{Strict: true, Columns: []model.ColumnDefinition{{Name: "id"}}}
	result := Run("s1", inferred("id", "extra_col_xyz"), schema, 0, nil)
	if !result.RequiresReview {
		t.Errorf("expected requiresReview=true under strict schema with unmapped column")
	}
}

func TestRun_LowConfidenceYieldsAlternatives(t *testing.T) {
	schema := &model.CanonicalSchema{Columns: []model.ColumnDefinition{
		{Name: "first_name"}, {Name: "last_name"},
	}}
	// "name" fuzzy-matches last_name at 0.6, below the review threshold;
	// first_name (about 0.55) is offered as an alternative.
	result := Run("s1", inferred("name"), schema, 0, nil)
	m := result.Mappings[0]
	if m.Confidence >= DefaultThreshold {
		t.Fatalf("expected a low-confidence match, got %+v", m)
	}
	if len(m.AlternativeMappings) == 0 {
		t.Errorf("expected alternatives for a low-confidence match, got %+v", m)
	}
}

func TestResume_ReplacesNamedMappingAndClearsReview(t *testing.T) {
	result := &model.MappingResult{
		Mappings: []model.ColumnMapping{
			{SourceColumn: "weird_col", Method: model.MethodUnmapped, Confidence: 0},
		},
		AmbiguousMappings: []string{"weird_col"},
		RequiresReview:    true,
	}
	updated := Resume(result, map[string]string{"weird_col": "target_field"})
	if updated.RequiresReview {
		t.Errorf("expected review resolved after decision applied")
	}
	if updated.Mappings[0].Method != model.MethodManual || *updated.Mappings[0].TargetColumn != "target_field" {
		t.Errorf("unexpected mapping after resume: %+v", updated.Mappings[0])
	}
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := Fingerprint([]string{"b", "a", "c"})
	b := Fingerprint([]string{"a", "b", "c"})
	if a != b {
		t.Errorf("expected fingerprint to be order-independent")
	}
}

func TestBigramSimilarity_Identical(t *testing.T) {
	if bigramSimilarity("hello", "hello") != 1 {
		t.Errorf("expected similarity 1 for identical strings")
	}
}

func TestBigramSimilarity_Disjoint(t *testing.T) {
	if s := bigramSimilarity("abc", "xyz"); s != 0 {
		t.Errorf("expected similarity 0 for disjoint strings, got %f", s)
	}
}
