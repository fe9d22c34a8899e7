// Package mapping implements the ingestion pipeline's third stage: matching
// source columns onto a CanonicalSchema's target columns, or passthrough
// identity mapping when no schema is given.
package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/yourorg/csv-ingest/internal/model"
)

const (
	// DefaultThreshold is the confidence cutoff below which a resolved
	// mapping is considered ambiguous and surfaced for review.
	DefaultThreshold = 0.8
	fuzzyMinSimilarity = 0.5
	alternativeMinSimilarity = 0.4
	maxAlternatives = 3
)

var separatorRe = regexp.MustCompile(`[_\-\s]+`)
var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)

func normalize(s string) string {
	s = strings.ToLower(s)
	s = separatorRe.ReplaceAllString(s, "")
	s = nonAlnumRe.ReplaceAllString(s, "")
	return s
}

// Fingerprint hashes the sorted source column names so recurring inputs
// with the same header set can reuse a stored MappingTemplate.
func Fingerprint(sourceColumns []string) string {
	sorted := append([]string(nil), sourceColumns...)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "\x1f")))
	return hex.EncodeToString(h[:])
}

// TemplateLookup resolves a stored MappingTemplate for (schemaID, fingerprint),
// or reports found=false. Implemented by the relational store in production;
// a nil TemplateLookup disables the reuse hook entirely.
type TemplateLookup func(schemaID, fingerprint string) (tmpl *model.MappingTemplate, found bool)

// candidate is one available target column during greedy assignment.
type candidate struct {
	def *model.ColumnDefinition
}

// Run produces a MappingResult for the given inferred schema against an
// optional canonical schema. schemaID is used only for the template-reuse
// hook and may be empty when lookup is nil.
func Run(schemaID string, inferred *model.InferredSchema, schema *model.CanonicalSchema, threshold float64, lookup TemplateLookup) *model.MappingResult {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	sourceColumns := make([]string, len(inferred.Columns))
	for i, c := range inferred.Columns {
		sourceColumns[i] = c.Name
	}

	if schema == nil {
		return passthrough(sourceColumns)
	}

	if lookup != nil {
		fp := Fingerprint(sourceColumns)
		if tmpl, found := lookup(schemaID, fp); found {
			return fromTemplate(tmpl, sourceColumns)
		}
	}

	pool := make([]candidate, len(schema.Columns))
	for i := range schema.Columns {
		pool[i] = candidate{def: &schema.Columns[i]}
	}

	result := &model.MappingResult{}
	for _, source := range sourceColumns {
		m, idx := resolveOne(source, pool, threshold)
		if idx >= 0 {
			pool = append(pool[:idx], pool[idx+1:]...)
		}
		if isAmbiguous(m, schema, threshold) {
			result.AmbiguousMappings = append(result.AmbiguousMappings, source)
		}
		result.Mappings = append(result.Mappings, m)
	}
	result.RequiresReview = len(result.AmbiguousMappings) > 0
	return result
}

func passthrough(sourceColumns []string) *model.MappingResult {
	result := &model.MappingResult{}
	for _, source := range sourceColumns {
		target := source
		result.Mappings = append(result.Mappings, model.ColumnMapping{
			SourceColumn: source,
			TargetColumn: &target,
			Method:       model.MethodExact,
			Confidence:   1.0,
		})
	}
	return result
}

func fromTemplate(tmpl *model.MappingTemplate, sourceColumns []string) *model.MappingResult {
	result := &model.MappingResult{}
	bySource := make(map[string]model.ColumnMapping, len(tmpl.Mappings))
	for _, m := range tmpl.Mappings {
		bySource[m.SourceColumn] = m
	}
	for _, source := range sourceColumns {
		m, ok := bySource[source]
		if !ok {
			m = model.ColumnMapping{SourceColumn: source, Method: model.MethodUnmapped}
		} else {
			m.Method = model.MethodManual
			m.Confidence = 1.0
			m.AlternativeMappings = nil
		}
		result.Mappings = append(result.Mappings, m)
	}
	return result
}

// resolveOne tries the four strategies in precedence order against the
// current candidate pool, returning the chosen mapping and the pool index
// consumed (-1 if none was).
func resolveOne(source string, pool []candidate, threshold float64) (model.ColumnMapping, int) {
	if idx := findExact(source, pool); idx >= 0 {
		return build(source, pool[idx].def, model.MethodExact, 1.0, pool, idx, threshold), idx
	}
	if idx := findCaseInsensitive(source, pool); idx >= 0 {
		return build(source, pool[idx].def, model.MethodCaseInsensitive, 0.95, pool, idx, threshold), idx
	}
	if idx := findAlias(source, pool); idx >= 0 {
		return build(source, pool[idx].def, model.MethodAlias, 0.9, pool, idx, threshold), idx
	}
	if idx, sim := findFuzzy(source, pool); idx >= 0 {
		return build(source, pool[idx].def, model.MethodFuzzy, sim, pool, idx, threshold), idx
	}

	m := model.ColumnMapping{
		SourceColumn: source,
		Method:       model.MethodUnmapped,
		Confidence:   0,
	}
	return m, -1
}

func findExact(source string, pool []candidate) int {
	for i, c := range pool {
		if c.def.Name == source {
			return i
		}
	}
	return -1
}

func findCaseInsensitive(source string, pool []candidate) int {
	lower := strings.ToLower(source)
	for i, c := range pool {
		if strings.ToLower(c.def.Name) == lower {
			return i
		}
	}
	return -1
}

func findAlias(source string, pool []candidate) int {
	lower := strings.ToLower(source)
	norm := normalize(source)
	for i, c := range pool {
		for _, alias := range c.def.Aliases {
			if strings.ToLower(alias) == lower || normalize(alias) == norm {
				return i
			}
		}
	}
	return -1
}

func findFuzzy(source string, pool []candidate) (int, float64) {
	best := -1
	bestSim := 0.0
	norm := normalize(source)
	for i, c := range pool {
		sim := maxSimilarity(norm, c.def)
		if sim >= fuzzyMinSimilarity && sim > bestSim {
			bestSim = sim
			best = i
		}
	}
	return best, bestSim
}

func maxSimilarity(normSource string, def *model.ColumnDefinition) float64 {
	best := bigramSimilarity(normSource, normalize(def.Name))
	for _, alias := range def.Aliases {
		if s := bigramSimilarity(normSource, normalize(alias)); s > best {
			best = s
		}
	}
	return best
}

// build finalizes a resolved mapping, attaching alternatives when the
// chosen confidence is below threshold.
func build(source string, def *model.ColumnDefinition, method model.MappingMethod, confidence float64, pool []candidate, chosenIdx int, threshold float64) model.ColumnMapping {
	target := def.Name
	m := model.ColumnMapping{
		SourceColumn: source,
		TargetColumn: &target,
		Method:       method,
		Confidence:   confidence,
	}
	if confidence < threshold {
		norm := normalize(source)
		var alts []model.AlternativeMapping
		for i, c := range pool {
			if i == chosenIdx {
				continue
			}
			sim := maxSimilarity(norm, c.def)
			if sim >= alternativeMinSimilarity {
				alts = append(alts, model.AlternativeMapping{TargetColumn: c.def.Name, Confidence: sim})
			}
		}
		sort.Slice(alts, func(i, j int) bool { return alts[i].Confidence > alts[j].Confidence })
		if len(alts) > maxAlternatives {
			alts = alts[:maxAlternatives]
		}
		m.AlternativeMappings = alts
	}
	return m
}

func isAmbiguous(m model.ColumnMapping, schema *model.CanonicalSchema, threshold float64) bool {
	if m.IsAmbiguous(threshold) {
		return true
	}
	if m.Method == model.MethodUnmapped && schema.Strict {
		return true
	}
	return false
}

// Resume applies human decisions to a suspended MappingResult along the
// resume path: each named source column's mapping is replaced with
// method=manual, confidence=1.0, alternatives cleared. Returns the
// updated result, whose RequiresReview reports whether review is still
// required.
func Resume(result *model.MappingResult, decisions map[string]string) *model.MappingResult {
	for i := range result.Mappings {
		if target, ok := decisions[result.Mappings[i].SourceColumn]; ok {
			t := target
			result.Mappings[i].TargetColumn = &t
			result.Mappings[i].Method = model.MethodManual
			result.Mappings[i].Confidence = 1.0
			result.Mappings[i].AlternativeMappings = nil
		}
	}

	var stillAmbiguous []string
	for _, src := range result.AmbiguousMappings {
		if _, resolved := decisions[src]; !resolved {
			stillAmbiguous = append(stillAmbiguous, src)
		}
	}
	result.AmbiguousMappings = stillAmbiguous
	result.RequiresReview = len(stillAmbiguous) > 0
	return result
}
