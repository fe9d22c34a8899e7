// Package infer implements the ingestion pipeline's second stage: per-column
// type voting over sampled values.
package infer

import (
	"encoding/json"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/yourorg/csv-ingest/internal/model"
)

// typeOrder is the per-sample detection precedence, most specific first.
var typeOrder = []model.ColumnType{
	model.TypeUUID,
	model.TypeEmail,
	model.TypeURL,
	model.TypeDatetime,
	model.TypeDate,
	model.TypeBoolean,
	model.TypeInteger,
	model.TypeFloat,
	model.TypeJSON,
	model.TypeString,
}

var (
	uuidRe = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	isoRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

var boolValues = map[string]bool{
	"true": true, "1": true, "yes": true, "y": true, "on": true,
	"false": true, "0": true, "no": true, "n": true, "off": true,
}

// detectType classifies one non-empty sample value per the precedence in
// typeOrder. Always succeeds: "string" is the universal fallback.
func detectType(v string) model.ColumnType {
	if uuidRe.MatchString(v) {
		return model.TypeUUID
	}
	if _, err := mail.ParseAddress(v); err == nil && strings.Contains(v, "@") {
		return model.TypeEmail
	}
	if u, err := url.ParseRequestURI(v); err == nil && u.Scheme != "" && u.Host != "" {
		return model.TypeURL
	}
	if isoRe.MatchString(v) && !dateRe.MatchString(v) {
		return model.TypeDatetime
	}
	if dateRe.MatchString(v) {
		return model.TypeDate
	}
	// "1" and "0" fall through to integer so that numeric columns holding
	// them still vote (and promote) as numbers.
	if lower := strings.ToLower(v); boolValues[lower] && lower != "1" && lower != "0" {
		return model.TypeBoolean
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return model.TypeInteger
	}
	if isFloat(v) {
		return model.TypeFloat
	}
	var js any
	if json.Unmarshal([]byte(v), &js) == nil {
		if _, ok := js.(float64); !ok {
			if _, ok := js.(bool); !ok {
				return model.TypeJSON
			}
		}
	}
	return model.TypeString
}

// isFloat rejects values ParseFloat would otherwise accept but that aren't
// decimal numbers in the plain sense (e.g. "1e10", "0x1p0", "NaN", "Inf").
func isFloat(v string) bool {
	if strings.ContainsAny(v, "eExXpP") {
		return false
	}
	lower := strings.ToLower(v)
	if lower == "nan" || strings.Contains(lower, "inf") {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

const maxSampleValues = 5

// Column runs type voting over one source column's sample values (the raw
// strings in row order; empty strings are treated as null).
func Column(name string, values []string) model.InferredColumn {
	votes := make(map[model.ColumnType]int)
	seen := make(map[string]bool)
	var samples []string
	nullCount := 0
	nonNull := 0

	for _, raw := range values {
		if strings.TrimSpace(raw) == "" {
			nullCount++
			continue
		}
		nonNull++
		votes[detectType(raw)]++
		if !seen[raw] {
			seen[raw] = true
			if len(samples) < maxSampleValues {
				samples = append(samples, raw)
			}
		}
	}

	winner, count := pickWinner(votes)

	uniqueRatio := 0.0
	if nonNull > 0 {
		uniqueRatio = float64(len(seen)) / float64(nonNull)
	}
	confidence := 0.0
	if nonNull > 0 {
		confidence = float64(count) / float64(nonNull)
	}

	return model.InferredColumn{
		Name:         name,
		InferredType: winner,
		Confidence:   confidence,
		Nullable:     nullCount > 0,
		UniqueRatio:  uniqueRatio,
		SampleValues: samples,
		NullCount:    nullCount,
		TotalCount:   len(values),
	}
}

// pickWinner applies the integer/float promotion rule: if integer is the
// mode but any value voted float, the column becomes float and its
// credited count is integer+float combined. Ties among remaining types
// break by typeOrder precedence.
func pickWinner(votes map[model.ColumnType]int) (model.ColumnType, int) {
	if len(votes) == 0 {
		return model.TypeString, 0
	}

	best := typeOrder[len(typeOrder)-1]
	bestCount := -1
	for _, t := range typeOrder {
		if c, ok := votes[t]; ok && c > bestCount {
			bestCount = c
			best = t
		}
	}

	if best == model.TypeInteger {
		if floatVotes, ok := votes[model.TypeFloat]; ok && floatVotes > 0 {
			return model.TypeFloat, votes[model.TypeInteger] + floatVotes
		}
	}

	return best, bestCount
}

// Run builds the InferredSchema for every parsed column, carrying the row
// count and parse errors forward from the parse stage.
func Run(columns []string, rows []map[string]string, totalRowCount int, parseErrors []model.ParseRowError) *model.InferredSchema {
	out := &model.InferredSchema{
		Columns:     make([]model.InferredColumn, 0, len(columns)),
		RowCount:    totalRowCount,
		ParseErrors: parseErrors,
	}
	for _, col := range columns {
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			values = append(values, row[col])
		}
		out.Columns = append(out.Columns, Column(col, values))
	}
	return out
}
