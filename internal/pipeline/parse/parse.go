// Package parse implements the ingestion pipeline's first stage: delimiter
// detection and a relaxed, streaming CSV-family tokenizer. Input is
// treated as hostile — malformed rows are recorded and kept (long rows
// truncated, short rows padded) rather than aborting the whole file.
package parse

import (
	"fmt"
	"strings"

	"github.com/yourorg/csv-ingest/internal/model"
)

// candidateDelimiters is the fixed set of delimiters considered, in
// priority order for tie-breaking (comma wins ties, since it is also the
// default).
var candidateDelimiters = []byte{',', ';', '\t', '|'}

const sniffWindow = 4096

// DetectDelimiter counts each candidate's occurrences on the first line of
// the first 4 KiB of data and returns the most frequent one (ties broken
// by candidateDelimiters order). Falls back to ',' if nothing scores >=1.
func DetectDelimiter(data []byte) byte {
	window := data
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	firstLine := window
	if idx := indexByte(window, '\n'); idx >= 0 {
		firstLine = window[:idx]
	}

	best := byte(',')
	bestCount := 0
	for _, cand := range candidateDelimiters {
		count := 0
		for _, b := range firstLine {
			if b == cand {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			best = cand
		}
	}
	return best
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Result is the parse stage's output: the header-derived column list, up
// to sampleSize full row maps, the total row count found by streaming to
// the end of the file, and any non-fatal row errors.
type Result struct {
	Columns           []string
	Rows              []map[string]string
	TotalRowCount      int
	ParseErrors        []model.ParseRowError
	DetectedDelimiter  string
}

// tokenizer is a small hand-rolled state machine: quote-aware, delimiter-
// parameterized, RFC-4180-ish with "" as the escape for an embedded quote.
// It runs over the whole in-memory blob; files streaming from disk in
// chunks larger than memory are out of scope.
type tokenizer struct {
	data  []byte
	pos   int
	delim byte
}

// next returns the next record (one row of raw fields) and whether one was
// produced; io.EOF is signalled by ok=false with err=nil. A malformed
// record (unterminated quote) is still returned, with err describing the
// problem so the caller can log a parse error without losing the row.
func (t *tokenizer) next() (fields []string, err error, ok bool) {
	if t.pos >= len(t.data) {
		return nil, nil, false
	}

	var field strings.Builder
	inQuotes := false
	sawQuote := false
	var unterminated bool

	flushField := func() {
		fields = append(fields, field.String())
		field.Reset()
	}

	for t.pos < len(t.data) {
		c := t.data[t.pos]

		if inQuotes {
			if c == '"' {
				if t.pos+1 < len(t.data) && t.data[t.pos+1] == '"' {
					field.WriteByte('"')
					t.pos += 2
					continue
				}
				inQuotes = false
				t.pos++
				continue
			}
			field.WriteByte(c)
			t.pos++
			continue
		}

		switch {
		case c == '"' && field.Len() == 0 && !sawQuote:
			inQuotes = true
			sawQuote = true
			t.pos++
		case c == t.delim:
			flushField()
			sawQuote = false
			t.pos++
		case c == '\r':
			t.pos++
		case c == '\n':
			t.pos++
			flushField()
			return fields, nil, true
		default:
			field.WriteByte(c)
			t.pos++
		}
	}

	// Reached end of data without a trailing newline.
	if inQuotes {
		unterminated = true
	}
	flushField()
	if unterminated {
		err = fmt.Errorf("unterminated quoted field")
	}
	return fields, err, true
}

// isBlankRecord reports whether every field is empty/whitespace — such
// lines are skipped entirely, not counted as rows.
func isBlankRecord(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// alignRecord pads a short record with empty strings, or truncates a long
// one to headerCount. Truncation is reported back to the caller so it can
// be recorded as a non-fatal parse error.
func alignRecord(fields []string, headerCount int) (aligned []string, truncated bool) {
	if len(fields) == headerCount {
		return fields, false
	}
	if len(fields) < headerCount {
		out := make([]string, headerCount)
		copy(out, fields)
		return out, false
	}
	return fields[:headerCount], true
}

// Parse detects the delimiter, reads the header row, and streams the rest
// of the file. Up to sampleSize full row maps are retained for the infer
// stage; the remainder is only counted, never materialized, so a stage
// running against a huge file doesn't need a second full pass just to know
// its row count.
func Parse(data []byte, sampleSize int) (*Result, error) {
	if sampleSize <= 0 {
		sampleSize = 1000
	}
	return parse(data, sampleSize, false)
}

// ParseAll re-parses the whole file with no row cap: every row is
// materialized into Result.Rows. Used by the validate and output stages,
// which must operate on the full file rather than the parse stage's
// capped sample.
func ParseAll(data []byte) (*Result, error) {
	return parse(data, 0, true)
}

func parse(data []byte, sampleSize int, unlimited bool) (*Result, error) {
	delim := DetectDelimiter(data)
	t := &tokenizer{data: data, delim: delim}

	headerFields, herr, ok := t.next()
	if !ok {
		// Empty file: no header, no rows.
		return &Result{
			Columns:           []string{},
			Rows:              []map[string]string{},
			TotalRowCount:     0,
			DetectedDelimiter: string(delim),
		}, nil
	}
	if herr != nil {
		return nil, fmt.Errorf("failed to read header row: %w", herr)
	}

	columns := headerFields
	initialCap := sampleSize
	if unlimited {
		initialCap = 64
	}
	result := &Result{
		Columns:           columns,
		Rows:              make([]map[string]string, 0, min(initialCap, 64)),
		DetectedDelimiter: string(delim),
	}

	rowIndex := 0
	for {
		fields, rerr, ok := t.next()
		if !ok {
			break
		}
		if isBlankRecord(fields) {
			continue
		}
		rowIndex++

		aligned, truncated := alignRecord(fields, len(columns))
		if truncated {
			result.ParseErrors = append(result.ParseErrors, model.ParseRowError{
				RowIndex: rowIndex,
				Message:  fmt.Sprintf("row has %d columns, expected %d; truncated", len(fields), len(columns)),
			})
		}
		if rerr != nil {
			result.ParseErrors = append(result.ParseErrors, model.ParseRowError{
				RowIndex: rowIndex,
				Message:  rerr.Error(),
			})
		}

		result.TotalRowCount++
		if unlimited || len(result.Rows) < sampleSize {
			rowMap := make(map[string]string, len(columns))
			for i, col := range columns {
				rowMap[col] = aligned[i]
			}
			result.Rows = append(result.Rows, rowMap)
		}
	}

	return result, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
