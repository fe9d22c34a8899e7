// Package xlsxsource adapts an uploaded XLSX workbook into the CSV bytes
// the ingestion pipeline consumes. Only the first sheet is read; workbook
// formatting, formulas, and additional sheets are out of scope.
package xlsxsource

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Converter implements orchestrator.XLSXConverter.
type Converter struct{}

func New() *Converter { return &Converter{} }

// ToCSV opens the workbook, reads the first sheet's rows, and re-encodes
// them as RFC 4180 CSV so the rest of the pipeline never has to know the
// original format.
func (c *Converter) ToCSV(data []byte) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsxsource: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsxsource: workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("xlsxsource: read sheet %q: %w", sheets[0], err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("xlsxsource: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
