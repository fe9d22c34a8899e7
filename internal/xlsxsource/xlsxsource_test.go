package xlsxsource

import (
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, val := range row {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("CoordinatesToCellName: %v", err)
			}
			if err := f.SetCellValue(sheet, axis, val); err != nil {
				t.Fatalf("SetCellValue: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestToCSV_FirstSheetRoundTrips(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"name", "age"},
		{"Alice", "30"},
		{"Bob", "25"},
	})

	out, err := New().ToCSV(data)
	if err != nil {
		t.Fatalf("ToCSV: %v", err)
	}

	text := string(out)
	if !strings.Contains(text, "name,age") {
		t.Errorf("expected header row, got:\n%s", text)
	}
	if !strings.Contains(text, "Alice,30") {
		t.Errorf("expected Alice row, got:\n%s", text)
	}
}

func TestToCSV_BlankDefaultSheetProducesNoRows(t *testing.T) {
	// A minimal empty workbook still has one default sheet; excelize
	// guarantees at least one, so this documents that ToCSV never hits
	// the "no sheets" branch via NewFile()-built input.
	f := excelize.NewFile()
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	out, err := New().ToCSV(buf.Bytes())
	if err != nil {
		t.Fatalf("ToCSV: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no rows from a blank sheet, got:\n%s", out)
	}
}
