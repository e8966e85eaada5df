package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// BuildWorkbook writes header and rows to the first sheet of a new xlsx file.
func BuildWorkbook(t *testing.T, header []string, rows [][]string) []byte {
	t.Helper()
	return BuildWorkbookAt(t, 1, header, rows)
}

// BuildWorkbookAt is BuildWorkbook with the header on sheet row headerRow.
// The rows above it are left out of the sheet.
func BuildWorkbookAt(t *testing.T, headerRow int, header []string, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	write := func(n int, values []string) {
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, n)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &cells))
	}
	write(headerRow, header)
	for i, r := range rows {
		write(headerRow+1+i, r)
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}
