package services

import (
	"io"
	"strings"

	"academianet/apperrors"
	"academianet/models"

	"github.com/xuri/excelize/v2"
)

// parseWindowRows bounds how many records are held before being handed on.
const parseWindowRows = 1000

// ParseWorkbookWindows streams the first sheet of an xlsx workbook and calls
// emit with consecutive windows of at most windowSize records, in row order.
// The first non-blank row is the header; blank header cells and blank rows are
// skipped.
func ParseWorkbookWindows(r io.Reader, windowSize int, emit func([]models.SpreadsheetRecord) error) error {
	if windowSize <= 0 {
		windowSize = parseWindowRows
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return apperrors.Wrap(apperrors.KindParse, err, "no se pudo leer el archivo Excel")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return apperrors.New(apperrors.KindParse, "el archivo Excel no tiene hojas")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return apperrors.Wrap(apperrors.KindParse, err, "no se pudo leer la hoja "+sheets[0])
	}
	defer rows.Close()

	var header []string
	window := make([]models.SpreadsheetRecord, 0, windowSize)
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return apperrors.Wrap(apperrors.KindParse, err, "fila ilegible en "+sheets[0])
		}
		if header == nil {
			if blankRow(cells) {
				continue
			}
			header = make([]string, len(cells))
			for i, c := range cells {
				header[i] = strings.TrimSpace(c)
			}
			continue
		}
		rec, ok := toRecord(header, cells)
		if !ok {
			continue
		}
		window = append(window, rec)
		if len(window) == windowSize {
			if err := emit(window); err != nil {
				return err
			}
			window = make([]models.SpreadsheetRecord, 0, windowSize)
		}
	}
	if err := rows.Error(); err != nil {
		return apperrors.Wrap(apperrors.KindParse, err, "error leyendo "+sheets[0])
	}
	if len(window) > 0 {
		return emit(window)
	}
	return nil
}

// ParseWorkbook returns every record of the first sheet.
func ParseWorkbook(r io.Reader) ([]models.SpreadsheetRecord, error) {
	var all []models.SpreadsheetRecord
	err := ParseWorkbookWindows(r, parseWindowRows, func(w []models.SpreadsheetRecord) error {
		all = append(all, w...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func toRecord(header, cells []string) (models.SpreadsheetRecord, bool) {
	rec := make(models.SpreadsheetRecord, len(header))
	blank := true
	for i, name := range header {
		if name == "" {
			continue
		}
		if _, seen := rec[name]; seen {
			continue
		}
		v := ""
		if i < len(cells) {
			v = cells[i]
		}
		if strings.TrimSpace(v) != "" {
			blank = false
		}
		rec[name] = v
	}
	return rec, !blank
}
