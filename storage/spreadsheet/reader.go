package spreadsheet

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"

	"github.com/tesoreria/backend/core/student"
)

var ErrUnsupportedFormat = errors.New("unsupported file format; expected .csv, .xlsx or .xls")

// ReadRecords reads the first sheet of a ledger export. The format is taken from the
// extension of filename. Rows are padded to the width of the header.
func ReadRecords(r io.Reader, filename string) ([][]string, error) {
	var records [][]string
	var err error

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return student.ReadRecords(r)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(r)
	case ".xls":
		records, err = readXLS(r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, student.ErrEmptyFile
	}
	return pad(records), nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening xlsx")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, student.ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheets[0])
	}
	return rows, nil
}

func readXLS(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "io.ReadAll")
	}
	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		// xlsx files are sometimes saved with the legacy extension
		if records, errX := readXLSX(bytes.NewReader(data)); errX == nil {
			return records, nil
		}
		return nil, errors.Wrap(err, "opening xls")
	}
	if len(workbook.GetSheets()) == 0 {
		return nil, student.ErrEmptyFile
	}
	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, errors.Wrap(err, "reading xls sheet")
	}

	var records [][]string
	for _, row := range sheet.GetRows() {
		var rec []string
		for _, cell := range row.GetCols() {
			rec = append(rec, strings.TrimSpace(cell.GetString()))
		}
		records = append(records, rec)
	}
	return records, nil
}

// pad extends the rows trimmed by the readers to the width of the header.
func pad(records [][]string) [][]string {
	width := len(records[0])
	for i, rec := range records[1:] {
		if len(rec) == 0 || len(rec) >= width {
			continue
		}
		padded := make([]string, width)
		copy(padded, rec)
		records[i+1] = padded
	}
	return records
}
