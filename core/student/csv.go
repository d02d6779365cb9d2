package student

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/tesoreria/backend/core/ledger"
)

// ledger export layout: name;rut;class;tuition;scholarship;10 installments;reported total
const (
	colName = iota
	colRUT
	colClass
	colTuition
	colScholarship
	colFirstInstallment

	minColumns = colFirstInstallment + 1 // at least the reported total after the fixed columns
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}

	ErrEmptyFile = errors.New("the file is empty")
)

// ReadRecords reads a semicolon separated file. Files that are not valid UTF-8 are
// decoded as Latin-1, the encoding spreadsheet tools use for their CSV exports.
func ReadRecords(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "io.ReadAll")
	}
	if utf8.Valid(data) {
		data = bytes.TrimPrefix(data, utf8BOM)
	} else if data, _, err = transform.Bytes(charmap.ISO8859_1.NewDecoder(), data); err != nil {
		return nil, errors.Wrap(err, "decoding latin-1")
	}

	rdr := csv.NewReader(bytes.NewReader(data))
	rdr.Comma = ';'
	rdr.FieldsPerRecord = -1
	rdr.LazyQuotes = true
	rdr.TrimLeadingSpace = true

	records, err := rdr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "csv.ReadAll")
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return records, nil
}

// ParseCSV reads the rows of a ledger export. See ParseRecords.
func ParseCSV(r io.Reader, schoolYear int) ([]ledger.InputRow, int, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, 0, err
	}
	rows, skipped := ParseRecords(records, schoolYear)
	return rows, skipped, nil
}

// ParseRecords turns the records of a ledger export into input rows.
// The first record is the header. Blank records are ignored; records shorter than the
// header and "total" lines are skipped and counted.
func ParseRecords(records [][]string, schoolYear int) (rows []ledger.InputRow, skipped int) {
	if len(records) == 0 {
		return nil, 0
	}
	headerLen := len(records[0])
	if headerLen < minColumns {
		headerLen = minColumns
	}

	rows = make([]ledger.InputRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		name := strings.TrimSpace(rec[colName])
		if len(rec) < headerLen || isTotalsLine(name) {
			skipped++
			continue
		}

		last := len(rec) - 1
		end := colFirstInstallment + ledger.RawInstallmentColumns
		if end > last {
			end = last
		}
		payments := make([]string, 0, ledger.RawInstallmentColumns)
		for _, v := range rec[colFirstInstallment:end] {
			payments = append(payments, strings.TrimSpace(v))
		}

		rows = append(rows, ledger.InputRow{
			Line:                   i + 2,
			Name:                   name,
			NationalID:             strings.TrimSpace(rec[colRUT]),
			ClassName:              strings.TrimSpace(rec[colClass]),
			SchoolYear:             schoolYear,
			TuitionGross:           strings.TrimSpace(rec[colTuition]),
			Scholarship:            strings.TrimSpace(rec[colScholarship]),
			RawInstallmentPayments: payments,
			ReportedTotalPaid:      strings.TrimSpace(rec[last]),
		})
	}
	return rows, skipped
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func isTotalsLine(name string) bool {
	n := strings.ToLower(name)
	return n == "total" || n == "totales"
}
