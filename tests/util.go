package testutil

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
	"github.com/tesoreria/backend/fs"
	"github.com/tesoreria/backend/services/email"
	"github.com/tesoreria/backend/services/logger"
	"github.com/tesoreria/backend/services/sequence"
	"github.com/tesoreria/backend/storage/database/inmem"
)

// LedgerHeader is the header row of a ledger export.
const LedgerHeader = "NOMBRE;RUT;CURSO;ARANCEL;BECA;MARZO;ABRIL;MAYO;JUNIO;JULIO;AGOSTO;SEPTIEMBRE;OCTUBRE;NOVIEMBRE;DICIEMBRE;TOTAL PAGADO"

// LedgerLine builds a ledger export row; payments maps installment columns (1-10) to amounts.
func LedgerLine(name, rut, class, tuition, scholarship string, payments map[int]string, total string) string {
	fields := []string{name, rut, class, tuition, scholarship}
	for i := 1; i <= ledger.RawInstallmentColumns; i++ {
		fields = append(fields, payments[i])
	}
	fields = append(fields, total)
	return strings.Join(fields, ";")
}

// LedgerCSV joins the header and lines into an export file.
func LedgerCSV(lines ...string) string {
	return LedgerHeader + "\n" + strings.Join(lines, "\n") + "\n"
}

// Roster is a ledger export covering every account status:
//   - AGUAYO: 2 installments paid (pending)
//   - BRAVO: graduating class, one payment recorded in an ignored 10th column (pending)
//   - CARRASCO: nothing paid (delinquent)
//   - DIAZ: full scholarship (fully-exempt)
//   - ESPINOZA: reported total disagrees with the installments (pending, discrepancy)
//   - FUENTES: single payment on the last installment, overflowing (late-enrollment)
//
// plus an invalid RUT, a repeated RUT and a totals line, all skipped.
var Roster = LedgerCSV(
	LedgerLine("AGUAYO MOLINA TOMÁS", "12.345.678-5", "1 BASICO A", "$1.265.000", "$126.500", map[int]string{1: "$113.850", 2: "$113.850"}, "$227.700"),
	LedgerLine("BRAVO SOTO ANA", "9.876.543-2", "4 MEDIO B", "$900.000", "0", map[int]string{1: "$100.000", 10: "$50.000"}, "$150.000"),
	LedgerLine("CARRASCO DIAZ LUIS", "11.111.111-1", "2 BASICO A", "$1.000.000", "$0", nil, "$0"),
	LedgerLine("DIAZ PEREZ SOFÍA", "22.222.222-2", "3 BASICO A", "$1.000.000", "$1.000.000", nil, "$0"),
	LedgerLine("ESPINOZA ROJAS PEDRO", "13.131.313-1", "1 BASICO A", "$1.000.000", "0", map[int]string{1: "$100.000"}, "$200.000"),
	LedgerLine("FUENTES LARA JOSÉ", "14.141.414-1", "1 BASICO A", "$100.000", "0", map[int]string{10: "$15.000"}, "$15.000"),
	LedgerLine("GONZÁLEZ RUT MALO", "abc", "1 BASICO A", "$1.000.000", "0", nil, "$0"),
	LedgerLine("AGUAYO REPETIDO", "12345678-5", "1 BASICO A", "$1.000.000", "0", nil, "$0"),
	LedgerLine("TOTALES", "", "", "$6.265.000", "", nil, "$592.700"),
)

// Contacts matches AGUAYO by RUT and CARRASCO by name only.
const Contacts = "rut;alumno;apoderado;correo\n" +
	"12.345.678-5;Aguayo Molina Tomas;María Molina;MMOLINA@mail.cl\n" +
	"99.999.999-9;Carrasco Dias Luis;Pedro Carrasco;pcarrasco@mail.cl\n"

// Today is a day of June 2025: installments 1 to 4 are past due.
var Today = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

// NewLogger returns a logger that discards its output.
func NewLogger(conf *core.Config) core.Logger {
	l := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	l.Enable(false)
	return l
}

func NewEmailTemplates(t *testing.T, conf *core.Config) *core.EmailTemplates {
	tmpls, err := core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir)
	if err != nil {
		t.Fatalf("NewEmailTemplates() failed: %v", err)
	}
	return tmpls
}

// NewStudentService wires a student service on top of in-memory storage and the
// synchronous console mail mock. Sent messages are cleared.
func NewStudentService(t *testing.T, conf *core.Config) (*student.Service, student.Repository) {
	emailsvc.ClearSentMessages()
	db := inmemdb.Open()
	repo := inmemdb.NewStudentRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, NewEmailTemplates(t, conf))
	svc := student.NewService(nil, repo, inmemdb.NewReportRepository(db), mailSvc, seqsvc.NewMemorySequencer(), conf, NewLogger(conf))
	return svc, repo
}

// ImportRoster imports Roster and Contacts through svc.
func ImportRoster(t *testing.T, svc *student.Service, schoolYear int) student.ImportReport {
	rows, skipped, err := student.ParseCSV(strings.NewReader(Roster), schoolYear)
	if err != nil {
		t.Fatalf("ImportRoster() failed: %v", err)
	}
	contacts, err := student.ParseContactsCSV(strings.NewReader(Contacts))
	if err != nil {
		t.Fatalf("ImportRoster() failed: %v", err)
	}
	report, err := svc.Import(context.Background(), student.ImportBatch{
		Source:   "roster.csv",
		Rows:     rows,
		Skipped:  skipped,
		Contacts: contacts,
	})
	if err != nil {
		t.Fatalf("ImportRoster() failed: %v", err)
	}
	return report
}
