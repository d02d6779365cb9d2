package spreadsheet

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
)

// Sheet names of the reconciliation report.
const (
	SheetStudents      = "Alumnos"
	SheetDiscrepancies = "Discrepancias"
	SheetInstallments  = "Cuotas"
	SheetClasses       = "Cursos"
)

var statusLabels = map[ledger.AccountStatus]string{
	ledger.StatusFullyExempt:    "Becado 100%",
	ledger.StatusCurrent:        "Al día",
	ledger.StatusPending:        "Pendiente",
	ledger.StatusLateEnrollment: "Matrícula tardía",
	ledger.StatusDelinquent:     "Moroso",
}

// Report is the content of the reconciliation workbook.
type Report struct {
	Students      []student.Student
	Discrepancies []student.DiscrepancyEntry
	Installments  []student.InstallmentTotal
	Classes       []student.ClassSummary
	GeneratedAt   time.Time
}

// BuildReport collects the report of the current roster.
func BuildReport(ctx context.Context, svc student.ServiceInterface, now time.Time) (Report, error) {
	rep := Report{GeneratedAt: now}
	var err error
	if rep.Students, err = svc.Query(ctx, nil, nil); err != nil {
		return Report{}, errors.Wrap(err, "querying students")
	}
	if rep.Discrepancies, err = svc.Discrepancies(ctx); err != nil {
		return Report{}, errors.Wrap(err, "listing discrepancies")
	}
	if rep.Installments, err = svc.InstallmentTotals(ctx); err != nil {
		return Report{}, errors.Wrap(err, "totaling installments")
	}
	if rep.Classes, err = svc.ClassSummaries(ctx); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// WriteReport writes rep as an XLSX workbook, one sheet per section.
func WriteReport(w io.Writer, rep Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet is renamed rather than left empty
	if err := f.SetSheetName(f.GetSheetName(0), SheetStudents); err != nil {
		return errors.Wrap(err, "renaming sheet")
	}
	for _, name := range []string{SheetDiscrepancies, SheetInstallments, SheetClasses} {
		if _, err := f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "creating sheet %s", name)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating style")
	}
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: strPtr(`"$"#,##0`)})
	if err != nil {
		return errors.Wrap(err, "creating style")
	}

	sw := sheetWriter{f: f, bold: bold, money: money}
	sw.students(rep.Students)
	sw.discrepancies(rep.Discrepancies)
	sw.installments(rep.Installments)
	sw.classes(rep.Classes)
	if sw.err != nil {
		return sw.err
	}

	if !rep.GeneratedAt.IsZero() {
		f.SetDocProps(&excelize.DocProperties{
			Created: rep.GeneratedAt.UTC().Format(time.RFC3339),
			Title:   "Conciliación de aranceles",
		})
	}
	if _, err = f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing xlsx")
	}
	return nil
}

func strPtr(s string) *string { return &s }

// sheetWriter keeps the first error of a run of cell writes.
type sheetWriter struct {
	f     *excelize.File
	bold  int
	money int
	err   error
}

func (sw *sheetWriter) row(sheet string, n int, values []interface{}, moneyCols ...int) {
	if sw.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		sw.err = err
		return
	}
	if err = sw.f.SetSheetRow(sheet, cell, &values); err != nil {
		sw.err = errors.Wrapf(err, "writing %s!%s", sheet, cell)
		return
	}
	for _, col := range moneyCols {
		c, _ := excelize.CoordinatesToCellName(col, n)
		if err = sw.f.SetCellStyle(sheet, c, c, sw.money); err != nil {
			sw.err = err
			return
		}
	}
}

func (sw *sheetWriter) header(sheet string, titles ...interface{}) {
	sw.row(sheet, 1, titles)
	if sw.err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(titles), 1)
	sw.err = sw.f.SetCellStyle(sheet, "A1", last, sw.bold)
}

func (sw *sheetWriter) students(students []student.Student) {
	titles := []interface{}{"Nombre", "RUT", "Curso", "Arancel", "Beca", "Neto", "Cuotas", "Pagadas", "Total pagado", "Pendiente", "Estado"}
	for n := 1; n <= ledger.RawInstallmentColumns; n++ {
		titles = append(titles, ledger.MonthName(n))
	}
	sw.header(SheetStudents, titles...)

	for i, s := range students {
		values := []interface{}{
			s.Name, ledger.FormatRUT(s.ID), s.ClassName, s.TuitionGross, s.Scholarship, s.NetOwed(),
			s.InstallmentCount, s.PaidInstallments(), s.TotalPaidReal, s.Pending, statusLabels[s.Status],
		}
		for n := 1; n <= ledger.RawInstallmentColumns; n++ {
			var credited int64
			if n <= len(s.Installments) {
				credited = s.Installments[n-1].CreditedTotal()
			}
			values = append(values, credited)
		}
		sw.row(SheetStudents, i+2, values, 4, 5, 6, 9, 10)
	}
}

func (sw *sheetWriter) discrepancies(entries []student.DiscrepancyEntry) {
	sw.header(SheetDiscrepancies, "Nombre", "RUT", "Curso", "Suma cuotas", "Total informado", "Abonado", "Diferencia")
	for i, e := range entries {
		sw.row(SheetDiscrepancies, i+2, []interface{}{
			e.Name, ledger.FormatRUT(e.RUT), e.ClassName, e.RawTotal, e.Reported, e.Credited, e.Difference,
		}, 4, 5, 6, 7)
	}
}

func (sw *sheetWriter) installments(totals []student.InstallmentTotal) {
	sw.header(SheetInstallments, "Cuota", "Mes", "Abonado", "Pagadas")
	for i, t := range totals {
		sw.row(SheetInstallments, i+2, []interface{}{t.Number, t.Month, t.Credited, t.Paid}, 3)
	}
}

func (sw *sheetWriter) classes(summaries []student.ClassSummary) {
	sw.header(SheetClasses, "Curso", "Alumnos", "Neto", "Recaudado", "Pendiente", "Morosos", "Becados")
	for i, c := range summaries {
		sw.row(SheetClasses, i+2, []interface{}{
			c.ClassName, c.Students, c.NetOwed, c.Collected, c.Pending, c.Delinquent, c.Exempt,
		}, 3, 4, 5)
	}
}
