package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
	"github.com/tesoreria/backend/storage/spreadsheet"
)

func (cli *commandLine) readLedger(path string) ([]ledger.InputRow, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "opening ledger")
	}
	defer func() { _ = f.Close() }()

	records, err := spreadsheet.ReadRecords(f, path)
	if err != nil {
		return nil, 0, err
	}
	rows, skipped := student.ParseRecords(records, cli.conf.Treasury.SchoolYear)
	return rows, skipped, nil
}

func (cli *commandLine) importLedger(path, contactsPath string) error {
	rows, skipped, err := cli.readLedger(path)
	if err != nil {
		return err
	}
	batch := student.ImportBatch{Source: filepath.Base(path), Rows: rows, Skipped: skipped}

	if contactsPath != "" {
		f, err := os.Open(contactsPath)
		if err != nil {
			return errors.Wrap(err, "opening contacts")
		}
		defer func() { _ = f.Close() }()
		if batch.Contacts, err = student.ParseContactsCSV(f); err != nil {
			return err
		}
	}

	report, err := cli.svc.Import(context.Background(), batch)
	if err != nil {
		return err
	}

	cli.printf("Año escolar %d: %d alumnos importados, %d filas omitidas\n", report.SchoolYear, report.Imported, report.Skipped)
	for _, w := range report.Warnings {
		cli.println("  aviso:", w)
	}
	if len(report.Overflows) > 0 {
		cli.println("Pagos sin cuota asignada:")
		for _, o := range report.Overflows {
			cli.printf("  línea %d %s %s: %s (%s)\n", o.Line, ledger.FormatRUT(o.RUT), o.Name, ledger.FormatCurrency(o.Amount), o.Detail)
		}
	}
	if len(report.Discrepancies) > 0 {
		cli.println("Diferencias con el total informado:")
		for _, d := range report.Discrepancies {
			cli.printf("  línea %d %s %s: %s\n", d.Line, ledger.FormatRUT(d.RUT), d.Name, ledger.FormatCurrency(d.Amount))
		}
	}
	return nil
}

func (cli *commandLine) verifyLedger(path, xlsxPath string) error {
	rows, skipped, err := cli.readLedger(path)
	if err != nil {
		return err
	}
	results, err := cli.svc.Verify(context.Background(), rows)
	if err != nil {
		return err
	}

	tolerance := cli.conf.Treasury.DiscrepancyTolerance
	var review int
	for _, res := range results {
		flagged := res.Discrepancy.Flagged(tolerance)
		if !res.NeedsReview() && !flagged {
			continue
		}
		review++
		cli.printf("línea %d %s %s:", res.Line, ledger.FormatRUT(res.Account.ID), res.Account.Name)
		if res.Allocation.LeftoverOverflow > 0 {
			cli.printf(" sin asignar %s;", ledger.FormatCurrency(res.Allocation.LeftoverOverflow))
		}
		for _, o := range res.IgnoredColumns {
			cli.printf(" columna %d ignorada %s;", o.Origin, ledger.FormatCurrency(o.Amount))
		}
		if flagged {
			cli.printf(" diferencia %s;", ledger.FormatCurrency(res.Discrepancy.Difference))
		}
		cli.println()
	}
	cli.printf("%d filas, %d omitidas, %d por revisar\n", len(rows), skipped, review)

	if xlsxPath == "" {
		return nil
	}
	return writeWorkbook(xlsxPath, verifyReport(results, tolerance))
}

// verifyReport lays out reconciliation results as a report, without touching the roster.
func verifyReport(results []ledger.Result, tolerance int64) spreadsheet.Report {
	rep := spreadsheet.Report{GeneratedAt: student.NowFunc()}
	accounts := make([]ledger.Account, 0, len(results))
	for _, res := range results {
		s := student.Student{
			Account:           res.Account,
			ReportedTotalPaid: res.Discrepancy.Reported,
			RawTotal:          res.Discrepancy.RawTotal,
		}
		rep.Students = append(rep.Students, s)
		accounts = append(accounts, res.Account)
		if res.Discrepancy.Flagged(tolerance) {
			rep.Discrepancies = append(rep.Discrepancies, student.DiscrepancyEntry{
				RUT:        s.ID,
				Name:       s.Name,
				ClassName:  s.ClassName,
				RawTotal:   res.Discrepancy.RawTotal,
				Reported:   res.Discrepancy.Reported,
				Credited:   res.Discrepancy.Credited,
				Difference: res.Discrepancy.Difference,
			})
		}
	}

	for i, credited := range ledger.InstallmentTotals(accounts) {
		total := student.InstallmentTotal{Number: i + 1, Month: ledger.MonthName(i + 1), Credited: credited}
		for _, acc := range accounts {
			if i < len(acc.Installments) && acc.Installments[i].Paid {
				total.Paid++
			}
		}
		rep.Installments = append(rep.Installments, total)
	}
	return rep
}

func writeWorkbook(path string, rep spreadsheet.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating workbook")
	}
	if err = spreadsheet.WriteReport(f, rep); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "closing workbook")
}
