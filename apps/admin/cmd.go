package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/student"
)

var (
	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrations need a database; disable the in-memory storage")

	dateLayout = "2006-01-02"
)

type commandLine struct {
	db     *sql.DB // nil with in-memory storage
	svc    *student.Service
	conf   *core.Config
	logger core.Logger
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  import -file FILE [-contacts FILE] - reconcile a ledger export (csv, xlsx, xls) and replace the roster")
	fmt.Fprintln(cli.out, "  verify -file FILE [-xlsx FILE]     - reconcile a ledger export without importing it")
	fmt.Fprintln(cli.out, "  notify [-dry-run] [-date AAAA-MM-DD] - email the guardians of students with overdue installments")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]          - run a goose command (up, down, status, version...)")
}

func (cli *commandLine) println(a ...interface{}) {
	_, _ = fmt.Fprintln(cli.out, a...)
}

func (cli *commandLine) printf(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, a...)
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importFile := importCmd.String("file", "", "The ledger export.")
	importContacts := importCmd.String("contacts", "", "The guardian contacts CSV (rut;alumno;apoderado;correo).")

	verifyCmd := flag.NewFlagSet("verify", flag.ExitOnError)
	verifyFile := verifyCmd.String("file", "", "The ledger export.")
	verifyXLSX := verifyCmd.String("xlsx", "", "Write the reconciliation workbook to this file.")

	notifyCmd := flag.NewFlagSet("notify", flag.ExitOnError)
	notifyDryRun := notifyCmd.Bool("dry-run", false, "List the notices without sending them.")
	notifyDate := notifyCmd.String("date", "", "Day the installments are checked at (default today).")

	switch args[1] {
	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importLedger(*importFile, *importContacts)
	case "verify":
		if err := verifyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *verifyFile == "" {
			verifyCmd.Usage()
			return errHelp
		}
		return cli.verifyLedger(*verifyFile, *verifyXLSX)
	case "notify":
		if err := notifyCmd.Parse(args[2:]); err != nil {
			return err
		}
		today := student.NowFunc().UTC()
		if *notifyDate != "" {
			var err error
			if today, err = time.Parse(dateLayout, *notifyDate); err != nil {
				notifyCmd.Usage()
				return errHelp
			}
		}
		return cli.notify(today, *notifyDryRun)
	case "migrate":
		if len(args) < 3 {
			cli.println("Usage: migrate COMMAND [ARGS...]")
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}
