package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/student"
	appfs "github.com/tesoreria/backend/fs"
	emailsvc "github.com/tesoreria/backend/services/email"
	logsvc "github.com/tesoreria/backend/services/logger"
	seqsvc "github.com/tesoreria/backend/services/sequence"
	"github.com/tesoreria/backend/storage/database"
	inmemdb "github.com/tesoreria/backend/storage/database/inmem"
	boiledrepos "github.com/tesoreria/backend/storage/database/sqlboiler"
	sqlxrepos "github.com/tesoreria/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	ctx := context.Background()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up storage
	var (
		sqlDB    *sql.DB
		db       core.DB
		repo     student.Repository
		reporter student.Reporter
	)
	if conf.Database.InMemory {
		logger.Warn("using in-memory storage: imports are not persisted")
		mem := inmemdb.Open()
		repo = inmemdb.NewStudentRepository(mem)
		reporter = inmemdb.NewReportRepository(mem)
	} else {
		xdb, err := database.Open(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = xdb.Close() }()
		sqlDB, db = xdb.DB, xdb
		repo = sqlxrepos.NewStudentRepository(xdb)
		reporter = boiledrepos.NewReportRepository(xdb)
	}

	templates, err := core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	mailSvc := emailsvc.NewSync(conf, templates, logger)

	// start CLI
	cli := commandLine{
		db:     sqlDB,
		svc:    student.NewService(db, repo, reporter, mailSvc, seqsvc.New(ctx, conf, logger), conf, logger),
		conf:   conf,
		logger: logger,
		out:    os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
