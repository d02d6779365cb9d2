package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/tesoreria/backend/apps/api/echo"
	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/enrollment"
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

func startManual() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up storage
	var (
		db       core.DB
		repo     student.Repository
		reporter student.Reporter
	)
	if conf.Database.InMemory {
		mem := inmemdb.Open()
		repo = inmemdb.NewStudentRepository(mem)
		reporter = inmemdb.NewReportRepository(mem)
		dbLogger.Info("using in-memory storage")
	} else {
		sqlDB, err := database.Setup(ctx, conf)
		if err != nil {
			dbLogger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = sqlDB.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		db = sqlDB
		repo = sqlxrepos.NewStudentRepository(sqlDB)
		reporter = boiledrepos.NewReportRepository(sqlDB)
	}

	// set up services
	templates, err := core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	mailSvc := emailsvc.New(conf, templates, logger)
	seq := seqsvc.New(ctx, conf, logger)
	studentSvc := student.NewService(db, repo, reporter, mailSvc, seq, conf, logger)
	enrollmentSvc := enrollment.NewService(studentSvc, seq, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	student.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewInt("schoolYear").Set(int64(conf.Treasury.SchoolYear))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			StudentSvc:    studentSvc,
			EnrollmentSvc: enrollmentSvc,
			Validate:      validate,
			Translator:    translator,
		},
	)
	serve(conf, logger, server)
}

// serve runs server until it fails or a shutdown signal is received.
func serve(conf *core.Config, logger core.Logger, server *echoapi.Server) {
	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
