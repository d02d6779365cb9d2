package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

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

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// StorageCloser releases the storage connections.
type StorageCloser func() error

type ServerParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	StudentSvc    student.ServiceInterface
	EnrollmentSvc enrollment.ServiceInterface
	Validate      *validator.Validate
	Translator    ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newStorage returns the in-memory repositories when the config asks for them, the
// Postgres ones otherwise. core.DB is nil for in-memory storage.
func newStorage(conf *core.Config, loggerParam DBLoggerParam) (core.DB, student.Repository, student.Reporter, StorageCloser) {
	if conf.Database.InMemory {
		mem := inmemdb.Open()
		loggerParam.Logger.Info("using in-memory storage")
		return nil, inmemdb.NewStudentRepository(mem), inmemdb.NewReportRepository(mem), func() error { return nil }
	}

	db, err := database.Setup(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, sqlxrepos.NewStudentRepository(db), boiledrepos.NewReportRepository(db), db.Close
}

func newEmailTemplates(conf *core.Config, logger core.Logger) *core.EmailTemplates {
	templates, err := core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	return templates
}

func newSequencer(conf *core.Config, logger core.Logger) student.Sequencer {
	return seqsvc.New(context.Background(), conf, logger)
}

func newStudentServiceInterface(svc *student.Service) student.ServiceInterface {
	return svc
}

func newEnrollmentServiceInterface(svc *enrollment.Service) enrollment.ServiceInterface {
	return svc
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		StudentSvc:    p.StudentSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		Validate:      p.Validate,
		Translator:    p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New(opts ...dig.Option) *dig.Container {
	c := dig.New(opts...)

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailTemplates))
	must(c.Provide(emailsvc.New))
	must(c.Provide(newSequencer))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(student.NewService))
	must(c.Provide(newStudentServiceInterface))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(newEnrollmentServiceInterface))
	must(c.Provide(newServer))

	return c
}

// Visualize writes the dependency graph of c in DOT format.
func Visualize(c *dig.Container, w io.Writer) error {
	return dig.Visualize(c, w)
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
