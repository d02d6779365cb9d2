package echoapi

import (
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
	"github.com/tesoreria/backend/storage/spreadsheet"
)

var (
	ledgerField   = "ledger"
	contactsField = "contacts"
)

type importApi struct {
	service student.ServiceInterface
	conf    *core.Config
}

// verifyResponse lists the rows of a ledger file needing review or disagreeing with their
// reported total, without importing them.
type verifyResponse struct {
	Rows    int             `json:"rows"`
	Skipped int             `json:"skipped"`
	Review  []ledger.Result `json:"review"`
}

func registerImportAPI(g *echo.Group, svc student.ServiceInterface, conf *core.Config) {
	api := importApi{service: svc, conf: conf}

	ig := g.Group("/imports")
	ig.POST("", api.importLedger)
	ig.POST("/verify", api.verifyLedger)
}

// Handlers

func (api *importApi) importLedger(ctx echo.Context) error {
	fh, err := ctx.FormFile(ledgerField)
	if err != nil {
		return errMissingFile
	}
	rows, skipped, err := api.readLedger(fh)
	if err != nil {
		return err
	}

	batch := student.ImportBatch{Source: fh.Filename, Rows: rows, Skipped: skipped}
	if cfh, cErr := ctx.FormFile(contactsField); cErr == nil {
		if batch.Contacts, err = readContacts(cfh); err != nil {
			return err
		}
	}

	report, err := api.service.Import(ctx.Request().Context(), batch)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, report)
}

func (api *importApi) verifyLedger(ctx echo.Context) error {
	fh, err := ctx.FormFile(ledgerField)
	if err != nil {
		return errMissingFile
	}
	rows, skipped, err := api.readLedger(fh)
	if err != nil {
		return err
	}

	results, err := api.service.Verify(ctx.Request().Context(), rows)
	if err != nil {
		return err
	}
	resp := verifyResponse{Rows: len(rows), Skipped: skipped, Review: []ledger.Result{}}
	for _, res := range results {
		if res.NeedsReview() || res.Discrepancy.Flagged(api.conf.Treasury.DiscrepancyTolerance) {
			resp.Review = append(resp.Review, res)
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *importApi) readLedger(fh *multipart.FileHeader) ([]ledger.InputRow, int, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, 0, errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()

	records, err := spreadsheet.ReadRecords(f, fh.Filename)
	if err != nil {
		return nil, 0, err
	}
	rows, skipped := student.ParseRecords(records, api.conf.Treasury.SchoolYear)
	return rows, skipped, nil
}

func readContacts(fh *multipart.FileHeader) ([]student.Contact, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()
	return student.ParseContactsCSV(f)
}
