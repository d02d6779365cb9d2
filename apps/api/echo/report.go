package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tesoreria/backend/core/student"
	"github.com/tesoreria/backend/storage/spreadsheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportApi struct {
	service student.ServiceInterface
}

func registerReportAPI(g *echo.Group, svc student.ServiceInterface) {
	api := reportApi{service: svc}

	rg := g.Group("/reports")
	rg.GET("/summary", api.summary)
	rg.GET("/discrepancies", api.discrepancies)
	rg.GET("/installments", api.installments)
	rg.GET("/classes", api.classes)
	rg.GET("/export.xlsx", api.export)
}

// Handlers

func (api *reportApi) summary(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	stats, err := api.service.Stats(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *reportApi) discrepancies(ctx echo.Context) error {
	entries, err := api.service.Discrepancies(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *reportApi) installments(ctx echo.Context) error {
	totals, err := api.service.InstallmentTotals(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, totals)
}

func (api *reportApi) classes(ctx echo.Context) error {
	summaries, err := api.service.ClassSummaries(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *reportApi) export(ctx echo.Context) error {
	now := student.NowFunc()
	rep, err := spreadsheet.BuildReport(ctx.Request().Context(), api.service, now)
	if err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if err = spreadsheet.WriteReport(buf, rep); err != nil {
		return err
	}

	filename := fmt.Sprintf("conciliacion-%s.xlsx", now.Format("20060102"))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
