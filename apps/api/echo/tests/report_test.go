package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tesoreria/backend/core/student"
	"github.com/tesoreria/backend/storage/spreadsheet"
)

func TestReports(t *testing.T) {
	app, svcs := setup(t)
	ctx := context.Background()

	stats, err := svcs.students.Stats(ctx, nil)
	require.NoError(t, err)
	classStats, err := svcs.students.Stats(ctx, &student.QueryFilter{Class: "1 BASICO A"})
	require.NoError(t, err)
	discrepancies, err := svcs.students.Discrepancies(ctx)
	require.NoError(t, err)
	totals, err := svcs.students.InstallmentTotals(ctx)
	require.NoError(t, err)
	classes, err := svcs.students.ClassSummaries(ctx)
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "summary",
			method:   http.MethodGet,
			path:     "/v1/reports/summary",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, stats),
		},
		{
			name:     "summary of a class",
			method:   http.MethodGet,
			path:     "/v1/reports/summary?class=1%20BASICO%20A",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, classStats),
		},
		{
			name:     "summary with unknown status",
			method:   http.MethodGet,
			path:     "/v1/reports/summary?status=x",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "discrepancies",
			method:   http.MethodGet,
			path:     "/v1/reports/discrepancies",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, discrepancies),
		},
		{
			name:     "installments",
			method:   http.MethodGet,
			path:     "/v1/reports/installments",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, totals),
		},
		{
			name:     "classes",
			method:   http.MethodGet,
			path:     "/v1/reports/classes",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, classes),
		},
	})
}

func TestReportExport(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodGet, "/v1/reports/export.xlsx")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=\"conciliacion-20250610.xlsx\"", rec.Header().Get("Content-Disposition"))

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{
		spreadsheet.SheetStudents, spreadsheet.SheetDiscrepancies, spreadsheet.SheetInstallments, spreadsheet.SheetClasses,
	}, f.GetSheetList())

	rows, err := f.GetRows(spreadsheet.SheetStudents)
	require.NoError(t, err)
	assert.Len(t, rows, 7, "header and 6 students")
}
