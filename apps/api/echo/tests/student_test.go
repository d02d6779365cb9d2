package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/ledger"
	"github.com/tesoreria/backend/core/student"
	"github.com/tesoreria/backend/services/email"
	"github.com/tesoreria/backend/tests"
)

func TestHome(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bienvenido a la API de Tesorería!", rec.Body.String())
}

func TestStudentQuery(t *testing.T) {
	app, svcs := setup(t)
	ctx := context.Background()

	query := func(filter *student.QueryFilter, ordering ...core.DBOrdering) []byte {
		students, err := svcs.students.Query(ctx, filter, ordering)
		require.NoError(t, err)
		return marchallObj(t, students)
	}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "all",
			method:   http.MethodGet,
			path:     "/v1/students",
			wantCode: http.StatusOK,
			wantData: query(nil),
		},
		{
			name:     "search by name",
			method:   http.MethodGet,
			path:     "/v1/students?search=aguayo",
			wantCode: http.StatusOK,
			wantData: query(&student.QueryFilter{Search: "aguayo"}),
		},
		{
			name:     "status and class",
			method:   http.MethodGet,
			path:     "/v1/students?status=pending&class=1%20BASICO%20A&ordering=-pending",
			wantCode: http.StatusOK,
			wantData: query(&student.QueryFilter{Status: "pending", Class: "1 BASICO A"}, core.DBOrdering{Field: "pending"}),
		},
		{
			name:     "unknown status",
			method:   http.MethodGet,
			path:     "/v1/students?status=moroso",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "estado desconocido"}),
		},
		{
			name:     "trailing slash",
			method:   http.MethodGet,
			path:     "/v1/students/?search=carrasco",
			wantCode: http.StatusOK,
			wantData: query(&student.QueryFilter{Search: "carrasco"}),
		},
	})
}

func TestStudentRetrieve(t *testing.T) {
	app, svcs := setup(t)
	ctx := context.Background()

	view := func(rut string, today time.Time) []byte {
		v, err := svcs.students.View(ctx, rut, today)
		require.NoError(t, err)
		return marchallObj(t, v)
	}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "formatted rut",
			method:   http.MethodGet,
			path:     "/v1/students/12.345.678-5",
			wantCode: http.StatusOK,
			wantData: view(aguayo, testutil.Today),
		},
		{
			name:     "at date",
			method:   http.MethodGet,
			path:     "/v1/students/" + carrasco + "?date=2025-03-01",
			wantCode: http.StatusOK,
			wantData: view(carrasco, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:     "bad date",
			method:   http.MethodGet,
			path:     "/v1/students/" + carrasco + "?date=01-03-2025",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date": "formato de fecha inválido (AAAA-MM-DD)"}),
		},
		{
			name:     "not found",
			method:   http.MethodGet,
			path:     "/v1/students/1-9",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()}),
		},
	})
}

func TestStudentPay(t *testing.T) {
	app, svcs := setup(t)
	ctx := context.Background()

	payment := func(installments []int, methods ...student.NewMethod) []byte {
		return marchallObj(t, student.NewPayment{Installments: installments, Methods: methods})
	}
	cash := func(amount int64) student.NewMethod {
		return student.NewMethod{Kind: ledger.MethodCash, Amount: amount}
	}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "unknown student",
			method:   http.MethodPost,
			path:     "/v1/students/1-9/payments",
			body:     payment([]int{1}, cash(1)),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "already paid",
			method:   http.MethodPost,
			path:     "/v1/students/" + aguayo + "/payments",
			body:     payment([]int{1, 2}, cash(1)),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "more than owed",
			method:   http.MethodPost,
			path:     "/v1/students/" + aguayo + "/payments",
			body:     payment([]int{3}, cash(113851)),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "no methods",
			method:   http.MethodPost,
			path:     "/v1/students/" + aguayo + "/payments",
			body:     payment([]int{3}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown method",
			method:   http.MethodPost,
			path:     "/v1/students/" + aguayo + "/payments",
			body:     payment([]int{3}, student.NewMethod{Kind: "bitcoin", Amount: 1}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			method:   http.MethodPost,
			path:     "/v1/students/" + aguayo + "/payments",
			body:     []byte(`{"installments": "3"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	s, err := svcs.students.Get(ctx, aguayo)
	require.NoError(t, err)
	assert.Equal(t, int64(227700), s.TotalPaidReal, "failed payments leave the account untouched")

	req, rec := newRequest(http.MethodPost, "/v1/students/"+aguayo+"/payments", payment([]int{3}, cash(113850)))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rcpt student.Receipt
	unmarchall(t, rec, &rcpt)
	assert.Equal(t, "202506000001", rcpt.Number)
	assert.Equal(t, int64(113850), rcpt.Amount)
	assert.Equal(t, []int{3}, rcpt.Installments)
	assert.False(t, rcpt.Partial)

	// receipts
	receipts, err := svcs.students.QueryReceipts(ctx, aguayo)
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "receipts",
			method:   http.MethodGet,
			path:     "/v1/students/" + aguayo + "/receipts",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, receipts),
		},
	})
}

func TestStudentDestroy(t *testing.T) {
	app, svcs := setup(t)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/v1/students/" + bravo,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "already deleted",
			method:   http.MethodDelete,
			path:     "/v1/students/" + bravo,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: student.ErrNotFound.Error()}),
		},
	})

	_, err := svcs.students.Get(context.Background(), bravo)
	assert.Equal(t, student.ErrNotFound, err)
}

func TestStudentNotify(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodPost, "/v1/students/"+aguayo+"/notices")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var notice student.Notice
	unmarchall(t, rec, &notice)
	assert.Equal(t, student.NoticeStatement, notice.Kind)
	assert.Equal(t, int64(910800), notice.Amount)
	assert.Len(t, emailsvc.Sent(), 1)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "no contact",
			method:   http.MethodPost,
			path:     "/v1/students/" + bravo + "/notices",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: student.ErrNoContact.Error()}),
		},
	})
}

func TestDelinquentNotify(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodPost, "/v1/notices/delinquent")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var notices []student.Notice
	unmarchall(t, rec, &notices)
	require.Len(t, notices, 2)
	assert.Equal(t, aguayo, notices[0].RUT)
	assert.Equal(t, carrasco, notices[1].RUT)

	emailsvc.ClearSentMessages()
	runHTTPTests(t, app, []httpTest{
		{
			name:     "selection",
			method:   http.MethodPost,
			path:     "/v1/notices/delinquent",
			body:     marchallObj(t, map[string][]string{"ruts": {"22.222.222-2"}}),
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
		{
			name:     "nothing overdue yet",
			method:   http.MethodPost,
			path:     "/v1/notices/delinquent?date=2025-03-05",
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
	})
	assert.Empty(t, emailsvc.Sent())
}
