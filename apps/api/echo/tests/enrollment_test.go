package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesoreria/backend/core/enrollment"
)

func TestEnrollmentQuote(t *testing.T) {
	app, svcs := setup(t)

	quote, err := svcs.enrollment.Quote("1 MEDIO A")
	require.NoError(t, err)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "quote",
			method:   http.MethodGet,
			path:     "/v1/enrollment/quote?class=1%C2%B0%20medio%20a",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, quote),
		},
		{
			name:     "missing class",
			method:   http.MethodGet,
			path:     "/v1/enrollment/quote",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"class": "este campo es obligatorio"}),
		},
		{
			name:     "unknown class",
			method:   http.MethodGet,
			path:     "/v1/enrollment/quote?class=9%20BASICO%20A",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "graduated",
			method:   http.MethodGet,
			path:     "/v1/enrollment/quote?class=EGRESADO",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "classes",
			method:   http.MethodGet,
			path:     "/v1/enrollment/classes",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, enrollment.Classes()),
		},
	})
}

func TestEnroll(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodPost, "/v1/enrollment", marchallObj(t, enrollment.NewEnrollment{
		RUT:           "15151515-1",
		Name:          "Herrera Vidal Inés",
		Class:         "1 medio a",
		Guardian:      "Rosa Vidal",
		GuardianEmail: "rvidal@mail.cl",
	}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var enr enrollment.Enrollment
	unmarchall(t, rec, &enr)
	assert.Equal(t, "MAT-2025-0001", enr.Number)
	assert.False(t, enr.Renewal)
	assert.Equal(t, "1 MEDIO A", enr.Student.ClassName)
	assert.Equal(t, int64(1243246), enr.Student.TuitionGross)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "student listed",
			method:   http.MethodGet,
			path:     "/v1/students?search=herrera",
			wantCode: http.StatusOK,
		},
		{
			name:     "already enrolled",
			method:   http.MethodPost,
			path:     "/v1/enrollment",
			body:     marchallObj(t, enrollment.NewEnrollment{RUT: "12.345.678-5"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: enrollment.ErrAlreadyEnrolled.Error()}),
		},
		{
			name:     "invalid rut",
			method:   http.MethodPost,
			path:     "/v1/enrollment",
			body:     marchallObj(t, enrollment.NewEnrollment{RUT: "abc", Name: "X", Class: "1 MEDIO A"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "negative scholarship",
			method:   http.MethodPost,
			path:     "/v1/enrollment",
			body:     marchallObj(t, enrollment.NewEnrollment{RUT: "16.161.616-1", Name: "X", Class: "1 MEDIO A", Scholarship: -1}),
			wantCode: http.StatusBadRequest,
		},
	})
}
