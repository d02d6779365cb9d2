package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/student"
)

var (
	orderingParam = "ordering"
	dateParam     = "date"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind keeps the fields of the `ordering` query param that are present in allowed.
func (ord *Ordering) Bind(ctx echo.Context, allowed map[string]string) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	ord.Orderings = core.ParseOrdering(val, allowed)
}

// bindToday returns the `date` query param, or the current day.
func bindToday(ctx echo.Context) (time.Time, error) {
	val := ctx.QueryParam(dateParam)
	if val == "" {
		return student.NowFunc().UTC(), nil
	}
	today, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: dateParam, Error: "formato de fecha inválido (AAAA-MM-DD)"})
	}
	return today, nil
}
