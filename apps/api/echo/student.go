package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/tesoreria/backend/core/student"
)

type studentApi struct {
	service  student.ServiceInterface
	validate *validator.Validate
}

type delinquentRequest struct {
	RUTs []string `json:"ruts"`
}

func registerStudentAPI(g *echo.Group, svc student.ServiceInterface, validate *validator.Validate) {
	api := studentApi{service: svc, validate: validate}

	sg := g.Group("/students")
	sg.GET("", api.studentQuery)

	// detail endpoints
	dg := sg.Group("/:rut")
	dg.GET("", api.studentRetrieve)
	dg.DELETE("", api.studentDestroy)
	dg.POST("/payments", api.studentPay)
	dg.GET("/receipts", api.studentReceipts)
	dg.POST("/notices", api.studentNotify)

	g.POST("/notices/delinquent", api.delinquentNotify)
}

// Handlers

func (api *studentApi) studentQuery(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	ord := new(Ordering)
	ord.Bind(ctx, student.OrderingFields)

	students, err := api.service.Query(ctx.Request().Context(), filter, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) studentRetrieve(ctx echo.Context) error {
	today, err := bindToday(ctx)
	if err != nil {
		return err
	}
	v, err := api.service.View(ctx.Request().Context(), ctx.Param("rut"), today)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *studentApi) studentDestroy(ctx echo.Context) error {
	if err := api.service.Delete(ctx.Request().Context(), ctx.Param("rut")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) studentPay(ctx echo.Context) error {
	data := new(student.NewPayment)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	receipt, err := api.service.RegisterPayment(ctx.Request().Context(), ctx.Param("rut"), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, receipt)
}

func (api *studentApi) studentReceipts(ctx echo.Context) error {
	receipts, err := api.service.QueryReceipts(ctx.Request().Context(), ctx.Param("rut"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, receipts)
}

func (api *studentApi) studentNotify(ctx echo.Context) error {
	today, err := bindToday(ctx)
	if err != nil {
		return err
	}
	notice, err := api.service.NotifyStatement(ctx.Request().Context(), ctx.Param("rut"), today)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, notice)
}

// delinquentNotify notifies the given students, or every student with overdue installments
// when the body lists none.
func (api *studentApi) delinquentNotify(ctx echo.Context) error {
	data := new(delinquentRequest)
	if ctx.Request().ContentLength > 0 {
		if err := ctx.Bind(data); err != nil {
			return err
		}
	}
	today, err := bindToday(ctx)
	if err != nil {
		return err
	}

	notices, err := api.service.NotifyDelinquent(ctx.Request().Context(), data.RUTs, today)
	if err != nil {
		return err
	}
	if notices == nil {
		notices = []student.Notice{}
	}
	return ctx.JSON(http.StatusOK, notices)
}
