package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/tesoreria/backend/core"
	"github.com/tesoreria/backend/core/enrollment"
)

type enrollmentApi struct {
	service  enrollment.ServiceInterface
	validate *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, svc enrollment.ServiceInterface, validate *validator.Validate) {
	api := enrollmentApi{service: svc, validate: validate}

	eg := g.Group("/enrollment")
	eg.GET("/quote", api.quote)
	eg.POST("", api.enroll)
	eg.GET("/classes", api.classes)
}

// Handlers

func (api *enrollmentApi) quote(ctx echo.Context) error {
	class := ctx.QueryParam("class")
	if class == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "class", Error: "este campo es obligatorio"})
	}
	q, err := api.service.Quote(class)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	data := new(enrollment.NewEnrollment)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	enr, err := api.service.Enroll(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) classes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, enrollment.Classes())
}
