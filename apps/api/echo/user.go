package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

type userApi struct {
	ids      *identity.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, ids *identity.Service, validate *validator.Validate) {
	api := userApi{ids: ids, validate: validate}

	ug := g.Group("/users", jwt, adminMiddleware(ids))
	ug.GET("", api.query)
	ug.POST("", api.create)
	ug.GET("/roles", api.queryRoles)
	ug.PUT("/:email/role", api.setRole)
	ug.POST("/:email/disable", api.disable)
	ug.PUT("/:email/access", api.setAccess)
}

type (
	// UserView is a principal along with its stored grant.
	UserView struct {
		identity.Principal
		Courses map[string]identity.CourseGrant `json:"courses"`
	}

	SetRoleRequest struct {
		Role string `json:"role" validate:"required,role"`
	}

	SetAccessRequest struct {
		CourseID    string `json:"courseId" validate:"required,pathkey"`
		SubCourseID string `json:"subCourseId" validate:"omitempty,pathkey"`
		HasAccess   bool   `json:"hasAccess"`
	}
)

func (data SetRoleRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

func (data SetAccessRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(data)
}

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	c := ctx.Request().Context()
	users, err := api.ids.ListPrincipals(c)
	if err != nil {
		return err
	}
	grants, err := api.ids.ListGrants(c)
	if err != nil {
		return err
	}

	views := make([]UserView, 0, len(users))
	for _, usr := range users {
		grant, ok := grants[usr.Email]
		if !ok {
			grant = identity.DefaultGrant(usr.Email)
		} else {
			usr.Role = grant.Role
		}
		views = append(views, UserView{Principal: usr, Courses: grant.Courses})
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *userApi) create(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data identity.NewPrincipal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPrincipal")
	}
	usr, err := api.ids.CreatePrincipal(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, identity.Roles)
}

func (api *userApi) setRole(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data SetRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetRoleRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	role, err := identity.ParseRole(data.Role)
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: err.Error()})
	}

	usr, err := api.ids.SetRole(ctx.Request().Context(), actor, ctx.Param("email"), role)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) disable(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	usr, err := api.ids.Disable(ctx.Request().Context(), actor, ctx.Param("email"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) setAccess(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}
	var data SetAccessRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetAccessRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grant, err := api.ids.SetAccess(ctx.Request().Context(), actor, ctx.Param("email"), data.CourseID, data.SubCourseID, data.HasAccess)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grant)
}
