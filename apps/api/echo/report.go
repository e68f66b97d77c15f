package echoapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/report"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, ids *identity.Service, svc *report.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports", jwt, adminMiddleware(ids))
	rg.GET("/progress", api.progress)
}

// progress returns the progress report as `?format=json|csv|xlsx` (json by default), filtered by `?search=`.
func (api *reportApi) progress(ctx echo.Context) error {
	actor, err := actorEmail(ctx)
	if err != nil {
		return err
	}

	format := strings.ToLower(ctx.QueryParam("format"))
	if format == "" {
		format = report.FormatJSON
	}

	var write func(io.Writer, []report.Row) error
	switch format {
	case report.FormatJSON:
	case report.FormatCSV:
		write = report.WriteCSV
	case report.FormatXLSX:
		write = report.WriteXLSX
	default:
		return core.NewValidationError(nil, core.FieldError{Field: "format", Error: "must be one of json, csv, xlsx"})
	}

	rows, err := api.svc.Generate(ctx.Request().Context(), actor, ctx.QueryParam("search"))
	if err != nil {
		return err
	}
	if write == nil {
		return ctx.JSON(http.StatusOK, rows)
	}

	var buf bytes.Buffer
	if err := write(&buf, rows); err != nil {
		return err
	}
	filename := fmt.Sprintf("progress-%s.%s", time.Now().UTC().Format("20060102"), format)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, report.ContentType(format), buf.Bytes())
}
