package echoapi

import (
	"mime/multipart"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
)

const fileField = "file"

// upload is a file received in a multipart form.
type upload struct {
	multipart.File
	Name string
	Size int64
}

// formUpload opens the file sent in the `file` field of a multipart form.
// The caller closes it.
func formUpload(ctx echo.Context) (*upload, error) {
	fh, err := ctx.FormFile(fileField)
	if err != nil {
		return nil, core.NewValidationError(nil, core.FieldError{Field: fileField, Error: "a file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening uploaded file")
	}
	return &upload{File: f, Name: fh.Filename, Size: fh.Size}, nil
}

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}
