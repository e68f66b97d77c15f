package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/identity"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDisabled      = echo.NewHTTPError(http.StatusForbidden, "account disabled")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.BackendError:
			code = http.StatusServiceUnavailable
			message = "service temporarily unavailable, please retry"
			logger.Warn(origErr.Error(), err, contextPrincipal(ctx))
		default:
			code, message = sentinelStatus(origErr)
			if code != 0 {
				break
			}
			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextPrincipal(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func sentinelStatus(err error) (int, string) {
	switch err {
	case core.ErrAuthRequired:
		return http.StatusUnauthorized, errUnauthorized.Message.(string)
	case core.ErrAccessDenied:
		return http.StatusForbidden, errHttpForbidden.Message.(string)
	case core.ErrNotFound:
		return http.StatusNotFound, "not found"
	case core.ErrIncompleteViewing:
		return http.StatusConflict, err.Error()
	case identity.ErrInvalidCredentials:
		return http.StatusBadRequest, errAuthenticationFailed.Message.(string)
	case identity.ErrAccountDisabled:
		return http.StatusForbidden, errAccountDisabled.Message.(string)
	}
	return 0, ""
}

// contextPrincipal is the principal reported along with logged errors.
func contextPrincipal(ctx echo.Context) identity.Principal {
	var usr identity.Principal
	if claims, err := getContextClaims(ctx); err == nil {
		usr.Email = claims.Email
		usr.Name = claims.Name
	}
	return usr
}
