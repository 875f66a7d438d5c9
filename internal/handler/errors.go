package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/traafik/auth-svc/internal/model"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string             `json:"error"`
	Code    string             `json:"code"`
	Details []model.FieldError `json:"details,omitempty"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(k model.Kind) int {
	switch k {
	case model.KindValidation, model.KindDuplicateEmail:
		return http.StatusBadRequest
	case model.KindInvalidCredentials, model.KindInvalidToken, model.KindInvalidRefreshToken,
		model.KindAccountUnavailable, model.KindUnauthenticated:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders model errors and echo's own HTTP errors.  Internal
// messages are only shown when dev is set.
func ErrorHandler(dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err, dev)
		if status >= http.StatusInternalServerError {
			c.Logger().Errorf("request %s %s failed: %v", c.Request().Method, c.Path(), err)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			c.Logger().Errorf("write error response: %v", werr)
		}
	}
}

func render(err error, dev bool) (int, errorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		if he.Code == http.StatusNotFound {
			msg = "Endpoint not found"
		}
		return he.Code, errorBody{Error: msg, Code: codeForStatus(he.Code)}
	}

	kind := model.KindOf(err)
	body := errorBody{Code: kind.String()}
	var me *model.Error
	if errors.As(err, &me) {
		body.Error = me.Message
		body.Details = me.Details
	}
	if kind == model.KindInternal {
		body.Error = model.ErrInternal.Message
		if dev {
			body.Error = err.Error()
		}
	}
	return StatusOf(kind), body
}

func codeForStatus(status int) string {
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
