package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/park285/rpsmatch/internal/match"
	"github.com/park285/rpsmatch/internal/obslog"
	"github.com/park285/rpsmatch/pkg/rpsdto"
)

const (
	codeInvalidBody   = "INVALID_BODY"
	codeInvalidFilter = "INVALID_FILTER"
	codeStorage       = "STORAGE"
	codeInternal      = "INTERNAL"
)

func statusFor(k match.Kind) int {
	switch k {
	case match.KindNotFound:
		return fiber.StatusNotFound
	case match.KindValidation:
		return fiber.StatusBadRequest
	case match.KindInvalidState, match.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (a *api) handleError(c *fiber.Ctx, err error) error {
	var (
		status = fiber.StatusInternalServerError
		body   rpsdto.DomainError
	)
	var fe *fiber.Error
	switch de, ok := match.AsError(err); {
	case ok:
		status = statusFor(de.Kind)
		body = rpsdto.DomainError{Code: de.Code, Message: a.catalog.Text("errors."+de.Code, de.Meta, de.Message)}
	case errors.As(err, &fe):
		status = fe.Code
		body = rpsdto.DomainError{Code: codeForStatus(fe.Code), Message: fe.Message}
	case errors.Is(err, match.ErrStorage):
		body = rpsdto.DomainError{Code: codeStorage, Message: a.catalog.Text("errors."+codeStorage, nil, "storage unavailable"), Retryable: true}
	default:
		body = rpsdto.DomainError{Code: codeInternal, Message: a.catalog.Text("errors."+codeInternal, nil, "internal error")}
	}
	if status >= fiber.StatusInternalServerError {
		obslog.L().Error("http_error",
			zap.String("request_id", requestIDOf(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(body)
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "ROUTE_NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusBadRequest:
		return codeInvalidBody
	default:
		return codeInternal
	}
}

func badBody(err error) error {
	return &match.Error{Kind: match.KindValidation, Code: codeInvalidBody, Message: "invalid request body: " + err.Error()}
}

func badFilter(field, value string) error {
	return &match.Error{
		Kind:    match.KindValidation,
		Code:    codeInvalidFilter,
		Message: "invalid filter " + field + "=" + value,
		Meta:    map[string]any{"field": field, "value": value},
	}
}
