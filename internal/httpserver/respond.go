package httpserver

import (
	"errors"
	"net/http"

	"github.com/forkpoint/orderdesk/internal/service"
	"github.com/labstack/echo/v4"
)

type failure struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// reasonCode maps the service layer's sentinel errors to a transport status
// and a machine-readable code. Unexpected errors come back as internal_error.
func reasonCode(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrNotEligible):
		return http.StatusForbidden, "not_eligible"
	case errors.Is(err, service.ErrNotPaid):
		return http.StatusBadRequest, "not_paid"
	case errors.Is(err, service.ErrAccountMismatch):
		return http.StatusForbidden, "account_mismatch"
	case errors.Is(err, service.ErrSessionOrderMismatch):
		return http.StatusForbidden, "session_order_mismatch"
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, service.ErrAlreadyRefunded):
		return http.StatusConflict, "already_refunded"
	case errors.Is(err, service.ErrNotRefundable):
		return http.StatusBadRequest, "not_refundable"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrRetryLimit):
		return http.StatusTooManyRequests, "retry_limit"
	case errors.Is(err, service.ErrGateway):
		return http.StatusBadGateway, "gateway_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

func expected(err error) bool {
	status, _ := reasonCode(err)
	return status != http.StatusInternalServerError
}

func failJSON(c echo.Context, err error) error {
	status, code := reasonCode(err)
	return c.JSON(status, failure{Error: code})
}
