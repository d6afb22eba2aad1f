package httpserver

import (
	"net/http"
	"strings"

	"github.com/forkpoint/orderdesk/internal/auth"
	"github.com/forkpoint/orderdesk/internal/logging"
	"github.com/forkpoint/orderdesk/internal/repo"
	"github.com/forkpoint/orderdesk/internal/service"
	"github.com/labstack/echo/v4"
)

type OrderHTTP struct {
	CheckoutSvc *service.Checkout
	Reconciler  *service.Reconciler
	RefundSvc   *service.RefundEngine
	Repo        *repo.GormRepo
}

func (h *OrderHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.checkout")

	var req service.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("checkout_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.CheckoutSvc.Start(ctx, req)
	if err != nil {
		if expected(err) {
			l.Warn("checkout_rejected", "tenant", req.TenantSlug, "error", err)
			return failJSON(c, err)
		}
		l.Error("checkout_error", "tenant", req.TenantSlug, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("checkout_created", "order_id", res.OrderID)
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "order_id": res.OrderID, "url": res.PaymentURL})
}

type confirmRequest struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
}

// Confirm is the guest's synchronous channel. With a session id it runs the
// reconciler; without one it falls back to the PIN-gated manual override.
// Guests only ever see a generic failure message plus the machine code.
func (h *OrderHTTP) Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.confirm")

	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("confirm_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if req.SessionID == "" {
		pin := strings.TrimSpace(c.Request().Header.Get("X-Kitchen-Pin"))
		if err := h.Reconciler.ManualConfirm(ctx, req.OrderID, pin); err != nil {
			if expected(err) {
				l.Warn("manual_confirm_rejected", "order_id", req.OrderID, "error", err)
				return failJSON(c, err)
			}
			l.Error("manual_confirm_error", "order_id", req.OrderID, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		l.Info("manual_confirm_success", "order_id", req.OrderID)
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "manual": true})
	}

	res, err := h.Reconciler.ConfirmPayment(ctx, req.OrderID, service.Evidence{SessionID: req.SessionID})
	if err != nil {
		if expected(err) {
			l.Warn("confirm_rejected", "order_id", req.OrderID, "error", err)
			return failJSON(c, err)
		}
		l.Error("confirm_error", "order_id", req.OrderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("confirm_success", "order_id", req.OrderID, "already", res.AlreadyApplied)
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "already": res.AlreadyApplied})
}

type refundRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Refund requires an operator token scoped to the order's tenant (or a
// platform admin). Operators get the specific reason code on failure.
func (h *OrderHTTP) Refund(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.refund")

	var req refundRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("refund_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if len(req.Reason) > 200 {
		req.Reason = req.Reason[:200]
	}

	order, err := h.Repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return c.JSON(http.StatusNotFound, failure{Error: "not_found"})
		}
		l.Error("refund_error", "order_id", req.OrderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if !auth.OperatorMayAct(c, order.TenantID) {
		l.Warn("refund_forbidden", "order_id", req.OrderID)
		return c.JSON(http.StatusForbidden, failure{Error: "forbidden"})
	}

	res, err := h.RefundSvc.Refund(ctx, req.OrderID, req.AmountCents, strings.TrimSpace(req.Reason))
	if err != nil {
		if expected(err) {
			l.Warn("refund_rejected", "order_id", req.OrderID, "error", err)
			return failJSON(c, err)
		}
		l.Error("refund_error", "order_id", req.OrderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("refund_success", "order_id", req.OrderID, "refund_id", res.RefundID, "amount_cents", res.AmountCents)
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "refund_id": res.RefundID})
}
