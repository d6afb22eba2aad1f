package httpserver

import (
	"net/http"
	"strings"

	"github.com/forkpoint/orderdesk/internal/logging"
	"github.com/forkpoint/orderdesk/internal/models"
	"github.com/forkpoint/orderdesk/internal/service"
	"github.com/labstack/echo/v4"
)

type KitchenHTTP struct {
	Svc *service.Kitchen
}

func (h *KitchenHTTP) authorize(c echo.Context) (*models.Tenant, error) {
	slug := strings.ToLower(strings.TrimSpace(c.QueryParam("tenant")))
	if slug == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "missing tenant")
	}
	pin := strings.TrimSpace(c.Request().Header.Get("X-Kitchen-Pin"))
	tenant, err := h.Svc.Authorize(c.Request().Context(), slug, pin)
	if err != nil {
		if expected(err) {
			return nil, failJSON(c, err)
		}
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return tenant, nil
}

func (h *KitchenHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "kitchen.list_orders")

	tenant, err := h.authorize(c)
	if tenant == nil {
		return err
	}

	orders, err := h.Svc.ListOrders(ctx, tenant.ID)
	if err != nil {
		l.Error("list_orders_error", "tenant", tenant.Slug, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "orders": orders})
}

type updateStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (h *KitchenHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "kitchen.update_status")

	tenant, err := h.authorize(c)
	if tenant == nil {
		return err
	}

	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" || req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Svc.AdvanceStatus(ctx, tenant, req.OrderID, req.Status)
	if err != nil {
		if expected(err) {
			l.Warn("update_status_rejected", "order_id", req.OrderID, "error", err)
			return failJSON(c, err)
		}
		l.Error("update_status_error", "order_id", req.OrderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("update_status_success", "order_id", order.ID, "status", order.Status)
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "order": map[string]string{"id": order.ID, "status": order.Status}})
}

type retrySMSRequest struct {
	OrderID string `json:"order_id"`
}

func (h *KitchenHTTP) RetrySMS(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "kitchen.retry_sms")

	tenant, err := h.authorize(c)
	if tenant == nil {
		return err
	}

	var req retrySMSRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.RetrySMS(ctx, tenant, req.OrderID)
	if err != nil {
		if expected(err) {
			l.Warn("retry_sms_rejected", "order_id", req.OrderID, "error", err)
			return failJSON(c, err)
		}
		l.Error("retry_sms_error", "order_id", req.OrderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("retry_sms_result", "order_id", req.OrderID, "status", res.Status, "reason", res.Reason)
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "sms": res})
}

func (h *KitchenHTTP) SMSStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "kitchen.sms_status")

	tenant, err := h.authorize(c)
	if tenant == nil {
		return err
	}

	orderID := strings.TrimSpace(c.QueryParam("order_id"))
	if orderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing order_id")
	}

	msg, err := h.Svc.SMSStatus(ctx, tenant, orderID)
	if err != nil {
		if expected(err) {
			l.Warn("sms_status_rejected", "order_id", orderID, "error", err)
			return failJSON(c, err)
		}
		l.Error("sms_status_error", "order_id", orderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "message": map[string]string{
		"id":            msg.ID,
		"status":        msg.Status,
		"error_code":    msg.ErrorCode,
		"error_message": msg.ErrorMessage,
	}})
}
