package httpserver

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/forkpoint/orderdesk/internal/logging"
	"github.com/forkpoint/orderdesk/internal/payments"
	"github.com/forkpoint/orderdesk/internal/service"
	"github.com/labstack/echo/v4"
)

type WebhookHTTP struct {
	Reconciler *service.Reconciler
	Secret     string
}

// HandlePaymentEvent accepts the processor's signed deliveries. Business
// rejections and idempotent no-ops are acknowledged with 200 so the processor
// stops redelivering; signature failures and transient gateway errors get a
// non-2xx so it retries.
func (h *WebhookHTTP) HandlePaymentEvent(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payments.webhook")

	if h.Secret == "" {
		// Not configured yet; acknowledge to avoid retry storms during setup.
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "disabled": true})
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		l.Warn("webhook_read_error", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	event, err := payments.ParseEvent(payload, c.Request().Header.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		l.Warn("webhook_signature_error", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	}

	l = l.With("event_id", event.ID, "event_type", event.Type)

	if event.Session == nil {
		// Not an event class we reconcile; acknowledge.
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	}

	orderID := strings.TrimSpace(event.Session.Metadata["orderId"])
	if orderID == "" {
		l.Info("webhook_ignored", "reason", "no order metadata")
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	}

	res, err := h.Reconciler.ConfirmPayment(ctx, orderID, service.Evidence{
		SessionID: event.Session.ID,
		Account:   event.Account,
	})
	if err != nil {
		// Gateway failures are transient; fail the delivery so the processor
		// redelivers instead of stranding a paid order.
		if expected(err) && !errors.Is(err, service.ErrGateway) {
			// Redelivery would produce the same rejection; acknowledge it.
			l.Warn("webhook_rejected", "order_id", orderID, "error", err)
			return c.JSON(http.StatusOK, map[string]any{"ok": false})
		}
		l.Error("webhook_error", "order_id", orderID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if res.AlreadyApplied {
		l.Info("webhook_duplicate", "order_id", orderID)
	} else {
		l.Info("webhook_confirmed", "order_id", orderID)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
