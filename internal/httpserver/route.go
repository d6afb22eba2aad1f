package httpserver

import (
	"net/http"

	"github.com/forkpoint/orderdesk/internal/auth"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	WebhookHandler *WebhookHTTP
	OrderHandler   *OrderHTTP
	KitchenHandler *KitchenHTTP
	JWTSecret      []byte
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.POST("/webhooks/payments", d.WebhookHandler.HandlePaymentEvent)

	orders := e.Group("/api/orders")
	orders.POST("/checkout", d.OrderHandler.Checkout)
	orders.POST("/confirm", d.OrderHandler.Confirm)

	operatorMW := &auth.OperatorAuth{JWTSecret: d.JWTSecret}
	orders.POST("/refund", d.OrderHandler.Refund, operatorMW.RequireOperator)

	kitchen := e.Group("/api/kitchen")
	kitchen.GET("/orders", d.KitchenHandler.ListOrders)
	kitchen.POST("/update-status", d.KitchenHandler.UpdateStatus)
	kitchen.POST("/retry-sms", d.KitchenHandler.RetrySMS)
	kitchen.GET("/sms-status", d.KitchenHandler.SMSStatus)
}
