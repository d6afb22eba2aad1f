package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/forkpoint/orderdesk/internal/config"
	"github.com/forkpoint/orderdesk/internal/db"
	"github.com/forkpoint/orderdesk/internal/events"
	"github.com/forkpoint/orderdesk/internal/httpserver"
	"github.com/forkpoint/orderdesk/internal/logging"
	"github.com/forkpoint/orderdesk/internal/payments"
	"github.com/forkpoint/orderdesk/internal/repo"
	"github.com/forkpoint/orderdesk/internal/service"
	"github.com/forkpoint/orderdesk/internal/sms"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmpty(cfg.StripeSecretKey, "STRIPE_SECRET_KEY")
	config.MustNonEmptyBytes(cfg.OperatorJWTSecret, "OPERATOR_JWT_SECRET")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	gdb, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	var producer events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		logger.Info("event stream enabled", "topic", cfg.EventsTopic)
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events disabled")
	}

	gateway := payments.NewStripeGateway(cfg.StripeSecretKey, cfg.GatewayTimeout)

	var smsTransport sms.Transport
	if cfg.SMSConfigured() {
		smsTransport = sms.NewTwilioClient(sms.TwilioConfig{
			AccountSID:          cfg.TwilioAccountSID,
			APIKeySID:           cfg.TwilioAPIKeySID,
			APIKeySecret:        cfg.TwilioAPIKeySecret,
			MessagingServiceSID: cfg.TwilioMessagingServiceSID,
			Timeout:             cfg.SMSTimeout,
		})
	} else {
		logger.Warn("twilio credentials not set, ready notifications disabled")
	}
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_ORDERS_WEBHOOK_SECRET not set, webhook channel disabled")
	}

	orders := &repo.GormRepo{DB: gdb}
	notifier := &service.Notifier{Repo: orders, SMS: smsTransport}
	reconciler := &service.Reconciler{
		Repo:                 orders,
		Gateway:              gateway,
		Events:               producer,
		ManualConfirmTenants: cfg.ManualConfirmTenants,
	}

	deps := httpserver.Deps{
		WebhookHandler: &httpserver.WebhookHTTP{Reconciler: reconciler, Secret: cfg.StripeWebhookSecret},
		OrderHandler: &httpserver.OrderHTTP{
			CheckoutSvc: &service.Checkout{Repo: orders, Gateway: gateway, BaseURL: cfg.PublicBaseURL},
			Reconciler:  reconciler,
			RefundSvc:   &service.RefundEngine{Repo: orders, Gateway: gateway, Events: producer},
			Repo:        orders,
		},
		KitchenHandler: &httpserver.KitchenHTTP{
			Svc: &service.Kitchen{Repo: orders, Notifier: notifier, Events: producer},
		},
		JWTSecret: cfg.OperatorJWTSecret,
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logging.RequestLogger(logger))

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
