package service

import (
	"context"
	"fmt"
	"time"

	"github.com/forkpoint/orderdesk/internal/auth"
	"github.com/forkpoint/orderdesk/internal/events"
	"github.com/forkpoint/orderdesk/internal/logging"
	"github.com/forkpoint/orderdesk/internal/models"
	"github.com/forkpoint/orderdesk/internal/repo"
	"github.com/forkpoint/orderdesk/internal/sms"
)

// Kitchen covers the operator surface: PIN authorization, the display's order
// list, and status advances along the fulfillment path.
type Kitchen struct {
	Repo     *repo.GormRepo
	Notifier *Notifier
	Events   events.Publisher
}

// Authorize resolves the tenant and proves the caller holds its kitchen PIN.
func (s *Kitchen) Authorize(ctx context.Context, tenantSlug, presentedPIN string) (*models.Tenant, error) {
	tenant, err := s.Repo.TenantBySlug(ctx, tenantSlug)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, tenantSlug)
		}
		return nil, err
	}
	if !auth.CheckPIN(tenant.KitchenPINHash, presentedPIN) {
		return nil, fmt.Errorf("%w: bad kitchen pin", ErrUnauthorized)
	}
	return tenant, nil
}

func (s *Kitchen) ListOrders(ctx context.Context, tenantID string) ([]models.Order, error) {
	return s.Repo.ListKitchenOrders(ctx, tenantID, 200)
}

// RetrySMS re-attempts the ready notification for an order the tenant owns.
func (s *Kitchen) RetrySMS(ctx context.Context, tenant *models.Tenant, orderID string) (*NotifyResult, error) {
	if err := s.checkOwnership(ctx, tenant, orderID); err != nil {
		return nil, err
	}
	return s.Notifier.RetryReady(ctx, orderID)
}

// SMSStatus polls the provider for the current delivery status.
func (s *Kitchen) SMSStatus(ctx context.Context, tenant *models.Tenant, orderID string) (*sms.Message, error) {
	if err := s.checkOwnership(ctx, tenant, orderID); err != nil {
		return nil, err
	}
	return s.Notifier.DeliveryStatus(ctx, orderID)
}

func (s *Kitchen) checkOwnership(ctx context.Context, tenant *models.Tenant, orderID string) error {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return err
	}
	if order.TenantID != tenant.ID {
		return fmt.Errorf("%w: order belongs to another tenant", ErrUnauthorized)
	}
	return nil
}

// AdvanceStatus moves an order one step along CONFIRMED→PREPARING→READY→
// COMPLETED, or cancels a non-terminal order. The write is conditioned on the
// status the operator saw, so a stale display loses the race instead of
// double-advancing.
func (s *Kitchen) AdvanceStatus(ctx context.Context, tenant *models.Tenant, orderID, next string) (*models.Order, error) {
	if !models.ValidStatus(next) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}

	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}
	if order.TenantID != tenant.ID {
		return nil, fmt.Errorf("%w: order belongs to another tenant", ErrUnauthorized)
	}

	allowed := models.NextStatus[order.Status] == next ||
		(next == models.StatusCanceled && !models.IsTerminalStatus(order.Status))
	if !allowed {
		return nil, fmt.Errorf("%w: cannot move %s to %s", ErrConflict, order.Status, next)
	}

	applied, err := s.Repo.AdvanceStatus(ctx, order.ID, order.Status, next)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: order changed concurrently", ErrConflict)
	}
	order.Status = next

	if s.Events != nil {
		ev := events.OrderEvent{
			Type:     events.OrderStatusChanged,
			OrderID:  order.ID,
			TenantID: order.TenantID,
			Status:   next,
		}
		if err := s.Events.Publish(ctx, ev); err != nil {
			logging.FromContext(ctx).Warn("event publish failed", "type", ev.Type, "order_id", ev.OrderID, "error", err)
		}
	}

	// Fire-and-forget: a failed notification never blocks or reverses READY.
	if next == models.StatusReady && s.Notifier != nil {
		l := logging.FromContext(ctx)
		orderRef := order.ID
		go func() {
			ctx, cancel := context.WithTimeout(logging.IntoContext(context.Background(), l), 30*time.Second)
			defer cancel()
			if res, err := s.Notifier.NotifyReady(ctx, orderRef); err != nil {
				l.Warn("ready notification failed", "order_id", orderRef, "error", err)
			} else if res.Status == "skipped" {
				l.Info("ready notification skipped", "order_id", orderRef, "reason", res.Reason)
			}
		}()
	}

	return order, nil
}
