package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/forkpoint/orderdesk/internal/auth"
	"github.com/forkpoint/orderdesk/internal/events"
	"github.com/forkpoint/orderdesk/internal/logging"
	"github.com/forkpoint/orderdesk/internal/models"
	"github.com/forkpoint/orderdesk/internal/payments"
	"github.com/forkpoint/orderdesk/internal/repo"
)

// Evidence is a payment-confirmation signal from either inbound channel: the
// guest's synchronous confirm call or the processor's webhook delivery.
type Evidence struct {
	SessionID string
	// Connected account the processor attributed the event to; empty for
	// platform-collected charges or for the synchronous confirm path, where
	// the session is retrieved through the expected account instead.
	Account string
}

type ConfirmResult struct {
	AlreadyApplied bool `json:"already_applied"`
}

// Reconciler decides, exactly once per order, whether a payment confirmation
// may advance the order. Correctness under concurrent signals comes entirely
// from the repo's conditional writes, never from in-process locking.
type Reconciler struct {
	Repo    *repo.GormRepo
	Gateway payments.Gateway
	Events  events.Publisher

	// Extra manual-confirm allow-list by tenant slug, resolved once at
	// startup for verification environments.
	ManualConfirmTenants []string
}

func (s *Reconciler) ConfirmPayment(ctx context.Context, orderID string, ev Evidence) (*ConfirmResult, error) {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}

	// Primary defense against duplicate webhook delivery and the race between
	// the confirm call and the webhook.
	if order.PaidAt != nil || order.Status != models.StatusAwaitingPayment {
		return &ConfirmResult{AlreadyApplied: true}, nil
	}

	if ev.SessionID == "" {
		return nil, fmt.Errorf("%w: session id required", ErrValidation)
	}

	expectedAccount, err := s.expectedAccount(ctx, order)
	if err != nil {
		return nil, err
	}

	// A configured account must match the attribution exactly; silently
	// accepting a mismatch would misattribute funds across tenants.
	if expectedAccount != "" && ev.Account != "" && ev.Account != expectedAccount {
		return nil, fmt.Errorf("%w: event account %s, expected %s", ErrAccountMismatch, ev.Account, expectedAccount)
	}

	session, err := s.Gateway.RetrieveSession(ctx, ev.SessionID, expectedAccount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if !session.Captured() {
		return nil, fmt.Errorf("%w: payment_status=%s", ErrNotPaid, session.PaymentStatus)
	}

	// The session must have been created for this exact order; a session for
	// another order cannot be replayed here.
	if strings.TrimSpace(session.Metadata["orderId"]) != order.ID {
		return nil, fmt.Errorf("%w: session %s", ErrSessionOrderMismatch, session.ID)
	}

	// Store the resolved account, not the raw attribution: the synchronous
	// confirm channel carries none, and refunds must route through the same
	// connected account the charge settled on.
	settledAccount := expectedAccount
	if settledAccount == "" {
		settledAccount = ev.Account
	}

	applied, err := s.Repo.MarkPaid(ctx, order.ID, repo.PaidPatch{
		CheckoutSessionID: session.ID,
		PaymentIntentID:   session.PaymentIntentID,
		MerchantAccountID: settledAccount,
		CustomerEmail:     session.CustomerEmail,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent writer won the transition; that is success, not failure.
		return &ConfirmResult{AlreadyApplied: true}, nil
	}

	s.publish(ctx, events.OrderEvent{
		Type:     events.OrderConfirmed,
		OrderID:  order.ID,
		TenantID: order.TenantID,
		Status:   models.StatusConfirmed,
	})

	return &ConfirmResult{}, nil
}

// ManualConfirm advances an order without a processor signal. It is a trusted
// in-person fallback, not a payment record: paid_at stays unset so the order
// can never be refunded.
func (s *Reconciler) ManualConfirm(ctx context.Context, orderID, presentedPIN string) error {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return err
	}

	if order.PaidAt != nil || order.Status != models.StatusAwaitingPayment {
		return fmt.Errorf("%w: order already confirmed", ErrConflict)
	}
	if order.CheckoutSessionID != nil {
		return fmt.Errorf("%w: order has a checkout session", ErrNotEligible)
	}

	tenant, err := s.Repo.TenantByID(ctx, order.TenantID)
	if err != nil {
		return err
	}
	if !tenant.ManualConfirmEnabled && !s.slugAllowed(tenant.Slug) {
		return fmt.Errorf("%w: manual confirm disabled for tenant", ErrNotEligible)
	}
	if !auth.CheckPIN(tenant.KitchenPINHash, presentedPIN) {
		return fmt.Errorf("%w: bad kitchen pin", ErrUnauthorized)
	}

	applied, err := s.Repo.ConfirmWithoutPayment(ctx, order.ID)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%w: order already confirmed", ErrConflict)
	}

	s.publish(ctx, events.OrderEvent{
		Type:     events.OrderConfirmed,
		OrderID:  order.ID,
		TenantID: order.TenantID,
		Status:   models.StatusConfirmed,
	})

	return nil
}

func (s *Reconciler) expectedAccount(ctx context.Context, order *models.Order) (string, error) {
	if order.MerchantAccountID != nil && *order.MerchantAccountID != "" {
		return *order.MerchantAccountID, nil
	}
	tenant, err := s.Repo.TenantByID(ctx, order.TenantID)
	if err != nil {
		return "", err
	}
	if tenant.MerchantAccountID != nil {
		return *tenant.MerchantAccountID, nil
	}
	return "", nil
}

func (s *Reconciler) slugAllowed(slug string) bool {
	for _, allowed := range s.ManualConfirmTenants {
		if allowed == slug {
			return true
		}
	}
	return false
}

func (s *Reconciler) publish(ctx context.Context, ev events.OrderEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "type", ev.Type, "order_id", ev.OrderID, "error", err)
	}
}
