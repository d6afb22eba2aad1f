package service

import (
	"context"
	"fmt"

	"github.com/forkpoint/orderdesk/internal/events"
	"github.com/forkpoint/orderdesk/internal/logging"
	"github.com/forkpoint/orderdesk/internal/models"
	"github.com/forkpoint/orderdesk/internal/payments"
	"github.com/forkpoint/orderdesk/internal/repo"
)

type RefundResult struct {
	RefundID    string `json:"refund_id"`
	AmountCents int64  `json:"amount_cents"`
}

type RefundEngine struct {
	Repo    *repo.GormRepo
	Gateway payments.Gateway
	Events  events.Publisher
}

// Refund validates against the ledger's stored totals, issues the refund at
// the processor, then records it. Issue-then-record is deliberate: an issued
// but unrecorded refund is detectable against the processor's records, a
// recorded but unissued one is not.
func (s *RefundEngine) Refund(ctx context.Context, orderID string, amountCents *int64, reason string) (*RefundResult, error) {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}

	if order.PaidAt == nil {
		return nil, fmt.Errorf("%w: order is not paid", ErrNotRefundable)
	}
	if order.RefundedAt != nil {
		return nil, fmt.Errorf("%w: order already refunded", ErrAlreadyRefunded)
	}
	// Manually confirmed orders never reach here (no paid_at), but an order
	// missing its intent correlation cannot be refunded either way.
	if order.PaymentIntentID == nil || *order.PaymentIntentID == "" {
		return nil, fmt.Errorf("%w: missing payment intent", ErrNotRefundable)
	}

	amount := order.TotalCents
	if amountCents != nil {
		amount = *amountCents
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if amount > order.TotalCents {
		return nil, fmt.Errorf("%w: amount exceeds order total", ErrInvalidAmount)
	}

	// Full-total refunds pass nil so the processor computes the amount itself.
	var gatewayAmount *int64
	if amount != order.TotalCents {
		gatewayAmount = &amount
	}

	merchantAccount := ""
	if order.MerchantAccountID != nil {
		merchantAccount = *order.MerchantAccountID
	}

	refund, err := s.Gateway.IssueRefund(ctx, *order.PaymentIntentID, merchantAccount, gatewayAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	applied, err := s.Repo.RecordRefund(ctx, order.ID, repo.RefundPatch{
		AmountCents: amount,
		RefundID:    refund.ID,
		Status:      refund.Status,
		Reason:      reason,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent refund won the record; ours is now visible only at the
		// processor. Surface loudly for reconciliation.
		logging.FromContext(ctx).Error("refund issued but lost record race",
			"order_id", order.ID, "refund_id", refund.ID)
		return nil, fmt.Errorf("%w: order already refunded", ErrAlreadyRefunded)
	}

	if s.Events != nil {
		ev := events.OrderEvent{
			Type:     events.OrderRefunded,
			OrderID:  order.ID,
			TenantID: order.TenantID,
			Status:   models.StatusCanceled,
		}
		if err := s.Events.Publish(ctx, ev); err != nil {
			logging.FromContext(ctx).Warn("event publish failed", "type", ev.Type, "order_id", ev.OrderID, "error", err)
		}
	}

	return &RefundResult{RefundID: refund.ID, AmountCents: amount}, nil
}
