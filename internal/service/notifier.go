package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forkpoint/orderdesk/internal/models"
	"github.com/forkpoint/orderdesk/internal/repo"
	"github.com/forkpoint/orderdesk/internal/sms"
)

const (
	maxReadyAttempts   = 3
	readyRetryCooldown = time.Minute
)

type NotifyResult struct {
	Status    string `json:"status"` // "queued" or "skipped"
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Notifier decides when the "order ready" message fires, computes its content
// deterministically, and keeps delivery bookkeeping on the order row. Sending
// never blocks or reverses the READY transition.
type Notifier struct {
	Repo *repo.GormRepo
	SMS  sms.Transport // nil when the transport is not configured
}

func (n *Notifier) NotifyReady(ctx context.Context, orderID string) (*NotifyResult, error) {
	order, err := n.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}

	if order.Status != models.StatusReady {
		return nil, fmt.Errorf("%w: order is not READY", ErrConflict)
	}
	if n.SMS == nil {
		return &NotifyResult{Status: "skipped", Reason: "sms_not_configured"}, nil
	}
	if !order.SMSOptIn {
		return &NotifyResult{Status: "skipped", Reason: "no_opt_in"}, nil
	}
	if strings.TrimSpace(order.CustomerPhone) == "" {
		return &NotifyResult{Status: "skipped", Reason: "no_phone"}, nil
	}

	claimed, err := n.Repo.ClaimReadyNotice(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Someone already sent (or is sending) for this order.
		return &NotifyResult{Status: "skipped", Reason: "already_sent"}, nil
	}

	tenant, err := n.Repo.TenantByID(ctx, order.TenantID)
	if err != nil {
		return nil, err
	}

	body := BuildReadyBody(tenant.Name, order.ID, order.TableNumber, order.Fulfillment == models.FulfillmentDineIn)

	msg, err := n.SMS.Send(ctx, order.CustomerPhone, body)
	if err != nil {
		if relErr := n.Repo.ReleaseReadyClaim(ctx, order.ID, "", truncateErr(err)); relErr != nil {
			return nil, relErr
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if err := n.Repo.RecordReadyResult(ctx, order.ID, msg.ID, msg.Status); err != nil {
		return nil, err
	}

	return &NotifyResult{Status: "queued", MessageID: msg.ID}, nil
}

// RetryReady clears a failed (or stuck) send and goes again, bounded by an
// attempt cap and a cooldown between attempts.
func (n *Notifier) RetryReady(ctx context.Context, orderID string) (*NotifyResult, error) {
	order, err := n.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}

	if order.Status != models.StatusReady {
		return nil, fmt.Errorf("%w: order is not READY", ErrConflict)
	}
	if !order.SMSOptIn {
		return nil, fmt.Errorf("%w: customer did not opt in", ErrConflict)
	}
	if strings.TrimSpace(order.CustomerPhone) == "" {
		return nil, fmt.Errorf("%w: missing customer phone", ErrConflict)
	}
	if order.ReadyAttemptCount >= maxReadyAttempts {
		return nil, fmt.Errorf("%w: attempt limit reached", ErrRetryLimit)
	}
	if order.ReadyLastAttemptAt != nil && time.Since(*order.ReadyLastAttemptAt) < readyRetryCooldown {
		return nil, fmt.Errorf("%w: retried too soon", ErrRetryLimit)
	}

	if err := n.Repo.ResetReadyClaim(ctx, order.ID); err != nil {
		return nil, err
	}

	return n.NotifyReady(ctx, orderID)
}

// DeliveryStatus re-fetches the provider's current status for the order's
// stored message and persists it. It never resends.
func (n *Notifier) DeliveryStatus(ctx context.Context, orderID string) (*sms.Message, error) {
	order, err := n.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, err
	}
	if order.ReadyMessageID == nil || *order.ReadyMessageID == "" {
		return nil, fmt.Errorf("%w: no message recorded for order", ErrConflict)
	}
	if n.SMS == nil {
		return nil, fmt.Errorf("%w: sms transport not configured", ErrConflict)
	}

	msg, err := n.SMS.FetchStatus(ctx, *order.ReadyMessageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if err := n.Repo.SetReadyDeliveryStatus(ctx, order.ID, msg.Status, msg.ErrorCode, msg.ErrorMessage); err != nil {
		return nil, err
	}

	return msg, nil
}

// BuildReadyBody computes the notification text from order data alone, so any
// retry produces the identical message.
func BuildReadyBody(tenantName, orderID, tableNumber string, dineIn bool) string {
	name := strings.TrimSpace(tenantName)
	if name == "" {
		name = "the restaurant"
	}
	if dineIn {
		where := ""
		if t := strings.TrimSpace(tableNumber); t != "" {
			where = " for table " + t
		}
		return fmt.Sprintf("Your order from %s is ready%s. Reply STOP to opt out.", name, where)
	}
	return fmt.Sprintf("Your order from %s is ready for pickup. Pickup code: %s. Reply STOP to opt out.", name, PickupCode(orderID))
}

// PickupCode derives a stable 6-digit code from the order id (FNV-1a over the
// id, mod 1e6). It is a self-identification convenience for the pickup
// counter, not an authorization credential, and must never be treated as one.
func PickupCode(orderID string) string {
	h := uint32(2166136261)
	for i := 0; i < len(orderID); i++ {
		h ^= uint32(orderID[i])
		h *= 16777619
	}
	n := int64(int32(h))
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%06d", n%1_000_000)
}

func truncateErr(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown_error"
	}
	if len(msg) > 220 {
		return msg[:220]
	}
	return msg
}
