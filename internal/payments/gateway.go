package payments

import (
	"context"
	"time"
)

// Session is the gateway-neutral view of one checkout attempt.
type Session struct {
	ID              string
	URL             string
	PaymentStatus   string
	PaymentIntentID string
	CustomerEmail   string
	Metadata        map[string]string
}

// Captured reports whether the session's funds are secured (or no payment
// was required), the only states that may confirm an order.
func (s *Session) Captured() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

type RefundResult struct {
	ID     string
	Status string
}

type CreateSessionParams struct {
	OrderID           string
	TenantSlug        string
	MerchantAccountID string
	Currency          string
	AmountCents       int64
	Description       string
	SuccessURL        string
	CancelURL         string
}

// Gateway is the narrow processor contract the reconciler and refund engine
// consume. merchantAccountID routes the call through a connected account when
// non-empty; an empty id targets the platform account.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p CreateSessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID, merchantAccountID string) (*Session, error)
	IssueRefund(ctx context.Context, paymentIntentID, merchantAccountID string, amountCents *int64) (*RefundResult, error)
}

// WebhookEvent is a verified inbound processor event. Account carries the
// connected-account id the processor attributed the event to, empty for
// platform-level events.
type WebhookEvent struct {
	ID      string
	Type    string
	Account string
	Session *Session
}

const (
	EventCheckoutCompleted     = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
