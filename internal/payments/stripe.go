package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var ErrBadSignature = errors.New("invalid webhook signature")

type StripeGateway struct {
	api     *client.API
	timeout time.Duration
}

func NewStripeGateway(secretKey string, timeout time.Duration) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, timeout: timeout}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(p.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(p.Description)},
					UnitAmount:  stripe.Int64(p.AmountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("orderId", p.OrderID)
	params.AddMetadata("tenant", p.TenantSlug)
	params.AddMetadata("kind", "food_order")
	if p.MerchantAccountID != "" {
		params.SetStripeAccount(p.MerchantAccountID)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return fromStripeSession(sess), nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID, merchantAccountID string) (*Session, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if merchantAccountID != "" {
		params.SetStripeAccount(merchantAccountID)
	}

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve session %s: %w", sessionID, err)
	}
	return fromStripeSession(sess), nil
}

func (g *StripeGateway) IssueRefund(ctx context.Context, paymentIntentID, merchantAccountID string, amountCents *int64) (*RefundResult, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	// Full-total refunds omit the amount so the processor computes it.
	if amountCents != nil {
		params.Amount = stripe.Int64(*amountCents)
	}
	if merchantAccountID != "" {
		params.SetStripeAccount(merchantAccountID)
	}

	ref, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: refund %s: %w", paymentIntentID, err)
	}
	return &RefundResult{ID: ref.ID, Status: string(ref.Status)}, nil
}

// ParseEvent verifies the raw payload against the signing secret and extracts
// the checkout session for the event classes the reconciler consumes. Must run
// before any payload field is trusted.
func ParseEvent(payload []byte, sigHeader, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := &WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Account: event.Account,
	}

	switch out.Type {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("parse checkout session: %w", err)
		}
		out.Session = fromStripeSession(&sess)
	}

	return out, nil
}

func fromStripeSession(sess *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.CustomerDetails != nil {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	return out
}
