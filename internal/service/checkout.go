package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/forkpoint/orderdesk/internal/models"
	"github.com/forkpoint/orderdesk/internal/payments"
	"github.com/forkpoint/orderdesk/internal/repo"
	"github.com/google/uuid"
)

type CheckoutItem struct {
	MenuItemID     string `json:"menu_item_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	Note           string `json:"note,omitempty"`
}

type CheckoutRequest struct {
	TenantSlug    string         `json:"tenant"`
	Fulfillment   string         `json:"fulfillment"`
	TableNumber   string         `json:"table_number,omitempty"`
	Items         []CheckoutItem `json:"items"`
	ScheduledFor  *time.Time     `json:"scheduled_for,omitempty"`
	CustomerPhone string         `json:"customer_phone,omitempty"`
	SMSOptIn      bool           `json:"sms_opt_in"`
}

type CheckoutResult struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

// Checkout produces AWAITING_PAYMENT orders and their checkout sessions.
// Totals are computed server-side from the submitted lines; price authority
// for menu content sits with the menu collaborator upstream of this call.
type Checkout struct {
	Repo    *repo.GormRepo
	Gateway payments.Gateway
	BaseURL string
}

func (s *Checkout) Start(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	slug := strings.ToLower(strings.TrimSpace(req.TenantSlug))
	if slug == "" {
		return nil, fmt.Errorf("%w: tenant required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items required", ErrValidation)
	}

	fulfillment := req.Fulfillment
	if fulfillment == "" {
		fulfillment = models.FulfillmentPickup
	}
	if fulfillment != models.FulfillmentPickup && fulfillment != models.FulfillmentDineIn {
		return nil, fmt.Errorf("%w: unknown fulfillment %q", ErrValidation, req.Fulfillment)
	}

	tenant, err := s.Repo.TenantBySlug(ctx, slug)
	if err != nil {
		if err == repo.ErrNotFound {
			return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, slug)
		}
		return nil, err
	}
	if !tenant.OrderingEnabled {
		return nil, fmt.Errorf("%w: ordering_disabled", ErrNotEligible)
	}

	var subtotal int64
	items := make([]models.OrderItem, 0, len(req.Items))
	for i := range req.Items {
		line := req.Items[i]
		if strings.TrimSpace(line.Name) == "" {
			return nil, fmt.Errorf("%w: item name required", ErrValidation)
		}
		if line.Quantity < 1 || line.Quantity > 99 {
			return nil, fmt.Errorf("%w: quantity out of range", ErrValidation)
		}
		if line.UnitPriceCents <= 0 {
			return nil, fmt.Errorf("%w: invalid_item:%s", ErrValidation, line.MenuItemID)
		}
		subtotal += line.UnitPriceCents * int64(line.Quantity)
		items = append(items, models.OrderItem{
			MenuItemID:     line.MenuItemID,
			Name:           line.Name,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			Note:           line.Note,
		})
	}
	total := subtotal

	if err := validateSchedule(req.ScheduledFor, tenant); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		TenantID:      tenant.ID,
		Status:        models.StatusAwaitingPayment,
		Fulfillment:   fulfillment,
		TableNumber:   strings.TrimSpace(req.TableNumber),
		Currency:      "usd",
		SubtotalCents: subtotal,
		TotalCents:    total,
		ScheduledFor:  req.ScheduledFor,
		Timezone:      tenant.Timezone,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		SMSOptIn:      req.SMSOptIn,
		Items:         items,
	}
	if _, err := s.Repo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	merchantAccount := ""
	if tenant.MerchantAccountID != nil {
		merchantAccount = *tenant.MerchantAccountID
	}

	session, err := s.Gateway.CreateCheckoutSession(ctx, payments.CreateSessionParams{
		OrderID:           order.ID,
		TenantSlug:        tenant.Slug,
		MerchantAccountID: merchantAccount,
		Currency:          order.Currency,
		AmountCents:       total,
		Description:       fmt.Sprintf("%s order", tenant.Slug),
		SuccessURL:        fmt.Sprintf("%s/order/success?order=%s&session_id={CHECKOUT_SESSION_ID}", s.BaseURL, url.QueryEscape(order.ID)),
		CancelURL:         fmt.Sprintf("%s/menu?tenant=%s", s.BaseURL, url.QueryEscape(tenant.Slug)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if _, err := s.Repo.SetCheckoutSession(ctx, order.ID, session.ID); err != nil {
		return nil, err
	}

	return &CheckoutResult{OrderID: order.ID, PaymentURL: session.URL}, nil
}

func validateSchedule(at *time.Time, tenant *models.Tenant) error {
	if at == nil {
		return nil
	}
	lead := time.Duration(tenant.LeadTimeMinutes) * time.Minute
	if lead < 0 {
		lead = 0
	}
	if at.Before(time.Now().Add(lead)) {
		return fmt.Errorf("%w: scheduled_too_soon", ErrValidation)
	}
	slot := tenant.SlotMinutes
	if slot < 1 {
		slot = 1
	}
	// Slots align to epoch minutes, matching how the client generates them.
	if (at.Unix()/60)%int64(slot) != 0 {
		return fmt.Errorf("%w: scheduled_not_on_slot", ErrValidation)
	}
	return nil
}
