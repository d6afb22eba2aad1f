package models

import "time"

const (
	StatusAwaitingPayment = "AWAITING_PAYMENT"
	StatusConfirmed       = "CONFIRMED"
	StatusPreparing       = "PREPARING"
	StatusReady           = "READY"
	StatusCompleted       = "COMPLETED"
	StatusCanceled        = "CANCELED"
)

const (
	FulfillmentPickup = "PICKUP"
	FulfillmentDineIn = "DINE_IN"
)

// NextStatus is the operator-driven forward path of the order state machine.
// Payment confirmation and refunds move orders through their own guarded writes.
var NextStatus = map[string]string{
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusCompleted,
}

func IsTerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusCanceled
}

func ValidStatus(s string) bool {
	switch s {
	case StatusAwaitingPayment, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

type Tenant struct {
	ID        string `gorm:"primaryKey"            json:"id"`
	Slug      string `gorm:"uniqueIndex;not null"  json:"slug"`
	Name      string `gorm:"not null"              json:"name"`
	CreatedAt time.Time

	// Connected merchant account orders settle through; empty means the
	// platform account collects the charge.
	MerchantAccountID *string `gorm:"uniqueIndex" json:"merchant_account_id,omitempty"`

	// bcrypt hash, never the PIN itself.
	KitchenPINHash string `json:"-"`

	OrderingEnabled      bool `gorm:"not null;default:false" json:"ordering_enabled"`
	ManualConfirmEnabled bool `gorm:"not null;default:false" json:"manual_confirm_enabled"`

	Timezone        string `gorm:"not null;default:'America/Los_Angeles'" json:"timezone"`
	SlotMinutes     int    `gorm:"not null;default:15"                    json:"slot_minutes"`
	LeadTimeMinutes int    `gorm:"not null;default:30"                    json:"lead_time_minutes"`
}

type Order struct {
	ID        string `gorm:"primaryKey"     json:"id"`
	TenantID  string `gorm:"index;not null" json:"tenant_id"`
	Tenant    Tenant `gorm:"foreignKey:TenantID" json:"-"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Status      string `gorm:"not null" json:"status"`
	Fulfillment string `gorm:"not null" json:"fulfillment"`
	TableNumber string `json:"table_number,omitempty"`

	Currency      string `gorm:"not null;default:'usd'" json:"currency"`
	SubtotalCents int64  `gorm:"not null"               json:"subtotal_cents"`
	TotalCents    int64  `gorm:"not null"               json:"total_cents"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Timezone     string     `json:"timezone,omitempty"`

	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"-"`
	SMSOptIn      bool   `gorm:"not null;default:false" json:"sms_opt_in"`

	// Payment correlation, each set at most once.
	CheckoutSessionID *string    `gorm:"uniqueIndex" json:"checkout_session_id,omitempty"`
	PaymentIntentID   *string    `gorm:"uniqueIndex" json:"payment_intent_id,omitempty"`
	MerchantAccountID *string    `json:"merchant_account_id,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`

	// Refund fields, set at most once as a group.
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
	RefundAmountCents *int64     `json:"refund_amount_cents,omitempty"`
	RefundID          *string    `json:"refund_id,omitempty"`
	RefundStatus      *string    `json:"refund_status,omitempty"`
	RefundReason      *string    `json:"refund_reason,omitempty"`

	// Ready-notification bookkeeping.
	ReadySentAt         *time.Time `json:"ready_sent_at,omitempty"`
	ReadyMessageID      *string    `json:"ready_message_id,omitempty"`
	ReadyDeliveryStatus *string    `json:"ready_delivery_status,omitempty"`
	ReadyErrorCode      *string    `json:"ready_error_code,omitempty"`
	ReadyErrorMessage   *string    `json:"ready_error_message,omitempty"`
	ReadyAttemptCount   int        `gorm:"not null;default:0" json:"ready_attempt_count"`
	ReadyLastAttemptAt  *time.Time `json:"ready_last_attempt_at,omitempty"`

	Items []OrderItem `gorm:"constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

type OrderItem struct {
	ID             uint   `gorm:"primaryKey"     json:"id"`
	OrderID        string `gorm:"index;not null" json:"order_id"`
	MenuItemID     string `json:"menu_item_id"`
	Name           string `gorm:"not null"                json:"name"`
	UnitPriceCents int64  `gorm:"not null"                json:"unit_price_cents"`
	Quantity       int    `gorm:"not null;check:quantity>0" json:"quantity"`
	Note           string `json:"note,omitempty"`
	AddOns         string `json:"add_ons,omitempty"`
}
