package repo

import (
	"context"
	"errors"
	"time"

	"github.com/forkpoint/orderdesk/internal/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.DB.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *GormRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.DB.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *GormRepo) TenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.DB.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormRepo) TenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.DB.WithContext(ctx).First(&t, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormRepo) ListKitchenOrders(ctx context.Context, tenantID string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.DB.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND status NOT IN ?", tenantID, []string{models.StatusAwaitingPayment, models.StatusCompleted, models.StatusCanceled}).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// SetCheckoutSession stores the session handle created for the order.
// Guarded so an already-correlated order is never re-pointed at a new session.
func (r *GormRepo) SetCheckoutSession(ctx context.Context, orderID, sessionID string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND checkout_session_id IS NULL", orderID).
		Update("checkout_session_id", sessionID)
	return res.RowsAffected == 1, res.Error
}

type PaidPatch struct {
	CheckoutSessionID string
	PaymentIntentID   string
	MerchantAccountID string
	CustomerEmail     string
}

// MarkPaid applies the payment-confirmed transition as a single conditional
// write. The WHERE clause is the exactly-once guard: racing writers see
// RowsAffected == 0 and must treat the transition as already applied.
func (r *GormRepo) MarkPaid(ctx context.Context, orderID string, patch PaidPatch) (bool, error) {
	values := map[string]any{
		"status":  models.StatusConfirmed,
		"paid_at": time.Now().UTC(),
	}
	if patch.CheckoutSessionID != "" {
		values["checkout_session_id"] = patch.CheckoutSessionID
	}
	if patch.PaymentIntentID != "" {
		values["payment_intent_id"] = patch.PaymentIntentID
	}
	if patch.MerchantAccountID != "" {
		values["merchant_account_id"] = patch.MerchantAccountID
	}
	if patch.CustomerEmail != "" {
		values["customer_email"] = patch.CustomerEmail
	}

	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND paid_at IS NULL", orderID, models.StatusAwaitingPayment).
		Updates(values)
	return res.RowsAffected == 1, res.Error
}

// ConfirmWithoutPayment is the manual-override transition: same guard as
// MarkPaid but paid_at stays NULL, which keeps the order refund-ineligible.
func (r *GormRepo) ConfirmWithoutPayment(ctx context.Context, orderID string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND paid_at IS NULL", orderID, models.StatusAwaitingPayment).
		Update("status", models.StatusConfirmed)
	return res.RowsAffected == 1, res.Error
}

type RefundPatch struct {
	AmountCents int64
	RefundID    string
	Status      string
	Reason      string
}

// RecordRefund cancels the order and writes the refund group in one guarded
// update. The refunded_at IS NULL condition is the double-refund guard.
func (r *GormRepo) RecordRefund(ctx context.Context, orderID string, patch RefundPatch) (bool, error) {
	values := map[string]any{
		"status":              models.StatusCanceled,
		"refunded_at":         time.Now().UTC(),
		"refund_amount_cents": patch.AmountCents,
		"refund_id":           patch.RefundID,
		"refund_status":       patch.Status,
	}
	if patch.Reason != "" {
		values["refund_reason"] = patch.Reason
	}

	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND paid_at IS NOT NULL AND refunded_at IS NULL", orderID).
		Updates(values)
	return res.RowsAffected == 1, res.Error
}

// AdvanceStatus is the operator transition, conditioned on the expected prior
// status so stale displays cannot skip or repeat steps.
func (r *GormRepo) AdvanceStatus(ctx context.Context, orderID, from, to string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

// ClaimReadyNotice reserves the single ready-notification send for this order.
func (r *GormRepo) ClaimReadyNotice(ctx context.Context, orderID string) (bool, error) {
	now := time.Now().UTC()
	res := r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ? AND ready_sent_at IS NULL", orderID, models.StatusReady).
		Updates(map[string]any{
			"ready_sent_at":         now,
			"ready_attempt_count":   gorm.Expr("ready_attempt_count + 1"),
			"ready_last_attempt_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// ReleaseReadyClaim undoes a claim after a failed send so a retry can re-claim.
func (r *GormRepo) ReleaseReadyClaim(ctx context.Context, orderID, errCode, errMessage string) error {
	values := map[string]any{
		"ready_sent_at":         nil,
		"ready_message_id":      nil,
		"ready_delivery_status": "failed",
	}
	if errCode != "" {
		values["ready_error_code"] = errCode
	}
	if errMessage != "" {
		values["ready_error_message"] = errMessage
	}
	return r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(values).Error
}

// ResetReadyClaim clears the send bookkeeping ahead of an operator retry so
// ClaimReadyNotice can succeed again. Attempt counters are left intact.
func (r *GormRepo) ResetReadyClaim(ctx context.Context, orderID string) error {
	return r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"ready_sent_at":         nil,
			"ready_message_id":      nil,
			"ready_delivery_status": nil,
			"ready_error_code":      nil,
			"ready_error_message":   nil,
		}).Error
}

func (r *GormRepo) RecordReadyResult(ctx context.Context, orderID, messageID, status string) error {
	return r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"ready_message_id":      messageID,
			"ready_delivery_status": status,
			"ready_error_code":      nil,
			"ready_error_message":   nil,
		}).Error
}

func (r *GormRepo) SetReadyDeliveryStatus(ctx context.Context, orderID, status, errCode, errMessage string) error {
	values := map[string]any{"ready_delivery_status": status}
	if errCode != "" {
		values["ready_error_code"] = errCode
	}
	if errMessage != "" {
		values["ready_error_message"] = errMessage
	}
	return r.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(values).Error
}
