package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/forkpoint/orderdesk/internal/auth"
	"github.com/forkpoint/orderdesk/internal/events"
	"github.com/forkpoint/orderdesk/internal/models"
	"github.com/forkpoint/orderdesk/internal/payments"
	"github.com/forkpoint/orderdesk/internal/repo"
	"github.com/forkpoint/orderdesk/internal/sms"
)

func initTestRepo(t *testing.T) *repo.GormRepo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	// Each sqlite :memory: connection is its own database; pin to one.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Tenant{}, &models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	return &repo.GormRepo{DB: db}
}

func seedTenant(t *testing.T, r *repo.GormRepo, mutate func(*models.Tenant)) *models.Tenant {
	t.Helper()

	pinHash, err := auth.HashPIN("4242")
	require.NoError(t, err)

	acct := "acct_" + uuid.NewString()[:8]
	tenant := &models.Tenant{
		ID:                uuid.NewString(),
		Slug:              "taqueria-" + uuid.NewString()[:8],
		Name:              "Taqueria Norte",
		MerchantAccountID: &acct,
		KitchenPINHash:    pinHash,
		OrderingEnabled:   true,
		Timezone:          "America/Los_Angeles",
		SlotMinutes:       15,
		LeadTimeMinutes:   30,
	}
	if mutate != nil {
		mutate(tenant)
	}
	require.NoError(t, r.DB.Create(tenant).Error)
	return tenant
}

func seedOrder(t *testing.T, r *repo.GormRepo, tenant *models.Tenant, mutate func(*models.Order)) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.NewString(),
		TenantID:      tenant.ID,
		Status:        models.StatusAwaitingPayment,
		Fulfillment:   models.FulfillmentPickup,
		Currency:      "usd",
		SubtotalCents: 2500,
		TotalCents:    2500,
		Timezone:      tenant.Timezone,
		Items: []models.OrderItem{
			{MenuItemID: "itm_1", Name: "Carnitas Burrito", UnitPriceCents: 1250, Quantity: 2},
		},
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, r.DB.Create(order).Error)
	return order
}

func markOrderPaid(t *testing.T, r *repo.GormRepo, orderID, sessionID, intentID, account string) {
	t.Helper()
	applied, err := r.MarkPaid(context.Background(), orderID, repo.PaidPatch{
		CheckoutSessionID: sessionID,
		PaymentIntentID:   intentID,
		MerchantAccountID: account,
	})
	require.NoError(t, err)
	require.True(t, applied)
}

// fakeGateway serves configured sessions and records refund calls.
type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*payments.Session

	retrieveAccounts []string
	retrieveErr      error

	createdParams []payments.CreateSessionParams
	createErr     error

	refundCalls  []refundCall
	refundErr    error
	nextRefundID string
}

type refundCall struct {
	PaymentIntentID   string
	MerchantAccountID string
	AmountCents       *int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*payments.Session{}, nextRefundID: "re_1"}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p payments.CreateSessionParams) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.createdParams = append(g.createdParams, p)
	sess := &payments.Session{
		ID:            fmt.Sprintf("cs_%d", len(g.createdParams)),
		URL:           "https://checkout.example/" + p.OrderID,
		PaymentStatus: "unpaid",
		Metadata:      map[string]string{"orderId": p.OrderID, "tenant": p.TenantSlug},
	}
	g.sessions[sess.ID] = sess
	return sess, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, sessionID, merchantAccountID string) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrieveAccounts = append(g.retrieveAccounts, merchantAccountID)
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	return sess, nil
}

func (g *fakeGateway) IssueRefund(_ context.Context, paymentIntentID, merchantAccountID string, amountCents *int64) (*payments.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refundCalls = append(g.refundCalls, refundCall{
		PaymentIntentID:   paymentIntentID,
		MerchantAccountID: merchantAccountID,
		AmountCents:       amountCents,
	})
	return &payments.RefundResult{ID: g.nextRefundID, Status: "succeeded"}, nil
}

func (g *fakeGateway) addPaidSession(id, orderID, intentID string) {
	g.sessions[id] = &payments.Session{
		ID:              id,
		PaymentStatus:   "paid",
		PaymentIntentID: intentID,
		CustomerEmail:   "guest@example.com",
		Metadata:        map[string]string{"orderId": orderID},
	}
}

// fakeTransport records sends and serves canned statuses.
type fakeTransport struct {
	sent    []sentSMS
	sendErr error
	nextID  string

	statuses map[string]*sms.Message
	fetchErr error
}

type sentSMS struct {
	To   string
	Body string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextID: "SM1", statuses: map[string]*sms.Message{}}
}

func (f *fakeTransport) Send(_ context.Context, toPhone, body string) (*sms.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentSMS{To: toPhone, Body: body})
	return &sms.Message{ID: f.nextID, Status: "queued"}, nil
}

func (f *fakeTransport) FetchStatus(_ context.Context, messageID string) (*sms.Message, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if msg, ok := f.statuses[messageID]; ok {
		return msg, nil
	}
	return &sms.Message{ID: messageID, Status: "delivered"}, nil
}

// fakePublisher collects published events.
type fakePublisher struct {
	published []events.OrderEvent
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, ev events.OrderEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, ev)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func ptrInt64(v int64) *int64 { return &v }

func ptrStr(v string) *string { return &v }

func ptrTime(v time.Time) *time.Time { return &v }
