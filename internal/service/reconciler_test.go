package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forkpoint/orderdesk/internal/events"
	"github.com/forkpoint/orderdesk/internal/models"
)

func TestConfirmPayment(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_1", order.ID, "pi_1")
	pub := &fakePublisher{}
	rec := &Reconciler{Repo: r, Gateway: gw, Events: pub}

	res, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1", Account: *tenant.MerchantAccountID})
	require.NoError(t, err)
	require.False(t, res.AlreadyApplied)

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, got.Status)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.PaymentIntentID)
	require.Equal(t, "pi_1", *got.PaymentIntentID)
	require.Equal(t, "guest@example.com", got.CustomerEmail)

	// The session is always retrieved through the order's expected account.
	require.Equal(t, []string{*tenant.MerchantAccountID}, gw.retrieveAccounts)

	require.Len(t, pub.published, 1)
	require.Equal(t, events.OrderConfirmed, pub.published[0].Type)
	require.Equal(t, order.ID, pub.published[0].OrderID)
}

func TestConfirmPaymentStoresResolvedAccount(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_1", order.ID, "pi_1")
	rec := &Reconciler{Repo: r, Gateway: gw}

	// The synchronous confirm channel carries no account attribution.
	res, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1"})
	require.NoError(t, err)
	require.False(t, res.AlreadyApplied)

	// The charge settled on the tenant's connected account, so the stored
	// correlation must carry it for later refund routing.
	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MerchantAccountID)
	require.Equal(t, *tenant.MerchantAccountID, *got.MerchantAccountID)
}

func TestConfirmPaymentDuplicateIsNoOp(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_1", order.ID, "pi_1")
	pub := &fakePublisher{}
	rec := &Reconciler{Repo: r, Gateway: gw, Events: pub}

	first, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1"})
	require.NoError(t, err)
	require.False(t, first.AlreadyApplied)

	second, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1"})
	require.NoError(t, err)
	require.True(t, second.AlreadyApplied)

	// Only the transition that applied gets an event.
	require.Len(t, pub.published, 1)

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	firstPaidAt := *got.PaidAt

	third, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1"})
	require.NoError(t, err)
	require.True(t, third.AlreadyApplied)

	got, err = r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, firstPaidAt, *got.PaidAt)
}

func TestConfirmPaymentRacingChannels(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_1", order.ID, "pi_1")
	rec := &Reconciler{Repo: r, Gateway: gw}

	const racers = 8
	applied := make(chan bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1"})
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			applied <- !res.AlreadyApplied
		}()
	}
	wg.Wait()
	close(applied)

	wins := 0
	for a := range applied {
		if a {
			wins++
		}
	}
	require.Equal(t, 1, wins)

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, got.Status)
	require.NotNil(t, got.PaidAt)
}

func TestConfirmPaymentAccountMismatch(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_1", order.ID, "pi_1")
	rec := &Reconciler{Repo: r, Gateway: gw}

	_, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1", Account: "acct_attacker"})
	require.ErrorIs(t, err, ErrAccountMismatch)

	// The mismatch must be rejected before any processor call or write.
	require.Empty(t, gw.retrieveAccounts)

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingPayment, got.Status)
	require.Nil(t, got.PaidAt)
}

func TestConfirmPaymentSessionForAnotherOrder(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)
	other := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_other", other.ID, "pi_other")
	rec := &Reconciler{Repo: r, Gateway: gw}

	_, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_other"})
	require.ErrorIs(t, err, ErrSessionOrderMismatch)

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Nil(t, got.PaidAt)
}

func TestConfirmPaymentSessionNotCaptured(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_1", order.ID, "pi_1")
	gw.sessions["cs_1"].PaymentStatus = "unpaid"
	rec := &Reconciler{Repo: r, Gateway: gw}

	_, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1"})
	require.ErrorIs(t, err, ErrNotPaid)

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingPayment, got.Status)
}

func TestConfirmPaymentNoPaymentRequired(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	gw := newFakeGateway()
	gw.addPaidSession("cs_1", order.ID, "pi_1")
	gw.sessions["cs_1"].PaymentStatus = "no_payment_required"
	rec := &Reconciler{Repo: r, Gateway: gw}

	res, err := rec.ConfirmPayment(context.Background(), order.ID, Evidence{SessionID: "cs_1"})
	require.NoError(t, err)
	require.False(t, res.AlreadyApplied)
}

func TestConfirmPaymentUnknownOrder(t *testing.T) {
	r := initTestRepo(t)
	rec := &Reconciler{Repo: r, Gateway: newFakeGateway()}

	_, err := rec.ConfirmPayment(context.Background(), "missing", Evidence{SessionID: "cs_1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManualConfirm(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, func(ten *models.Tenant) { ten.ManualConfirmEnabled = true })
	order := seedOrder(t, r, tenant, nil)

	pub := &fakePublisher{}
	rec := &Reconciler{Repo: r, Gateway: newFakeGateway(), Events: pub}

	require.NoError(t, rec.ManualConfirm(context.Background(), order.ID, "4242"))

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, got.Status)
	// Manual confirmation records no payment; the order stays refund-ineligible.
	require.Nil(t, got.PaidAt)
	require.Len(t, pub.published, 1)
}

func TestManualConfirmBadPIN(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, func(ten *models.Tenant) { ten.ManualConfirmEnabled = true })
	order := seedOrder(t, r, tenant, nil)

	rec := &Reconciler{Repo: r, Gateway: newFakeGateway()}

	err := rec.ManualConfirm(context.Background(), order.ID, "0000")
	require.ErrorIs(t, err, ErrUnauthorized)

	got, err := r.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusAwaitingPayment, got.Status)
}

func TestManualConfirmDisabledTenant(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	rec := &Reconciler{Repo: r, Gateway: newFakeGateway()}

	err := rec.ManualConfirm(context.Background(), order.ID, "4242")
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestManualConfirmAllowListOverridesFlag(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, nil)
	order := seedOrder(t, r, tenant, nil)

	rec := &Reconciler{Repo: r, Gateway: newFakeGateway(), ManualConfirmTenants: []string{tenant.Slug}}

	require.NoError(t, rec.ManualConfirm(context.Background(), order.ID, "4242"))
}

func TestManualConfirmRejectsSessionOrders(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, func(ten *models.Tenant) { ten.ManualConfirmEnabled = true })
	order := seedOrder(t, r, tenant, func(o *models.Order) {
		o.CheckoutSessionID = ptrStr("cs_existing")
	})

	rec := &Reconciler{Repo: r, Gateway: newFakeGateway()}

	err := rec.ManualConfirm(context.Background(), order.ID, "4242")
	require.ErrorIs(t, err, ErrNotEligible)
}

func TestManualConfirmAlreadyConfirmed(t *testing.T) {
	r := initTestRepo(t)
	tenant := seedTenant(t, r, func(ten *models.Tenant) { ten.ManualConfirmEnabled = true })
	order := seedOrder(t, r, tenant, func(o *models.Order) {
		o.Status = models.StatusConfirmed
	})

	rec := &Reconciler{Repo: r, Gateway: newFakeGateway()}

	err := rec.ManualConfirm(context.Background(), order.ID, "4242")
	require.ErrorIs(t, err, ErrConflict)
}
