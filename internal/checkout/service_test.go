package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smolentsev/shopbot/internal/catalog"
	"github.com/smolentsev/shopbot/internal/orders"
	"github.com/smolentsev/shopbot/internal/pricing"
	"github.com/smolentsev/shopbot/pkg/db/models"
	"github.com/smolentsev/shopbot/pkg/enums"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
)

type memSessions struct {
	sessions map[int64]Session
}

func (m *memSessions) Save(_ context.Context, userID int64, session Session) error {
	if m.sessions == nil {
		m.sessions = map[int64]Session{}
	}
	m.sessions[userID] = session
	return nil
}

func (m *memSessions) Get(_ context.Context, userID int64) (*Session, error) {
	session, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (m *memSessions) Delete(_ context.Context, userID int64) error {
	delete(m.sessions, userID)
	return nil
}

type memCart struct {
	quantities map[string]int
	promoCode  string
	cleared    bool
	clearErr   error
}

func (m *memCart) Quantities(context.Context, int64) (map[string]int, error) {
	return m.quantities, nil
}

func (m *memCart) PromoCode(context.Context, int64) (string, error) {
	return m.promoCode, nil
}

func (m *memCart) Clear(context.Context, int64) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cleared = true
	m.quantities = nil
	return nil
}

type memPromos struct {
	codes       map[string]*models.PromoCode
	consumes    int
	consumeRace func()
}

func (m *memPromos) FindActive(_ context.Context, code string) (*models.PromoCode, error) {
	promo, ok := m.codes[code]
	if !ok || promo.UsesLeft <= 0 {
		return nil, nil
	}
	copied := *promo
	return &copied, nil
}

func (m *memPromos) Consume(_ context.Context, code string) (bool, error) {
	m.consumes++
	if m.consumeRace != nil {
		m.consumeRace()
	}
	promo, ok := m.codes[code]
	if !ok || promo.UsesLeft <= 0 {
		return false, nil
	}
	promo.UsesLeft--
	return true, nil
}

type memReferralRecorder struct {
	referrers map[int64]int64
	recorded  []models.ReferredOrder
}

func (m *memReferralRecorder) ReferrerOf(_ context.Context, referredID int64) (int64, error) {
	return m.referrers[referredID], nil
}

func (m *memReferralRecorder) RecordOrder(_ context.Context, order models.ReferredOrder) error {
	m.recorded = append(m.recorded, order)
	return nil
}

type memAccountFinder struct {
	accounts map[int64]*models.UserAccount
}

func (m *memAccountFinder) Find(_ context.Context, userID int64) (*models.UserAccount, error) {
	return m.accounts[userID], nil
}

type memAppender struct {
	appended []orders.Order
	failErr  error
}

func (m *memAppender) Append(_ context.Context, order orders.Order) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.appended = append(m.appended, order)
	return nil
}

type stubSnapshots struct {
	snap *catalog.Snapshot
}

func (s *stubSnapshots) Snapshot() *catalog.Snapshot { return s.snap }

type recordingNotifier struct {
	sent map[int64][]string
}

func (r *recordingNotifier) Send(_ context.Context, userID int64, text string) error {
	if r.sent == nil {
		r.sent = map[int64][]string{}
	}
	r.sent[userID] = append(r.sent[userID], text)
	return nil
}

type checkoutFixture struct {
	svc       *Service
	cart      *memCart
	promos    *memPromos
	referrals *memReferralRecorder
	accounts  *memAccountFinder
	ledger    *memAppender
	sessions  *memSessions
	notifier  *recordingNotifier
}

const testOperatorID int64 = 900

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	snap := catalog.NewSnapshot([]catalog.Item{
		{ID: "p1", Name: "Berry", Category: "Liquids", Price: 50, Quantity: 10},
		{ID: "p2", Name: "Coil", Category: "Hardware", Price: 25, Quantity: 10},
	}, 1, time.Time{})

	f := &checkoutFixture{
		cart:      &memCart{quantities: map[string]int{"p1": 2, "p2": 1}},
		promos:    &memPromos{codes: map[string]*models.PromoCode{}},
		referrals: &memReferralRecorder{referrers: map[int64]int64{}},
		accounts:  &memAccountFinder{accounts: map[int64]*models.UserAccount{}},
		ledger:    &memAppender{},
		sessions:  &memSessions{},
		notifier:  &recordingNotifier{},
	}
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Level: zerolog.Disabled})
	engine := pricing.NewEngine(pricing.Config{
		LiquidCategory:  "Liquids",
		VolumeThreshold: 5,
		VolumePerUnit:   5,
		ParcelFee:       16,
	})

	svc, err := NewService(ServiceParams{
		Carts:            f.cart,
		Snapshot:         &stubSnapshots{snap: snap},
		Promos:           f.promos,
		Referrals:        f.referrals,
		Accounts:         f.accounts,
		Ledger:           f.ledger,
		Sessions:         f.sessions,
		Engine:           engine,
		Notifier:         f.notifier,
		Logger:           logg,
		OperatorID:       testOperatorID,
		OperatorUsername: "shop_manager",
	})
	require.NoError(t, err)

	svc.newOrderID = func() string { return "abc123" }
	svc.clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	f.svc = svc
	return f
}

func (f *checkoutFixture) walkToPayment(t *testing.T, userID int64) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Start(ctx, userID)
	require.NoError(t, err)
	_, err = f.svc.ChooseDelivery(ctx, userID, enums.DeliveryParcelLocker)
	require.NoError(t, err)
	_, err = f.svc.ChoosePayment(ctx, userID, enums.PaymentBlik)
	require.NoError(t, err)
}

func TestStartRequiresNonEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)
	f.cart.quantities = nil

	_, err := f.svc.Start(context.Background(), 55)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestStartDiscardsStaleSession(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.walkToPayment(t, 55)

	session, err := f.svc.Start(ctx, 55)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutStageSelectingDelivery, session.Stage)
	assert.Empty(t, session.Delivery)
	assert.Empty(t, session.Payment)
}

func TestChooseDeliveryWithoutStart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.ChooseDelivery(context.Background(), 55, enums.DeliveryPickup)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestCommitWithoutPaymentChosen(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, 55)
	require.NoError(t, err)
	_, err = f.svc.ChooseDelivery(ctx, 55, enums.DeliveryPickup)
	require.NoError(t, err)

	_, err = f.svc.Commit(ctx, 55, "alice")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestCommitPlacesOrderAndClearsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.walkToPayment(t, 55)

	receipt, err := f.svc.Commit(ctx, 55, "alice")
	require.NoError(t, err)

	// 2x50 + 1x25 = 125 subtotal, parcel shipping 16
	assert.InDelta(t, 141.0, receipt.Breakdown.Total, 1e-9)
	require.Len(t, f.ledger.appended, 1)
	placed := f.ledger.appended[0]
	assert.Equal(t, "abc123", placed.ID)
	assert.Equal(t, []string{"p1", "p1", "p2"}, placed.ItemIDs)
	assert.Equal(t, enums.OrderStatusPlaced, placed.Status)
	assert.Equal(t, "2026-03-01", placed.Date)

	assert.True(t, f.cart.cleared)
	assert.Empty(t, f.sessions.sessions, "session is gone after commit")
	require.NotEmpty(t, f.notifier.sent[testOperatorID])
	assert.Contains(t, f.notifier.sent[testOperatorID][0], "abc123")
	assert.Contains(t, f.notifier.sent[testOperatorID][0], "Berry x2")
}

func TestCommitSendsBuyerReceiptWithOperatorContact(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.walkToPayment(t, 55)

	_, err := f.svc.Commit(ctx, 55, "alice")
	require.NoError(t, err)

	require.Len(t, f.notifier.sent[55], 1)
	receipt := f.notifier.sent[55][0]
	assert.Contains(t, receipt, "abc123")
	assert.Contains(t, receipt, "141.00")
	assert.Contains(t, receipt, "@shop_manager")
}

func TestCommitConsumesPromoExactlyOnce(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.cart.promoCode = "SAVE10"
	f.promos.codes["SAVE10"] = &models.PromoCode{Code: "SAVE10", Percent: 10, UsesLeft: 1}
	f.walkToPayment(t, 55)

	receipt, err := f.svc.Commit(ctx, 55, "alice")
	require.NoError(t, err)

	// 125 - 12.5 promo + 16 shipping
	assert.InDelta(t, 128.5, receipt.Breakdown.Total, 1e-9)
	assert.Equal(t, 1, f.promos.consumes)
	assert.Equal(t, 0, f.promos.codes["SAVE10"].UsesLeft)
}

func TestPreviewNeverConsumesPromo(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.cart.promoCode = "SAVE10"
	f.promos.codes["SAVE10"] = &models.PromoCode{Code: "SAVE10", Percent: 10, UsesLeft: 1}
	f.walkToPayment(t, 55)

	for i := 0; i < 3; i++ {
		breakdown, err := f.svc.Preview(ctx, 55)
		require.NoError(t, err)
		assert.InDelta(t, 128.5, breakdown.Total, 1e-9)
	}
	assert.Equal(t, 0, f.promos.consumes)
	assert.Equal(t, 1, f.promos.codes["SAVE10"].UsesLeft)
}

func TestCommitAbortsWhenPromoRaceLost(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.cart.promoCode = "SAVE10"
	f.promos.codes["SAVE10"] = &models.PromoCode{Code: "SAVE10", Percent: 10, UsesLeft: 1}
	f.walkToPayment(t, 55)

	// another commit grabs the last use between the quote and the consume
	f.promos.consumeRace = func() { f.promos.codes["SAVE10"].UsesLeft = 0 }

	_, err := f.svc.Commit(ctx, 55, "alice")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Empty(t, f.ledger.appended, "no order row on a lost promo race")
	assert.False(t, f.cart.cleared, "cart stays intact for a retry")
}

func TestCommitKeepsCartWhenAppendFails(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.ledger.failErr = errors.New("sheet unavailable")
	f.walkToPayment(t, 55)

	_, err := f.svc.Commit(ctx, 55, "alice")
	require.Error(t, err)
	assert.False(t, f.cart.cleared, "cart must survive a failed persistence")
	assert.NotEmpty(t, f.sessions.sessions, "session survives for a retry")
}

func TestCommitRecordsReferralWithZeroCommission(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.referrals.referrers[55] = 10
	f.accounts.accounts[10] = &models.UserAccount{ID: 10, IsPartner: true, CommissionPercent: 12}
	f.walkToPayment(t, 55)

	_, err := f.svc.Commit(ctx, 55, "alice")
	require.NoError(t, err)

	require.Len(t, f.referrals.recorded, 1)
	recorded := f.referrals.recorded[0]
	assert.Equal(t, "abc123", recorded.OrderID)
	assert.Equal(t, int64(10), recorded.PartnerID)
	assert.InDelta(t, 141.0, recorded.Amount, 1e-9)
	assert.Zero(t, recorded.Commission, "commission is credited at confirmation, not placement")
	assert.Contains(t, recorded.Items, "Berry x2")
	require.NotEmpty(t, f.notifier.sent[10], "referrer hears about the order")
}

func TestCommitSkipsReferralForDemotedPartner(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.referrals.referrers[55] = 10
	f.accounts.accounts[10] = &models.UserAccount{ID: 10, IsPartner: false}
	f.walkToPayment(t, 55)

	_, err := f.svc.Commit(ctx, 55, "alice")
	require.NoError(t, err)
	assert.Empty(t, f.referrals.recorded)
}

func TestCommitClearFailureDoesNotFailTheOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.cart.clearErr = errors.New("db gone")
	f.walkToPayment(t, 55)

	receipt, err := f.svc.Commit(ctx, 55, "alice")
	require.NoError(t, err, "the order is already persisted")
	assert.Equal(t, "abc123", receipt.Order.ID)
	require.Len(t, f.ledger.appended, 1)
}

func TestCancelDropsSessionKeepsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.walkToPayment(t, 55)

	require.NoError(t, f.svc.Cancel(ctx, 55))
	assert.Empty(t, f.sessions.sessions)
	assert.NotEmpty(t, f.cart.quantities)
}
