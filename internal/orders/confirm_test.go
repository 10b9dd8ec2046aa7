package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smolentsev/shopbot/pkg/db/models"
	"github.com/smolentsev/shopbot/pkg/enums"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
)

type memLedger struct {
	orders []Order
}

func (m *memLedger) Append(_ context.Context, order Order) error {
	m.orders = append(m.orders, order)
	return nil
}

func (m *memLedger) Find(_ context.Context, orderID string) (*Located, error) {
	for i, order := range m.orders {
		if order.ID == orderID {
			return &Located{Order: order, RowNum: i + 2}, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
}

func (m *memLedger) SetStatus(_ context.Context, rowNum int, status enums.OrderStatus) error {
	idx := rowNum - 2
	if idx < 0 || idx >= len(m.orders) {
		return errors.New("row out of range")
	}
	m.orders[idx].Status = status
	return nil
}

func (m *memLedger) ListByBuyer(ctx context.Context, buyerID int64) ([]Order, error) {
	var out []Order
	for _, order := range m.orders {
		if order.BuyerID == buyerID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (m *memLedger) ListAll(context.Context) ([]Order, error) {
	return m.orders, nil
}

type memStock struct {
	adjusts map[string]int
	failFor map[string]error
}

func (m *memStock) AdjustStock(_ context.Context, productID string, delta int) error {
	if err := m.failFor[productID]; err != nil {
		return err
	}
	if m.adjusts == nil {
		m.adjusts = map[string]int{}
	}
	m.adjusts[productID] += delta
	return nil
}

type memReferrals struct {
	byOrder     map[string]*models.ReferredOrder
	commissions map[string]float64
}

func (m *memReferrals) FindByOrderID(_ context.Context, orderID string) (*models.ReferredOrder, error) {
	return m.byOrder[orderID], nil
}

func (m *memReferrals) SetCommission(_ context.Context, orderID string, commission float64) error {
	if m.commissions == nil {
		m.commissions = map[string]float64{}
	}
	m.commissions[orderID] = commission
	return nil
}

type memAccounts struct {
	accounts map[int64]*models.UserAccount
	credits  map[int64]float64
}

func (m *memAccounts) Find(_ context.Context, userID int64) (*models.UserAccount, error) {
	return m.accounts[userID], nil
}

func (m *memAccounts) AdjustBalance(_ context.Context, userID int64, delta float64) error {
	if m.credits == nil {
		m.credits = map[int64]float64{}
	}
	m.credits[userID] += delta
	return nil
}

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

type confirmFixture struct {
	svc       *ConfirmService
	ledger    *memLedger
	stock     *memStock
	referrals *memReferrals
	accounts  *memAccounts
	notifier  *recordingNotifier
}

func newConfirmFixture(t *testing.T) *confirmFixture {
	t.Helper()
	f := &confirmFixture{
		ledger:    &memLedger{},
		stock:     &memStock{failFor: map[string]error{}},
		referrals: &memReferrals{byOrder: map[string]*models.ReferredOrder{}},
		accounts:  &memAccounts{accounts: map[int64]*models.UserAccount{}},
		notifier:  &recordingNotifier{},
	}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Level: zerolog.Disabled})
	svc, err := NewConfirmService(ConfirmParams{
		Ledger:    f.ledger,
		Stock:     f.stock,
		Referrals: f.referrals,
		Accounts:  f.accounts,
		Notifier:  f.notifier,
		Logger:    logg,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func placedOrder(id string, buyerID int64, total float64, itemIDs ...string) Order {
	return Order{
		ID:       id,
		BuyerID:  buyerID,
		ItemIDs:  itemIDs,
		Total:    total,
		Status:   enums.OrderStatusPlaced,
		Delivery: enums.DeliveryPickup,
		Payment:  enums.PaymentCash,
		Date:     "2026-03-01",
	}
}

func TestConfirmDecrementsAggregatedStockAndMarksConfirmed(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, placedOrder("ord001", 55, 125, "a", "a", "a", "b")))

	require.NoError(t, f.svc.Confirm(ctx, "ord001"))

	assert.Equal(t, map[string]int{"a": -3, "b": -1}, f.stock.adjusts,
		"units are aggregated per product, one adjustment each")
	located, err := f.ledger.Find(ctx, "ord001")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, located.Status)
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, placedOrder("ord001", 55, 125, "a", "a")))

	require.NoError(t, f.svc.Confirm(ctx, "ord001"))
	require.NoError(t, f.svc.Confirm(ctx, "ord001"))

	assert.Equal(t, -2, f.stock.adjusts["a"], "re-confirming must not decrement twice")
}

func TestConfirmCreditsCommissionAtCurrentPercent(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, placedOrder("ord001", 55, 200, "a")))
	f.referrals.byOrder["ord001"] = &models.ReferredOrder{OrderID: "ord001", PartnerID: 10, BuyerID: 55, Amount: 200}
	// percent was raised after the order was placed; the credit uses the
	// value in force now
	f.accounts.accounts[10] = &models.UserAccount{ID: 10, IsPartner: true, CommissionPercent: 15}

	require.NoError(t, f.svc.Confirm(ctx, "ord001"))

	assert.InDelta(t, 30.0, f.accounts.credits[10], 1e-9)
	assert.InDelta(t, 30.0, f.referrals.commissions["ord001"], 1e-9)
	require.NotEmpty(t, f.notifier.sent[10], "partner is told about the credit")
}

func TestConfirmSkipsCommissionForDemotedPartner(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, placedOrder("ord001", 55, 200, "a")))
	f.referrals.byOrder["ord001"] = &models.ReferredOrder{OrderID: "ord001", PartnerID: 10, Amount: 200}
	f.accounts.accounts[10] = &models.UserAccount{ID: 10, IsPartner: false, CommissionPercent: 15}

	require.NoError(t, f.svc.Confirm(ctx, "ord001"))

	assert.Empty(t, f.accounts.credits)
	assert.Empty(t, f.referrals.commissions)
}

func TestConfirmPartialStockFailureStillConfirms(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, placedOrder("ord001", 55, 125, "a", "bad", "bad")))
	f.stock.failFor["bad"] = errors.New("sheet row missing")

	err := f.svc.Confirm(ctx, "ord001")
	require.Error(t, err, "the failure is reported verbatim")
	assert.Contains(t, err.Error(), "bad")

	// best effort: the healthy decrement and the status write still happened
	assert.Equal(t, -1, f.stock.adjusts["a"])
	located, findErr := f.ledger.Find(ctx, "ord001")
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusConfirmed, located.Status)
}

func TestRejectCancelsWithoutTouchingStock(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, placedOrder("ord001", 55, 125, "a", "a")))
	f.referrals.byOrder["ord001"] = &models.ReferredOrder{OrderID: "ord001", PartnerID: 10, Amount: 125}

	require.NoError(t, f.svc.Reject(ctx, "ord001"))

	assert.Empty(t, f.stock.adjusts)
	located, err := f.ledger.Find(ctx, "ord001")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, located.Status)
	require.NotEmpty(t, f.notifier.sent[10], "partner is told no commission will be paid")

	// rejecting again is a no-op
	require.NoError(t, f.svc.Reject(ctx, "ord001"))
}

func TestRejectConfirmedOrderIsStateConflict(t *testing.T) {
	f := newConfirmFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ledger.Append(ctx, placedOrder("ord001", 55, 125, "a")))
	require.NoError(t, f.svc.Confirm(ctx, "ord001"))

	err := f.svc.Reject(ctx, "ord001")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestConfirmUnknownOrder(t *testing.T) {
	f := newConfirmFixture(t)

	err := f.svc.Confirm(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
