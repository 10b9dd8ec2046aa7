package checkout

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smolentsev/shopbot/internal/catalog"
	"github.com/smolentsev/shopbot/internal/notify"
	"github.com/smolentsev/shopbot/internal/orders"
	"github.com/smolentsev/shopbot/internal/pricing"
	"github.com/smolentsev/shopbot/pkg/db/models"
	"github.com/smolentsev/shopbot/pkg/enums"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
	"github.com/smolentsev/shopbot/pkg/metrics"
)

type cartReader interface {
	Quantities(ctx context.Context, userID int64) (map[string]int, error)
	PromoCode(ctx context.Context, userID int64) (string, error)
	Clear(ctx context.Context, userID int64) error
}

type snapshotProvider interface {
	Snapshot() *catalog.Snapshot
}

type promoStore interface {
	FindActive(ctx context.Context, code string) (*models.PromoCode, error)
	Consume(ctx context.Context, code string) (bool, error)
}

type referralRecorder interface {
	ReferrerOf(ctx context.Context, referredID int64) (int64, error)
	RecordOrder(ctx context.Context, order models.ReferredOrder) error
}

type accountFinder interface {
	Find(ctx context.Context, userID int64) (*models.UserAccount, error)
}

type orderAppender interface {
	Append(ctx context.Context, order orders.Order) error
}

// Receipt is what a committed checkout hands back to the caller.
type Receipt struct {
	Order     orders.Order
	Breakdown pricing.Breakdown
}

// Service drives the checkout wizard from entry to the committed order.
type Service struct {
	carts      cartReader
	snapshot   snapshotProvider
	promos     promoStore
	referrals  referralRecorder
	accounts   accountFinder
	ledger     orderAppender
	sessions   SessionStore
	engine     *pricing.Engine
	notifier   notify.Notifier
	logg       *logger.Logger
	metrics    *metrics.OrderMetrics
	operatorID int64
	operatorAt string
	clock      func() time.Time
	newOrderID func() string
}

// ServiceParams configure the checkout service.
type ServiceParams struct {
	Carts      cartReader
	Snapshot   snapshotProvider
	Promos     promoStore
	Referrals  referralRecorder
	Accounts   accountFinder
	Ledger     orderAppender
	Sessions   SessionStore
	Engine     *pricing.Engine
	Notifier   notify.Notifier
	Logger     *logger.Logger
	Metrics    *metrics.OrderMetrics
	OperatorID int64
	// OperatorUsername is shown to the buyer as the contact settling the
	// order.
	OperatorUsername string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if params.Snapshot == nil {
		return nil, fmt.Errorf("catalog snapshot provider required")
	}
	if params.Promos == nil {
		return nil, fmt.Errorf("promo store required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("referral recorder required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account finder required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		carts:      params.Carts,
		snapshot:   params.Snapshot,
		promos:     params.Promos,
		referrals:  params.Referrals,
		accounts:   params.Accounts,
		ledger:     params.Ledger,
		sessions:   params.Sessions,
		engine:     params.Engine,
		notifier:   params.Notifier,
		logg:       params.Logger,
		metrics:    params.Metrics,
		operatorID: params.OperatorID,
		operatorAt: params.OperatorUsername,
		clock:      time.Now,
		newOrderID: newOrderID,
	}, nil
}

// Start enters checkout. Any leftover session is discarded so stale
// delivery or payment choices never carry over.
func (s *Service) Start(ctx context.Context, userID int64) (*Session, error) {
	quantities, err := s.carts.Quantities(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(quantities) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "your cart is empty")
	}

	session := Session{Stage: enums.CheckoutStageSelectingDelivery}
	if err := s.sessions.Save(ctx, userID, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ChooseDelivery records the delivery method and advances to payment.
func (s *Service) ChooseDelivery(ctx context.Context, userID int64, method enums.DeliveryMethod) (*Session, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery method")
	}
	session, err := s.requireStage(ctx, userID, enums.CheckoutStageSelectingDelivery)
	if err != nil {
		return nil, err
	}

	session.Delivery = method
	session.Stage = enums.CheckoutStageSelectingPayment
	if err := s.sessions.Save(ctx, userID, *session); err != nil {
		return nil, err
	}
	return session, nil
}

// ChoosePayment records the payment method. The order is not placed until
// Commit.
func (s *Service) ChoosePayment(ctx context.Context, userID int64, method enums.PaymentMethod) (*Session, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	session, err := s.requireStage(ctx, userID, enums.CheckoutStageSelectingPayment)
	if err != nil {
		return nil, err
	}

	session.Payment = method
	if err := s.sessions.Save(ctx, userID, *session); err != nil {
		return nil, err
	}
	return session, nil
}

// Preview prices the cart against the current session without placing the
// order. It never consumes the promo code.
func (s *Service) Preview(ctx context.Context, userID int64) (*pricing.Breakdown, error) {
	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	delivery := enums.DeliveryPickup
	if session != nil && session.Delivery.IsValid() {
		delivery = session.Delivery
	}

	quantities, promo, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	breakdown := s.engine.Quote(quantities, s.snapshot.Snapshot(), promo, delivery)
	return &breakdown, nil
}

// Commit places the order. The sheet append is the persistence point: the
// cart is cleared only after it succeeds, so a failed commit leaves the
// cart intact and the user can retry.
func (s *Service) Commit(ctx context.Context, userID int64, username string) (*Receipt, error) {
	ctx = s.logg.WithUserID(ctx, userID)

	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout has not been started")
	}
	if !session.Delivery.IsValid() || !session.Payment.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "choose delivery and payment first")
	}

	quantities, promo, err := s.loadCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(quantities) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "your cart is empty")
	}

	snap := s.snapshot.Snapshot()
	breakdown := s.engine.Quote(quantities, snap, promo, session.Delivery)

	// Consume exactly here, once per commit. Losing the race on the last
	// use means the quoted total no longer holds, so the commit aborts
	// with the cart intact.
	if promo != nil && promo.UsesLeft > 0 {
		consumed, err := s.promos.Consume(ctx, promo.Code)
		if err != nil {
			return nil, err
		}
		if !consumed {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "this promo code has just run out")
		}
	}

	order := orders.Order{
		ID:       s.newOrderID(),
		BuyerID:  userID,
		Username: username,
		ItemIDs:  pricing.ItemUnits(quantities),
		Total:    breakdown.Total,
		Status:   enums.OrderStatusPlaced,
		Delivery: session.Delivery,
		Payment:  session.Payment,
		Date:     orders.DateString(s.clock().UTC()),
	}
	if err := s.ledger.Append(ctx, order); err != nil {
		return nil, err
	}
	s.metrics.IncPlaced()
	ctx = s.logg.WithOrderID(ctx, order.ID)

	s.recordReferral(ctx, order, snap)

	if err := s.carts.Clear(ctx, userID); err != nil {
		// The order is persisted; leftover cart lines are an annoyance,
		// not a correctness problem.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "clearing cart after commit failed")
	}
	if err := s.sessions.Delete(ctx, userID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "deleting checkout session failed")
	}

	notify.Best(ctx, s.logg, s.notifier, s.operatorID, operatorSummary(order, snap))
	notify.Best(ctx, s.logg, s.notifier, order.BuyerID, s.buyerReceipt(order))
	s.logg.Info(ctx, "order placed")
	return &Receipt{Order: order, Breakdown: breakdown}, nil
}

// buyerReceipt is the confirmation text the buyer sees, naming the
// operator who settles the order.
func (s *Service) buyerReceipt(order orders.Order) string {
	text := fmt.Sprintf("Order %s placed, total %.2f. The operator will confirm it shortly.",
		order.ID, order.Total)
	if s.operatorAt != "" {
		text += fmt.Sprintf(" Questions: @%s", s.operatorAt)
	}
	return text
}

// Cancel abandons the wizard. The cart stays as it was.
func (s *Service) Cancel(ctx context.Context, userID int64) error {
	return s.sessions.Delete(ctx, userID)
}

func (s *Service) requireStage(ctx context.Context, userID int64, stage enums.CheckoutStage) (*Session, error) {
	session, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout has not been started")
	}
	if session.Stage != stage {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "that step is not available right now")
	}
	return session, nil
}

func (s *Service) loadCart(ctx context.Context, userID int64) (map[string]int, *models.PromoCode, error) {
	quantities, err := s.carts.Quantities(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	code, err := s.carts.PromoCode(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	var promo *models.PromoCode
	if code != "" {
		promo, err = s.promos.FindActive(ctx, code)
		if err != nil {
			return nil, nil, err
		}
	}
	return quantities, promo, nil
}

// recordReferral writes the attribution row when the buyer was referred by
// a user who is a partner right now. Commission stays zero until the
// operator confirms the order. Failures are logged, never fatal: the order
// already exists.
func (s *Service) recordReferral(ctx context.Context, order orders.Order, snap *catalog.Snapshot) {
	partnerID, err := s.referrals.ReferrerOf(ctx, order.BuyerID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "looking up referrer failed")
		return
	}
	if partnerID == 0 {
		return
	}

	partner, err := s.accounts.Find(ctx, partnerID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "loading referrer account failed")
		return
	}
	if partner == nil || !partner.IsPartner {
		return
	}

	referred := models.ReferredOrder{
		OrderID:   order.ID,
		PartnerID: partnerID,
		BuyerID:   order.BuyerID,
		Amount:    order.Total,
		Items:     itemSummary(order, snap),
	}
	if err := s.referrals.RecordOrder(ctx, referred); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "recording referred order failed")
		return
	}

	notify.Best(ctx, s.logg, s.notifier, partnerID,
		fmt.Sprintf("A user you referred placed order %s for %.2f.", order.ID, order.Total))
}

func operatorSummary(order orders.Order, snap *catalog.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New order %s\n", order.ID)
	fmt.Fprintf(&b, "Buyer: %s (%d)\n", order.Username, order.BuyerID)
	fmt.Fprintf(&b, "Items: %s\n", itemSummary(order, snap))
	fmt.Fprintf(&b, "Total: %.2f\n", order.Total)
	fmt.Fprintf(&b, "Delivery: %s, payment: %s", order.Delivery, order.Payment)
	return b.String()
}

// itemSummary renders "Name xN" lines sorted by name, falling back to the
// raw product id when the snapshot no longer knows it.
func itemSummary(order orders.Order, snap *catalog.Snapshot) string {
	var parts []string
	for productID, count := range order.UnitCounts() {
		name := productID
		if item, ok := snap.Item(productID); ok {
			name = item.Name
		}
		parts = append(parts, fmt.Sprintf("%s x%d", name, count))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// newOrderID returns a short id with enough randomness that collisions are
// not a practical concern at this order volume.
func newOrderID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:6]
}
