package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/smolentsev/shopbot/internal/notify"
	"github.com/smolentsev/shopbot/pkg/db/models"
	"github.com/smolentsev/shopbot/pkg/enums"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
	"github.com/smolentsev/shopbot/pkg/logger"
	"github.com/smolentsev/shopbot/pkg/metrics"
)

type stockAdjuster interface {
	AdjustStock(ctx context.Context, productID string, delta int) error
}

type referralLedger interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.ReferredOrder, error)
	SetCommission(ctx context.Context, orderID string, commission float64) error
}

type accountStore interface {
	Find(ctx context.Context, userID int64) (*models.UserAccount, error)
	AdjustBalance(ctx context.Context, userID int64, delta float64) error
}

type taskRunner interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// ConfirmService drives the operator-triggered order transitions. The
// workflow is deliberately best effort: stock, status, and commission are
// three separate writes against two systems, and a partial failure is
// reported for manual reconciliation rather than rolled back.
type ConfirmService struct {
	ledger    Ledger
	stock     stockAdjuster
	referrals referralLedger
	accounts  accountStore
	notifier  notify.Notifier
	runner    taskRunner
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
}

// ConfirmParams configure the confirmation service.
type ConfirmParams struct {
	Ledger    Ledger
	Stock     stockAdjuster
	Referrals referralLedger
	Accounts  accountStore
	Notifier  notify.Notifier
	Runner    taskRunner
	Logger    *logger.Logger
	Metrics   *metrics.OrderMetrics
}

// NewConfirmService builds the confirmation workflow.
func NewConfirmService(params ConfirmParams) (*ConfirmService, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock adjuster required")
	}
	if params.Referrals == nil {
		return nil, fmt.Errorf("referral ledger required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ConfirmService{
		ledger:    params.Ledger,
		stock:     params.Stock,
		referrals: params.Referrals,
		accounts:  params.Accounts,
		notifier:  params.Notifier,
		runner:    params.Runner,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// ConfirmAsync runs Confirm off the interactive path and reports the
// outcome to the operator. Requires a task runner.
func (s *ConfirmService) ConfirmAsync(ctx context.Context, orderID string, operatorID int64) {
	if s.runner == nil {
		s.reportOutcome(ctx, operatorID, orderID, s.Confirm(ctx, orderID))
		return
	}
	s.runner.Submit(ctx, "order-confirm", func(taskCtx context.Context) error {
		err := s.Confirm(taskCtx, orderID)
		s.reportOutcome(taskCtx, operatorID, orderID, err)
		return err
	})
}

// Confirm transitions the order to Confirmed, decrements catalog stock per
// product, and credits referral commission. Re-confirming an already
// Confirmed order is a no-op.
func (s *ConfirmService) Confirm(ctx context.Context, orderID string) error {
	ctx = s.logg.WithOrderID(ctx, orderID)

	located, err := s.ledger.Find(ctx, orderID)
	if err != nil {
		return err
	}
	if located.Status == enums.OrderStatusConfirmed {
		s.logg.Info(ctx, "order already confirmed, skipping")
		return nil
	}

	var errs error

	// Aggregate units per product so each product costs one sheet round trip.
	counts := located.UnitCounts()
	for _, productID := range sortedKeys(counts) {
		if err := s.stock.AdjustStock(ctx, productID, -counts[productID]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stock %s: %w", productID, err))
		}
	}

	if err := s.ledger.SetStatus(ctx, located.RowNum, enums.OrderStatusConfirmed); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("status: %w", err))
		// Without the status write the order stays Placed; commission must
		// wait for a retry, otherwise a re-confirm would double-credit.
		return errs
	}
	s.metrics.IncConfirmed()

	if err := s.creditCommission(ctx, located.Order); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("commission: %w", err))
	}

	s.logg.Info(ctx, "order confirmed")
	return errs
}

// Reject marks the order Cancelled. No stock is touched; the partner, if
// any, is told no commission will be paid.
func (s *ConfirmService) Reject(ctx context.Context, orderID string) error {
	ctx = s.logg.WithOrderID(ctx, orderID)

	located, err := s.ledger.Find(ctx, orderID)
	if err != nil {
		return err
	}
	if located.Status == enums.OrderStatusCancelled {
		return nil
	}
	if located.Status == enums.OrderStatusConfirmed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already confirmed")
	}

	if err := s.ledger.SetStatus(ctx, located.RowNum, enums.OrderStatusCancelled); err != nil {
		return err
	}
	s.metrics.IncCancelled()

	referred, err := s.referrals.FindByOrderID(ctx, orderID)
	if err == nil && referred != nil {
		notify.Best(ctx, s.logg, s.notifier, referred.PartnerID,
			fmt.Sprintf("Order %s was cancelled, no commission will be paid.", orderID))
	}

	s.logg.Info(ctx, "order rejected")
	return nil
}

// creditCommission pays the partner using their percent at confirmation
// time, not the percent at order time.
func (s *ConfirmService) creditCommission(ctx context.Context, order Order) error {
	referred, err := s.referrals.FindByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	if referred == nil {
		return nil
	}

	partner, err := s.accounts.Find(ctx, referred.PartnerID)
	if err != nil {
		return err
	}
	if partner == nil || !partner.IsPartner {
		s.logg.Warn(ctx, "referred order has no active partner, skipping commission")
		return nil
	}

	commission, _ := decimal.NewFromFloat(referred.Amount).
		Mul(decimal.NewFromFloat(partner.CommissionPercent)).
		Div(decimal.NewFromInt(100)).
		Float64()

	if err := s.accounts.AdjustBalance(ctx, partner.ID, commission); err != nil {
		return err
	}
	if err := s.referrals.SetCommission(ctx, order.ID, commission); err != nil {
		return err
	}

	notify.Best(ctx, s.logg, s.notifier, partner.ID,
		fmt.Sprintf("Commission %.2f credited for order %s.", commission, order.ID))
	return nil
}

func (s *ConfirmService) reportOutcome(ctx context.Context, operatorID int64, orderID string, err error) {
	if err != nil {
		notify.Best(ctx, s.logg, s.notifier, operatorID,
			fmt.Sprintf("Order %s: %v", orderID, err))
		return
	}
	notify.Best(ctx, s.logg, s.notifier, operatorID,
		fmt.Sprintf("Order %s processed.", orderID))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
