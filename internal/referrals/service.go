package referrals

import (
	"context"
	"fmt"

	"github.com/smolentsev/shopbot/pkg/db/models"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
)

// PartnerStats summarizes a partner's referral performance.
type PartnerStats struct {
	ReferredUsers  int64
	Orders         int
	OrderAmount    float64
	CommissionPaid float64
}

// Service exposes the referral ledger.
type Service interface {
	Link(ctx context.Context, partnerID, referredID int64) (bool, error)
	ReferrerOf(ctx context.Context, referredID int64) (int64, error)
	RecordOrder(ctx context.Context, order models.ReferredOrder) error
	FindByOrderID(ctx context.Context, orderID string) (*models.ReferredOrder, error)
	SetCommission(ctx context.Context, orderID string, commission float64) error
	PartnerStats(ctx context.Context, partnerID int64) (*PartnerStats, error)
}

type service struct {
	repo *Repository
}

// NewService builds a referrals service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("referrals repository required")
	}
	return &service{repo: repo}, nil
}

// Link attributes referred to partner. Self-referrals are rejected; a user
// already referred by someone else keeps the original attribution.
func (s *service) Link(ctx context.Context, partnerID, referredID int64) (bool, error) {
	if partnerID == referredID {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "you cannot refer yourself")
	}
	created, err := s.repo.Link(ctx, partnerID, referredID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording referral")
	}
	return created, nil
}

func (s *service) ReferrerOf(ctx context.Context, referredID int64) (int64, error) {
	partnerID, err := s.repo.ReferrerOf(ctx, referredID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up referrer")
	}
	return partnerID, nil
}

func (s *service) RecordOrder(ctx context.Context, order models.ReferredOrder) error {
	if err := s.repo.RecordOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording referred order")
	}
	return nil
}

func (s *service) FindByOrderID(ctx context.Context, orderID string) (*models.ReferredOrder, error) {
	order, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading referred order")
	}
	return order, nil
}

func (s *service) SetCommission(ctx context.Context, orderID string, commission float64) error {
	if err := s.repo.SetCommission(ctx, orderID, commission); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing commission")
	}
	return nil
}

func (s *service) PartnerStats(ctx context.Context, partnerID int64) (*PartnerStats, error) {
	referred, err := s.repo.CountReferred(ctx, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting referred users")
	}
	orders, err := s.repo.OrdersByPartner(ctx, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading referred orders")
	}

	stats := &PartnerStats{ReferredUsers: referred, Orders: len(orders)}
	for _, order := range orders {
		stats.OrderAmount += order.Amount
		stats.CommissionPaid += order.Commission
	}
	return stats, nil
}
