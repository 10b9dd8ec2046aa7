package users

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/smolentsev/shopbot/pkg/db/models"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
)

// PartnerInput is the admin payload for promoting a user to partner.
type PartnerInput struct {
	UserID  int64   `validate:"required"`
	Percent float64 `validate:"gte=0,lte=100"`
}

// Service exposes account and partner operations.
type Service interface {
	Touch(ctx context.Context, userID int64, username string) error
	Find(ctx context.Context, userID int64) (*models.UserAccount, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	SetAdmin(ctx context.Context, userID int64, isAdmin bool) error
	MakePartner(ctx context.Context, input PartnerInput) error
	RemovePartner(ctx context.Context, userID int64) error
	SetCommissionPercent(ctx context.Context, userID int64, percent float64) error
	AdjustBalance(ctx context.Context, userID int64, delta float64) error
	List(ctx context.Context, offset, limit int) ([]models.UserAccount, error)
	ListPartners(ctx context.Context) ([]models.UserAccount, error)
}

type service struct {
	repo       *Repository
	operatorID int64
	validate   *validator.Validate
	clock      func() time.Time
}

// NewService builds a users service. operatorID is always treated as admin
// regardless of its row state.
func NewService(repo *Repository, operatorID int64) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &service{
		repo:       repo,
		operatorID: operatorID,
		validate:   validator.New(),
		clock:      time.Now,
	}, nil
}

// Touch records that the user was just seen, creating the account on first
// contact.
func (s *service) Touch(ctx context.Context, userID int64, username string) error {
	if err := s.repo.Touch(ctx, userID, username, s.clock().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording user activity")
	}
	return nil
}

func (s *service) Find(ctx context.Context, userID int64) (*models.UserAccount, error) {
	account, err := s.repo.Find(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user account")
	}
	return account, nil
}

// IsAdmin reports whether the user may use admin commands. The configured
// operator is always an admin.
func (s *service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if userID == s.operatorID {
		return true, nil
	}
	account, err := s.Find(ctx, userID)
	if err != nil {
		return false, err
	}
	return account != nil && account.IsAdmin, nil
}

func (s *service) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	if err := s.requireKnown(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetAdmin(ctx, userID, isAdmin); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating admin flag")
	}
	return nil
}

func (s *service) MakePartner(ctx context.Context, input PartnerInput) error {
	if err := s.validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid partner input")
	}
	if err := s.requireKnown(ctx, input.UserID); err != nil {
		return err
	}
	if err := s.repo.SetPartner(ctx, input.UserID, true, input.Percent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promoting partner")
	}
	return nil
}

// RemovePartner clears the flag and zeroes the percent; the accumulated
// balance stays untouched.
func (s *service) RemovePartner(ctx context.Context, userID int64) error {
	if err := s.requireKnown(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetPartner(ctx, userID, false, 0); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "demoting partner")
	}
	return nil
}

func (s *service) SetCommissionPercent(ctx context.Context, userID int64, percent float64) error {
	if percent < 0 || percent > 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission percent must be between 0 and 100")
	}
	if err := s.requireKnown(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetCommissionPercent(ctx, userID, percent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating commission percent")
	}
	return nil
}

// AdjustBalance applies a manual or commission credit. Positive and
// negative deltas both go through the same guarded single-statement update.
func (s *service) AdjustBalance(ctx context.Context, userID int64, delta float64) error {
	if err := s.requireKnown(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.AdjustBalance(ctx, userID, delta); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjusting balance")
	}
	return nil
}

func (s *service) List(ctx context.Context, offset, limit int) ([]models.UserAccount, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	accounts, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing users")
	}
	return accounts, nil
}

func (s *service) ListPartners(ctx context.Context) ([]models.UserAccount, error) {
	accounts, err := s.repo.ListPartners(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing partners")
	}
	return accounts, nil
}

func (s *service) requireKnown(ctx context.Context, userID int64) error {
	account, err := s.Find(ctx, userID)
	if err != nil {
		return err
	}
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("user %d is not known to the bot", userID))
	}
	return nil
}
