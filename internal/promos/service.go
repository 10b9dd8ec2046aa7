package promos

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/smolentsev/shopbot/pkg/db/models"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
)

// CreateInput is the admin payload for creating or replacing a code.
type CreateInput struct {
	Code    string  `validate:"required,min=2,max=32"`
	Percent float64 `validate:"gte=0,lte=100"`
	Uses    int     `validate:"gte=0"`
}

// Service exposes promo code operations.
type Service interface {
	FindActive(ctx context.Context, code string) (*models.PromoCode, error)
	Consume(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, input CreateInput) (*models.PromoCode, error)
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]models.PromoCode, error)
}

type service struct {
	repo     *Repository
	validate *validator.Validate
}

// NewService builds a promo service.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	return &service{
		repo:     repo,
		validate: validator.New(),
	}, nil
}

func (s *service) FindActive(ctx context.Context, code string) (*models.PromoCode, error) {
	promo, err := s.repo.FindActive(ctx, normalize(code))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "looking up promo code")
	}
	return promo, nil
}

func (s *service) Consume(ctx context.Context, code string) (bool, error) {
	consumed, err := s.repo.Consume(ctx, normalize(code))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consuming promo code")
	}
	return consumed, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.PromoCode, error) {
	input.Code = normalize(input.Code)
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid promo code input")
	}

	promo := models.PromoCode{
		Code:     input.Code,
		Percent:  input.Percent,
		UsesLeft: input.Uses,
	}
	if err := s.repo.Upsert(ctx, promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving promo code")
	}
	return &promo, nil
}

func (s *service) Delete(ctx context.Context, code string) error {
	if err := s.repo.Delete(ctx, normalize(code)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting promo code")
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]models.PromoCode, error) {
	promos, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing promo codes")
	}
	return promos, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
