package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/smolentsev/shopbot/internal/catalog"
	"github.com/smolentsev/shopbot/pkg/db/models"
	pkgerrors "github.com/smolentsev/shopbot/pkg/errors"
)

type snapshotProvider interface {
	Snapshot() *catalog.Snapshot
}

type promoFinder interface {
	FindActive(ctx context.Context, code string) (*models.PromoCode, error)
}

// Service exposes cart operations.
type Service interface {
	AddOne(ctx context.Context, userID int64, productID string) error
	Increase(ctx context.Context, userID int64, productID string) error
	Decrease(ctx context.Context, userID int64, productID string) error
	Remove(ctx context.Context, userID int64, productID string) error
	Clear(ctx context.Context, userID int64) error
	AttachPromo(ctx context.Context, userID int64, code string) error
	Quantities(ctx context.Context, userID int64) (map[string]int, error)
	PromoCode(ctx context.Context, userID int64) (string, error)
}

type service struct {
	repo     *Repository
	snapshot snapshotProvider
	promos   promoFinder
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, snapshot snapshotProvider, promos promoFinder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("catalog snapshot provider required")
	}
	if promos == nil {
		return nil, fmt.Errorf("promo finder required")
	}
	return &service{repo: repo, snapshot: snapshot, promos: promos}, nil
}

// AddOne puts one more unit in the cart, capped by the catalog stock of the
// current snapshot.
func (s *service) AddOne(ctx context.Context, userID int64, productID string) error {
	item, ok := s.snapshot.Snapshot().Item(productID)
	if !ok || !item.InStock() {
		return pkgerrors.New(pkgerrors.CodeConflict, "this product is sold out")
	}

	written, err := s.repo.AddOne(ctx, userID, productID, item.Quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adding to cart")
	}
	if !written {
		return pkgerrors.New(pkgerrors.CodeConflict, "no more stock for this product")
	}
	return nil
}

// Increase is AddOne under its cart-view name.
func (s *service) Increase(ctx context.Context, userID int64, productID string) error {
	return s.AddOne(ctx, userID, productID)
}

func (s *service) Decrease(ctx context.Context, userID int64, productID string) error {
	if err := s.repo.Decrease(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decreasing cart line")
	}
	return nil
}

func (s *service) Remove(ctx context.Context, userID int64, productID string) error {
	if err := s.repo.Remove(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "removing cart line")
	}
	return nil
}

func (s *service) Clear(ctx context.Context, userID int64) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing cart")
	}
	return nil
}

// AttachPromo validates the code is active before stamping it on the cart.
func (s *service) AttachPromo(ctx context.Context, userID int64, code string) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}

	promo, err := s.promos.FindActive(ctx, normalized)
	if err != nil {
		return err
	}
	if promo == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "this promo code is not valid")
	}

	if err := s.repo.AttachPromo(ctx, userID, normalized); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attaching promo code")
	}
	return nil
}

func (s *service) Quantities(ctx context.Context, userID int64) (map[string]int, error) {
	quantities, err := s.repo.Quantities(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reading cart")
	}
	return quantities, nil
}

func (s *service) PromoCode(ctx context.Context, userID int64) (string, error) {
	code, err := s.repo.PromoCode(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reading cart promo")
	}
	return code, nil
}
