package cart

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smolentsev/shopbot/pkg/db/models"
)

// Repository manages persistent cart lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided DB handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx scopes the repository to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// AddOne bumps the line's quantity by one, inserting the line when absent.
// The increment is guarded so the quantity never exceeds maxQty; it reports
// whether a row was actually written. Per-row upsert keeps concurrent taps
// on different products from losing each other's writes.
func (r *Repository) AddOne(ctx context.Context, userID int64, productID string, maxQty int) (bool, error) {
	if maxQty < 1 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		Where:   clause.Where{Exprs: []clause.Expression{gorm.Expr("cart_lines.quantity < ?", maxQty)}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity": gorm.Expr("cart_lines.quantity + 1"),
		}),
	}).Create(&models.CartLine{
		UserID:    userID,
		ProductID: productID,
		Quantity:  1,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Decrease lowers the quantity by one; a line at quantity 1 is deleted
// rather than left at zero.
func (r *Repository) Decrease(ctx context.Context, userID int64, productID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line models.CartLine
		err := tx.Where("user_id = ? AND product_id = ?", userID, productID).First(&line).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if line.Quantity <= 1 {
			return tx.Where("user_id = ? AND product_id = ?", userID, productID).
				Delete(&models.CartLine{}).Error
		}
		return tx.Model(&models.CartLine{}).
			Where("user_id = ? AND product_id = ?", userID, productID).
			UpdateColumn("quantity", gorm.Expr("quantity - 1")).Error
	})
}

// Remove deletes the line regardless of quantity.
func (r *Repository) Remove(ctx context.Context, userID int64, productID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.CartLine{}).Error
}

// Clear drops every line for the user, promo attachment included.
func (r *Repository) Clear(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.CartLine{}).Error
}

// AttachPromo stamps the code on every line of the user's cart.
func (r *Repository) AttachPromo(ctx context.Context, userID int64, code string) error {
	return r.db.WithContext(ctx).Model(&models.CartLine{}).
		Where("user_id = ?", userID).
		UpdateColumn("promo_code", code).Error
}

// Lines returns the user's cart lines.
func (r *Repository) Lines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("product_id").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// Quantities returns the cart as a product→quantity mapping.
func (r *Repository) Quantities(ctx context.Context, userID int64) (map[string]int, error) {
	lines, err := r.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(lines))
	for _, line := range lines {
		out[line.ProductID] = line.Quantity
	}
	return out, nil
}

// PromoCode returns the promo attached to the cart, empty when none.
func (r *Repository) PromoCode(ctx context.Context, userID int64) (string, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND promo_code <> ''", userID).
		First(&line).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return line.PromoCode, nil
}
