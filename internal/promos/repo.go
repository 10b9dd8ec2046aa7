package promos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smolentsev/shopbot/pkg/db/models"
)

// Repository manages promo code rows.
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

// FindActive returns the code only while it still has uses left. Exhausted
// rows may still exist but are inert.
func (r *Repository) FindActive(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.WithContext(ctx).
		Where("code = ? AND uses_left > 0", code).
		First(&promo).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

// Consume decrements uses_left by one, atomically and only while positive.
// It reports whether a use was actually taken, so two concurrent commits
// racing for the last use see exactly one winner.
func (r *Repository) Consume(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PromoCode{}).
		Where("code = ? AND uses_left > 0", code).
		UpdateColumn("uses_left", gorm.Expr("uses_left - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Upsert creates the code or replaces its percent and remaining uses.
func (r *Repository) Upsert(ctx context.Context, promo models.PromoCode) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"percent", "uses_left"}),
	}).Create(&promo).Error
}

// Delete removes the code row.
func (r *Repository) Delete(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Where("code = ?", code).
		Delete(&models.PromoCode{}).Error
}

// List returns every promo code, exhausted ones included.
func (r *Repository) List(ctx context.Context) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	err := r.db.WithContext(ctx).Order("code").Find(&promos).Error
	if err != nil {
		return nil, err
	}
	return promos, nil
}
