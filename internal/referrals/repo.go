package referrals

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smolentsev/shopbot/pkg/db/models"
)

// Repository manages referral links and referred-order rows.
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

// Link attributes the referred user to the partner. The unique constraint
// on referred_id plus DO NOTHING makes the first attribution permanent.
// It reports whether this call created the link.
func (r *Repository) Link(ctx context.Context, partnerID, referredID int64) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_id"}},
		DoNothing: true,
	}).Create(&models.ReferralLink{
		PartnerID:  partnerID,
		ReferredID: referredID,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReferrerOf returns the partner id that referred the user, or 0.
func (r *Repository) ReferrerOf(ctx context.Context, referredID int64) (int64, error) {
	var link models.ReferralLink
	err := r.db.WithContext(ctx).Where("referred_id = ?", referredID).First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return link.PartnerID, nil
}

// CountReferred counts users attributed to the partner.
func (r *Repository) CountReferred(ctx context.Context, partnerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReferralLink{}).
		Where("partner_id = ?", partnerID).
		Count(&count).Error
	return count, err
}

// RecordOrder stores the referred-order row created at checkout commit.
func (r *Repository) RecordOrder(ctx context.Context, order models.ReferredOrder) error {
	return r.db.WithContext(ctx).Create(&order).Error
}

// FindByOrderID returns the referred-order row or nil.
func (r *Repository) FindByOrderID(ctx context.Context, orderID string) (*models.ReferredOrder, error) {
	var order models.ReferredOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// SetCommission records the commission computed at confirmation.
func (r *Repository) SetCommission(ctx context.Context, orderID string, commission float64) error {
	return r.db.WithContext(ctx).Model(&models.ReferredOrder{}).
		Where("order_id = ?", orderID).
		UpdateColumn("commission", commission).Error
}

// OrdersByPartner returns the partner's referred orders, newest first.
func (r *Repository) OrdersByPartner(ctx context.Context, partnerID int64) ([]models.ReferredOrder, error) {
	var orders []models.ReferredOrder
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
