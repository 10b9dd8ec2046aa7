package users

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smolentsev/shopbot/pkg/db/models"
)

// Repository manages user account rows.
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

// Touch upserts the account and refreshes username and last_seen_at.
func (r *Repository) Touch(ctx context.Context, userID int64, username string, seenAt time.Time) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"username":     username,
			"last_seen_at": seenAt,
		}),
	}).Create(&models.UserAccount{
		ID:         userID,
		Username:   username,
		LastSeenAt: &seenAt,
	}).Error
}

// Find returns the account or nil when unknown.
func (r *Repository) Find(ctx context.Context, userID int64) (*models.UserAccount, error) {
	var account models.UserAccount
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// SetPartner flips the partner flag and commission percent together.
func (r *Repository) SetPartner(ctx context.Context, userID int64, isPartner bool, percent float64) error {
	return r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"is_partner":         isPartner,
			"commission_percent": percent,
		}).Error
}

// SetCommissionPercent updates only the percent.
func (r *Repository) SetCommissionPercent(ctx context.Context, userID int64, percent float64) error {
	return r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("id = ?", userID).
		UpdateColumn("commission_percent", percent).Error
}

// AdjustBalance adds delta to the balance in a single statement, so
// concurrent credits never lose each other.
func (r *Repository) AdjustBalance(ctx context.Context, userID int64, delta float64) error {
	return r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", delta)).Error
}

// SetAdmin flips the admin flag.
func (r *Repository) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	return r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("id = ?", userID).
		UpdateColumn("is_admin", isAdmin).Error
}

// List returns accounts ordered by id, paged.
func (r *Repository) List(ctx context.Context, offset, limit int) ([]models.UserAccount, error) {
	var accounts []models.UserAccount
	err := r.db.WithContext(ctx).
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListPartners returns every account with the partner flag set.
func (r *Repository) ListPartners(ctx context.Context) ([]models.UserAccount, error) {
	var accounts []models.UserAccount
	err := r.db.WithContext(ctx).
		Where("is_partner = ?", true).
		Order("id").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListIDs returns every known user id, for broadcast fan-out.
func (r *Repository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the total number of accounts.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAccount{}).Count(&count).Error
	return count, err
}

// CountSeenSince counts accounts last seen at or after the cutoff.
func (r *Repository) CountSeenSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("last_seen_at >= ?", cutoff).
		Count(&count).Error
	return count, err
}

// CountNewSince counts accounts created at or after the cutoff.
func (r *Repository) CountNewSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("created_at >= ?", cutoff).
		Count(&count).Error
	return count, err
}
