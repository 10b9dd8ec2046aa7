package models

import "time"

// PromoCode is a percent-off coupon with a bounded number of redemptions.
// UsesLeft is decremented atomically at checkout commit.
type PromoCode struct {
	Code      string    `gorm:"column:code;type:text;primaryKey"`
	Percent   float64   `gorm:"column:percent;not null"`
	UsesLeft  int       `gorm:"column:uses_left;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (PromoCode) TableName() string {
	return "promo_codes"
}
