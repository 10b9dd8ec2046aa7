package models

import "time"

// CartLine is one product entry in a user's cart. The (user_id, product_id)
// pair is the primary key, so repeated adds collapse into a quantity bump.
type CartLine struct {
	UserID    int64     `gorm:"column:user_id;primaryKey"`
	ProductID string    `gorm:"column:product_id;type:text;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null;default:1"`
	PromoCode string    `gorm:"column:promo_code;type:text;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (CartLine) TableName() string {
	return "cart_lines"
}
