package models

import "time"

// ReferredOrder records that an order was placed by a referred buyer.
// Commission stays zero until the operator confirms the order, at which
// point it is computed from the partner's percent at confirmation time.
type ReferredOrder struct {
	OrderID    string    `gorm:"column:order_id;type:text;primaryKey"`
	PartnerID  int64     `gorm:"column:partner_id;not null;index"`
	BuyerID    int64     `gorm:"column:buyer_id;not null"`
	Amount     float64   `gorm:"column:amount;not null"`
	Commission float64   `gorm:"column:commission;not null;default:0"`
	Items      string    `gorm:"column:items;type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (ReferredOrder) TableName() string {
	return "referred_orders"
}
