package models

import "time"

// ReferralLink binds a referred user to the partner who brought them in.
// ReferredID is unique, so only the first attribution ever sticks.
type ReferralLink struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PartnerID  int64     `gorm:"column:partner_id;not null;index"`
	ReferredID int64     `gorm:"column:referred_id;not null;uniqueIndex:uq_referral_links_referred_id"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default pluralization.
func (ReferralLink) TableName() string {
	return "referral_links"
}
