package models

import "time"

// UserAccount is the canonical record for anyone who has talked to the bot.
// The primary key is the messenger-assigned numeric user id.
type UserAccount struct {
	ID                int64      `gorm:"column:id;primaryKey"`
	Username          string     `gorm:"column:username;type:text;not null;default:''"`
	IsAdmin           bool       `gorm:"column:is_admin;not null;default:false"`
	IsPartner         bool       `gorm:"column:is_partner;not null;default:false"`
	CommissionPercent float64    `gorm:"column:commission_percent;not null;default:0"`
	Balance           float64    `gorm:"column:balance;not null;default:0"`
	LastSeenAt        *time.Time `gorm:"column:last_seen_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides the default pluralization.
func (UserAccount) TableName() string {
	return "user_accounts"
}
