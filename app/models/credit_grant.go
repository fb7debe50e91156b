package models

import "time"

// CreditGrant is the idempotency ledger for one-time credit purchases. The
// unique (provider, provider_event_id) key is deliberate: unlike subscription
// upserts, a credit grant re-applied on redelivery would double-credit, so
// the grant itself must remember which event produced it.
type CreditGrant struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_credit_grants_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_credit_grants_provider_event,unique,priority:2" json:"provider_event_id"`
	Credits         int64     `gorm:"not null" json:"credits"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
