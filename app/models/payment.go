package models

import "time"

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusFailed = "failed"
)

// Payment is an append-only audit row per processor invoice. Rows are never
// updated after insert; redelivered invoice events are absorbed by the unique
// (provider, provider_invoice_id) key.
type Payment struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:ux_payments_provider_invoice,unique,priority:1" json:"provider"`
	ProviderInvoiceID      string     `gorm:"type:varchar(191);not null;index:ux_payments_provider_invoice,unique,priority:2" json:"provider_invoice_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);default:'';index" json:"provider_subscription_id"`
	AmountCents            int64      `gorm:"not null" json:"amount_cents"`
	Currency               string     `gorm:"type:varchar(8);not null;default:'eur'" json:"currency"`
	Status                 string     `gorm:"type:varchar(20);not null" json:"status"`
	SettledAt              *time.Time `gorm:"type:timestamp;default:null" json:"settled_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}
