package models

import "time"

// Entitlement is the locally-held billing state for one user: the tier they
// are on, the current period window, how much finite quota is left in it and
// how many pay-per-use credits they hold. It is mutated only by the usage
// gate (consumption) and the billing event processor (grants/transitions).
type Entitlement struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Tier               string     `gorm:"type:varchar(50);not null;default:'free';index" json:"tier"`
	Status             string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	RemainingQuota     *int64     `gorm:"default:null" json:"remaining_quota"`
	CreditBalance      int64      `gorm:"not null;default:0" json:"credit_balance"`
	CurrentPeriodStart *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt         *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Unlimited reports whether the entitlement has no finite quota.
func (e *Entitlement) Unlimited() bool {
	return e.RemainingQuota == nil
}

// Entitling reports whether the status permits metered usage at all.
func (e *Entitlement) Entitling() bool {
	switch e.Status {
	case BillingStatusActive, BillingStatusTrialing:
		return true
	default:
		return false
	}
}
