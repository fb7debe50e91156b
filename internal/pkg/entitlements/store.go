package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/scribeforge/scribeforge/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficient is returned when a guarded decrement finds less
	// quota or credit than the requested cost.
	ErrInsufficient = errors.New("entitlements: insufficient quota or credits")
)

// Transition is a full entitlement state change applied as a single UPDATE.
// Billing events use it so multi-field updates can never be half-applied.
type Transition struct {
	Tier               Tier
	Status             string
	RemainingQuota     *int64
	ResetQuota         bool // write RemainingQuota even when nil (unlimited)
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
	CanceledAt         *time.Time
}

// Store owns all reads and writes of entitlement rows. Quota and credit
// changes are guarded SQL decrements, never read-modify-write of a cached
// copy, so concurrent consumption and billing grants cannot lose updates.
type Store interface {
	GetOrCreate(ctx context.Context, userID uint) (*models.Entitlement, error)
	Get(ctx context.Context, userID uint) (*models.Entitlement, error)
	ConsumeQuota(ctx context.Context, userID uint, cost int64) error
	ConsumeCredits(ctx context.Context, userID uint, cost int64) error
	AddCredits(ctx context.Context, userID uint, credits int64) error
	Apply(ctx context.Context, userID uint, t Transition) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates an entitlement store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetOrCreate(ctx context.Context, userID uint) (*models.Entitlement, error) {
	var e models.Entitlement
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error
	if err == nil {
		return &e, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	spec := Catalog[TierFree]
	now := time.Now()
	end := now.AddDate(0, 1, 0)
	e = models.Entitlement{
		UserID:             userID,
		Tier:               string(TierFree),
		Status:             models.BillingStatusActive,
		RemainingQuota:     cloneQuota(spec.Quota),
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &end,
	}
	// Concurrent first requests may race the insert; converge on the row.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&e).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *gormStore) Get(ctx context.Context, userID uint) (*models.Entitlement, error) {
	var e models.Entitlement
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *gormStore) ConsumeQuota(ctx context.Context, userID uint, cost int64) error {
	res := s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("user_id = ? AND remaining_quota IS NOT NULL AND remaining_quota >= ?", userID, cost).
		Update("remaining_quota", gorm.Expr("remaining_quota - ?", cost))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficient
	}
	return nil
}

func (s *gormStore) ConsumeCredits(ctx context.Context, userID uint, cost int64) error {
	res := s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("user_id = ? AND credit_balance >= ?", userID, cost).
		Update("credit_balance", gorm.Expr("credit_balance - ?", cost))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficient
	}
	return nil
}

func (s *gormStore) AddCredits(ctx context.Context, userID uint, credits int64) error {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("user_id = ?", userID).
		Update("credit_balance", gorm.Expr("credit_balance + ?", credits)).Error
}

func (s *gormStore) Apply(ctx context.Context, userID uint, t Transition) error {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if t.Tier != "" {
		updates["tier"] = string(t.Tier)
	}
	if t.Status != "" {
		updates["status"] = t.Status
	}
	if t.ResetQuota {
		updates["remaining_quota"] = t.RemainingQuota
	}
	if t.CurrentPeriodStart != nil {
		updates["current_period_start"] = t.CurrentPeriodStart
	}
	if t.CurrentPeriodEnd != nil {
		updates["current_period_end"] = t.CurrentPeriodEnd
	}
	if t.CancelAtPeriodEnd != nil {
		updates["cancel_at_period_end"] = *t.CancelAtPeriodEnd
	}
	if t.CanceledAt != nil {
		updates["canceled_at"] = t.CanceledAt
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}

func cloneQuota(q *int64) *int64 {
	if q == nil {
		return nil
	}
	v := *q
	return &v
}
