package billing

import (
	"strings"

	"github.com/scribeforge/scribeforge/app/models"
	"github.com/scribeforge/scribeforge/internal/pkg/entitlements"
)

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return models.BillingIntervalUnknown
	}
}

func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue:
		return true
	default:
		return false
	}
}

// mapProcessorStatus folds the processor's status vocabulary into the local
// closed set. Unknown statuses deny entitlement rather than granting it.
func mapProcessorStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.BillingStatusActive
	case "trialing":
		return models.BillingStatusTrialing
	case "past_due", "unpaid":
		return models.BillingStatusPastDue
	case "canceled", "incomplete_expired":
		return models.BillingStatusCanceled
	default:
		return models.BillingStatusCanceled
	}
}

// bestTier picks the highest-ranked tier among a user's entitling
// subscriptions, defaulting to free.
func bestTier(subs []models.BillingSubscription) entitlements.Tier {
	best := entitlements.TierFree
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		candidate := entitlements.Normalize(sub.Tier)
		if entitlements.Rank(candidate) > entitlements.Rank(best) {
			best = candidate
		}
	}
	return best
}
