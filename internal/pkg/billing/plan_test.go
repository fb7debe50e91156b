package billing

import (
	"testing"

	"github.com/scribeforge/scribeforge/app/models"
	"github.com/scribeforge/scribeforge/internal/pkg/entitlements"
)

func TestMapProcessorStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: models.BillingStatusActive},
		{in: "trialing", want: models.BillingStatusTrialing},
		{in: "past_due", want: models.BillingStatusPastDue},
		{in: "unpaid", want: models.BillingStatusPastDue},
		{in: "canceled", want: models.BillingStatusCanceled},
		{in: "incomplete_expired", want: models.BillingStatusCanceled},
		{in: "something_new", want: models.BillingStatusCanceled},
		{in: "", want: models.BillingStatusCanceled},
	}

	for _, tt := range tests {
		if got := mapProcessorStatus(tt.in); got != tt.want {
			t.Fatalf("mapProcessorStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	entitling := []string{models.BillingStatusActive, models.BillingStatusTrialing, models.BillingStatusPastDue}
	for _, s := range entitling {
		if !isEntitlingStatus(s) {
			t.Fatalf("expected %q to entitle", s)
		}
	}
	if isEntitlingStatus(models.BillingStatusCanceled) {
		t.Fatalf("expected canceled not to entitle")
	}
	if isEntitlingStatus("unknown") {
		t.Fatalf("expected unknown status not to entitle")
	}
}

func TestNormalizeInterval(t *testing.T) {
	if got := normalizeInterval(" Month "); got != models.BillingIntervalMonth {
		t.Fatalf("normalizeInterval = %q, want month", got)
	}
	if got := normalizeInterval("year"); got != models.BillingIntervalYear {
		t.Fatalf("normalizeInterval = %q, want year", got)
	}
	if got := normalizeInterval("weekly"); got != models.BillingIntervalUnknown {
		t.Fatalf("normalizeInterval = %q, want unknown", got)
	}
}

func TestBestTier(t *testing.T) {
	subs := []models.BillingSubscription{
		{Tier: string(entitlements.TierProMonth), Status: models.BillingStatusActive},
		{Tier: string(entitlements.TierTeamYear), Status: models.BillingStatusCanceled},
		{Tier: string(entitlements.TierProYear), Status: models.BillingStatusTrialing},
	}
	if got := bestTier(subs); got != entitlements.TierProYear {
		t.Fatalf("bestTier = %q, want pro_year (canceled team sub must not count)", got)
	}

	if got := bestTier(nil); got != entitlements.TierFree {
		t.Fatalf("bestTier(nil) = %q, want free", got)
	}

	canceledOnly := []models.BillingSubscription{
		{Tier: string(entitlements.TierTeamMonth), Status: models.BillingStatusCanceled},
	}
	if got := bestTier(canceledOnly); got != entitlements.TierFree {
		t.Fatalf("bestTier(canceled only) = %q, want free", got)
	}
}
