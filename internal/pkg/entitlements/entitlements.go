package entitlements

import "strings"

type Tier string

const (
	TierFree      Tier = "free"
	TierPayg      Tier = "payg"
	TierProMonth  Tier = "pro_month"
	TierProYear   Tier = "pro_year"
	TierTeamMonth Tier = "team_month"
	TierTeamYear  Tier = "team_year"
)

// TierSpec describes one entry of the static tier catalog: the per-period
// quota (nil = unlimited), the billing interval and the feature list shown
// in upgrade prompts. Credit-based tiers have CreditBased set and no quota.
type TierSpec struct {
	Tier        Tier     `json:"tier"`
	Quota       *int64   `json:"quota"`
	CreditBased bool     `json:"credit_based"`
	Interval    string   `json:"interval"`
	Features    []string `json:"features"`
}

func quota(n int64) *int64 { return &n }

// Catalog is the closed tier catalog. It is configuration, not derived data.
var Catalog = map[Tier]TierSpec{
	TierFree: {
		Tier:     TierFree,
		Quota:    quota(2),
		Interval: "month",
		Features: []string{"2 document generations per month", "community support"},
	},
	TierPayg: {
		Tier:        TierPayg,
		CreditBased: true,
		Interval:    "unknown",
		Features:    []string{"pay per generated document", "credits never expire"},
	},
	TierProMonth: {
		Tier:     TierProMonth,
		Quota:    quota(200),
		Interval: "month",
		Features: []string{"200 generations per month", "priority generation queue"},
	},
	TierProYear: {
		Tier:     TierProYear,
		Quota:    quota(200),
		Interval: "year",
		Features: []string{"200 generations per month", "priority generation queue", "2 months free"},
	},
	TierTeamMonth: {
		Tier:     TierTeamMonth,
		Interval: "month",
		Features: []string{"unlimited generations", "shared workspaces"},
	},
	TierTeamYear: {
		Tier:     TierTeamYear,
		Interval: "year",
		Features: []string{"unlimited generations", "shared workspaces", "2 months free"},
	},
}

// CatalogList returns the catalog ordered from free upwards, for upgrade
// prompts and the account entitlement endpoint.
func CatalogList() []TierSpec {
	order := []Tier{TierFree, TierPayg, TierProMonth, TierProYear, TierTeamMonth, TierTeamYear}
	out := make([]TierSpec, 0, len(order))
	for _, t := range order {
		out = append(out, Catalog[t])
	}
	return out
}

// Normalize maps arbitrary tier strings to a catalog tier, defaulting to free.
func Normalize(tier string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(tier)))
	if _, ok := Catalog[t]; ok {
		return t
	}
	return TierFree
}

// Spec returns the catalog entry for a tier string.
func Spec(tier string) TierSpec {
	return Catalog[Normalize(tier)]
}

// Rank orders tiers for best-plan reconciliation when a user holds several
// subscriptions at once.
func Rank(tier Tier) int {
	switch tier {
	case TierTeamYear:
		return 5
	case TierTeamMonth:
		return 4
	case TierProYear:
		return 3
	case TierProMonth:
		return 2
	case TierPayg:
		return 1
	default:
		return 0
	}
}
