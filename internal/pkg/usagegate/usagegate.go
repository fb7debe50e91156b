// Package usagegate decides whether a metered action may proceed for a caller
// and records consumption after the action succeeded. It sits between the
// rate limiter (cheap, in-memory) and the actual work; all of its answers
// come from the entitlement store, never from cached gate results.
package usagegate

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scribeforge/scribeforge/internal/pkg/entitlements"
	"github.com/scribeforge/scribeforge/internal/pkg/env"
)

// Deny reasons surfaced to callers. They carry enough detail for an upgrade
// prompt but no internal identifiers.
const (
	ReasonInactive     = "subscription_inactive"
	ReasonLimitReached = "limit_reached"
	ReasonNoCredits    = "no_credits"
	ReasonUnavailable  = "temporarily_unavailable"
)

// Verdict is the gate's answer to "may this caller consume cost units now".
type Verdict struct {
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Tier      string `json:"tier"`
	Remaining *int64 `json:"remaining,omitempty"`
	Unlimited bool   `json:"unlimited"`
	Override  bool   `json:"override,omitempty"`
}

// Gate evaluates entitlement policy for metered actions.
type Gate struct {
	store entitlements.Store

	// failOpen permits usage when the entitlement store is unreachable.
	// Default is fail closed: better to deny a paying user a rare request
	// than to let usage bypass billing. USAGE_GATE_FAIL_OPEN flips it.
	failOpen bool

	adminOnce sync.Once
	adminIDs  map[uint]struct{}
}

// New creates a usage gate over the given entitlement store.
func New(store entitlements.Store) *Gate {
	return &Gate{
		store:    store,
		failOpen: env.GetEnv("USAGE_GATE_FAIL_OPEN", "false") == "true",
	}
}

// CanConsume applies the gate policy in order: admin override, unlimited
// tier, status check, quota/credit check.
func (g *Gate) CanConsume(ctx context.Context, userID uint, cost int64) (Verdict, error) {
	if g.isAdmin(userID) {
		return Verdict{Allowed: true, Tier: string(entitlements.TierTeamYear), Unlimited: true, Override: true}, nil
	}

	ent, err := g.store.GetOrCreate(ctx, userID)
	if err != nil {
		log.Printf("usage gate: entitlement lookup failed for user %d: %v", userID, err)
		if g.failOpen {
			return Verdict{Allowed: true, Tier: string(entitlements.TierFree)}, nil
		}
		return Verdict{Allowed: false, Reason: ReasonUnavailable, Tier: string(entitlements.TierFree)}, err
	}

	tier := entitlements.Normalize(ent.Tier)
	spec := entitlements.Catalog[tier]

	// Unlimited tiers admit before the status check. Reconciliation drops a
	// lapsed subscription to the free tier, so an unlimited entitlement is
	// by definition a current one.
	if !spec.CreditBased && ent.Unlimited() {
		return Verdict{Allowed: true, Tier: string(tier), Unlimited: true}, nil
	}

	if !ent.Entitling() {
		return Verdict{Allowed: false, Reason: ReasonInactive, Tier: string(tier)}, nil
	}

	// Free-tier periods have no renewal invoice; the window rolls over
	// lazily on first use after expiry.
	if tier == entitlements.TierFree && ent.CurrentPeriodEnd != nil && time.Now().After(*ent.CurrentPeriodEnd) {
		now := time.Now()
		end := now.AddDate(0, 1, 0)
		if err := g.store.Apply(ctx, userID, entitlements.Transition{
			ResetQuota:         true,
			RemainingQuota:     spec.Quota,
			CurrentPeriodStart: &now,
			CurrentPeriodEnd:   &end,
		}); err != nil {
			return Verdict{Allowed: false, Reason: ReasonUnavailable, Tier: string(tier)}, err
		}
		if ent, err = g.store.Get(ctx, userID); err != nil {
			return Verdict{Allowed: false, Reason: ReasonUnavailable, Tier: string(tier)}, err
		}
	}

	if spec.CreditBased {
		remaining := ent.CreditBalance
		if remaining < cost {
			return Verdict{Allowed: false, Reason: ReasonNoCredits, Tier: string(tier), Remaining: &remaining}, nil
		}
		return Verdict{Allowed: true, Tier: string(tier), Remaining: &remaining}, nil
	}

	remaining := *ent.RemainingQuota
	if remaining < cost {
		return Verdict{Allowed: false, Reason: ReasonLimitReached, Tier: string(tier), Remaining: &remaining}, nil
	}
	return Verdict{Allowed: true, Tier: string(tier), Remaining: &remaining}, nil
}

// RecordConsumption decrements quota or credits after the gated action
// succeeded. It re-reads current state instead of trusting an earlier
// verdict: the tier may have changed while the action ran. actionRef is the
// stable identifier of the produced artifact so retries stay at-most-once on
// the caller's side.
func (g *Gate) RecordConsumption(ctx context.Context, userID uint, actionRef string) error {
	if g.isAdmin(userID) {
		return nil
	}

	ent, err := g.store.Get(ctx, userID)
	if err != nil {
		return err
	}

	tier := entitlements.Normalize(ent.Tier)
	spec := entitlements.Catalog[tier]

	switch {
	case spec.CreditBased:
		err = g.store.ConsumeCredits(ctx, userID, 1)
	case ent.Unlimited():
		return nil
	default:
		err = g.store.ConsumeQuota(ctx, userID, 1)
	}

	if errors.Is(err, entitlements.ErrInsufficient) {
		// The balance moved between check and record. The action already
		// happened, so log and absorb rather than fail the response.
		log.Printf("usage gate: consumption for %s exhausted balance for user %d", actionRef, userID)
		return nil
	}
	return err
}

func (g *Gate) isAdmin(userID uint) bool {
	g.adminOnce.Do(func() {
		g.adminIDs = parseAdminIDs(env.GetEnv("ADMIN_USER_IDS", ""))
	})
	_, ok := g.adminIDs[userID]
	return ok
}

func parseAdminIDs(raw string) map[uint]struct{} {
	ids := make(map[uint]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseUint(part, 10, 32); err == nil && id > 0 {
			ids[uint(id)] = struct{}{}
		}
	}
	return ids
}
