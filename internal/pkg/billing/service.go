package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scribeforge/scribeforge/app/models"
	"github.com/scribeforge/scribeforge/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Service consumes verified processor events and applies idempotent state
// transitions to subscriptions, payments and entitlements.
type Service struct {
	repo  Repository
	store entitlements.Store

	// transact runs fn against a Service bound to one database transaction.
	// Nil means no transactional backend; fn runs against s directly.
	transact func(fn func(tx *Service) error) error
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, store entitlements.Store) *Service {
	return &Service{repo: repo, store: store}
}

// NewServiceFromDB creates a billing service from a GORM DB handle. Multi-step
// writes run inside database transactions.
func NewServiceFromDB(db *gorm.DB) *Service {
	s := NewService(NewRepository(db), entitlements.NewStore(db))
	s.transact = func(fn func(tx *Service) error) error {
		return db.Transaction(func(tx *gorm.DB) error {
			return fn(NewService(NewRepository(tx), entitlements.NewStore(tx)))
		})
	}
	return s
}

func (s *Service) inTransaction(fn func(tx *Service) error) error {
	if s.transact == nil {
		return fn(s)
	}
	return s.transact(fn)
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false when the event id was already seen; replayed events must
// resolve to a no-op success.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// ResolveMappedTier resolves a processor price reference to an internal tier
// through the plan-mapping table. gorm.ErrRecordNotFound with a free tier is
// returned when no mapping exists.
func (s *Service) ResolveMappedTier(ctx context.Context, provider, providerPriceRef, interval string) (entitlements.Tier, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPriceRef)
	i := normalizeInterval(interval)
	if p == "" || ref == "" {
		return entitlements.TierFree, errors.New("provider and provider price ref are required")
	}

	// Prefer exact interval match.
	m, err := s.repo.FindActivePlanMapping(p, ref, i)
	if err == nil {
		return entitlements.Normalize(m.Tier), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return entitlements.TierFree, err
	}

	if i == models.BillingIntervalUnknown {
		// Checkout sessions carry no interval; any active mapping for the
		// price ref decides the tier.
		m, err = s.repo.FindActivePlanMappingAnyInterval(p, ref)
	} else {
		// Fallback for mappings that intentionally use "unknown".
		m, err = s.repo.FindActivePlanMapping(p, ref, models.BillingIntervalUnknown)
	}
	if err == nil {
		return entitlements.Normalize(m.Tier), nil
	}
	return entitlements.TierFree, err
}

// ProcessEvent dispatches one parsed, signature-verified event. Every branch
// is safe under at-least-once delivery: subscription branches converge by
// subscription id, credit grants and payments dedup by their own ledgers.
func (s *Service) ProcessEvent(ctx context.Context, env *Envelope, rawPayload []byte) error {
	switch env.Type {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, env, rawPayload)
	case EventSubscriptionUpdated, EventSubscriptionCanceled:
		return s.handleSubscriptionEvent(ctx, env, rawPayload)
	case EventInvoicePaid:
		return s.handleInvoicePaid(ctx, env)
	case EventInvoiceFailed:
		return s.handleInvoiceFailed(ctx, env)
	default:
		// Unrecognized types are acknowledged upstream; reaching here is
		// a programming error, not a processor problem.
		return fmt.Errorf("unhandled event type %s", env.Type)
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, env *Envelope, rawPayload []byte) error {
	session, err := ParseCheckoutSession(env.Data.Object)
	if err != nil {
		return err
	}
	userID, err := session.UserID()
	if err != nil {
		return err
	}

	if session.Customer != "" {
		if err := s.repo.UpsertBillingAccount(&models.BillingAccount{
			UserID:             userID,
			Provider:           models.BillingProviderStripe,
			ProviderCustomerID: session.Customer,
			Email:              strings.TrimSpace(session.CustomerEmail),
		}); err != nil {
			return err
		}
	}

	if session.Mode == CheckoutModePayment {
		return s.applyCreditPurchase(ctx, env.ID, userID, session)
	}
	return s.applySubscriptionCheckout(ctx, userID, session, rawPayload)
}

// applyCreditPurchase grants one-time credits exactly once per event id. The
// grant ledger, not the webhook-event table, is the idempotency source here:
// the balance increment only happens when the grant row was newly inserted.
// Grant insert and balance increment land in one transaction; a grant row
// without its credits would make every retry a false duplicate.
func (s *Service) applyCreditPurchase(ctx context.Context, eventID string, userID uint, session *CheckoutSession) error {
	credits, err := session.Credits()
	if err != nil {
		return err
	}

	return s.inTransaction(func(tx *Service) error {
		created, err := tx.repo.CreateCreditGrantIfNotExists(&models.CreditGrant{
			UserID:          userID,
			Provider:        models.BillingProviderStripe,
			ProviderEventID: eventID,
			Credits:         credits,
		})
		if err != nil {
			return err
		}
		if !created {
			log.Printf("billing: credit grant for event %s already applied", eventID)
			return nil
		}

		if err := tx.store.AddCredits(ctx, userID, credits); err != nil {
			return err
		}

		// A pure credit buyer stays on their tier unless they had none yet.
		ent, err := tx.store.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}
		if entitlements.Normalize(ent.Tier) == entitlements.TierFree {
			return tx.store.Apply(ctx, userID, entitlements.Transition{
				Tier:   entitlements.TierPayg,
				Status: models.BillingStatusActive,
			})
		}
		return nil
	})
}

// applySubscriptionCheckout seeds the subscription row from the checkout.
// The authoritative period fields follow in customer.subscription.updated;
// until then the window is now .. now+interval.
func (s *Service) applySubscriptionCheckout(ctx context.Context, userID uint, session *CheckoutSession, rawPayload []byte) error {
	if strings.TrimSpace(session.Subscription) == "" {
		return fmt.Errorf("subscription checkout %s carries no subscription id", session.ID)
	}

	interval := models.BillingIntervalMonth
	tier := entitlements.TierFree
	if ref := strings.TrimSpace(session.Metadata.PriceRef); ref != "" {
		mapped, err := s.ResolveMappedTier(ctx, models.BillingProviderStripe, ref, models.BillingIntervalUnknown)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		tier = mapped
		if entitlements.Catalog[tier].Interval == models.BillingIntervalYear {
			interval = models.BillingIntervalYear
		}
	}

	now := time.Now()
	end := addInterval(now, interval)
	return s.syncSubscription(ctx, NormalizedSubscription{
		UserID:                 userID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: strings.TrimSpace(session.Subscription),
		ProviderPriceRef:       strings.TrimSpace(session.Metadata.PriceRef),
		Tier:                   string(tier),
		BillingInterval:        interval,
		Status:                 models.BillingStatusActive,
		CurrentPeriodStart:     &now,
		CurrentPeriodEnd:       &end,
		RawPayloadJSON:         string(rawPayload),
	})
}

// syncSubscription upserts the local subscription row and recomputes the
// owner's entitlement from the full post-write state, as one transaction.
func (s *Service) syncSubscription(ctx context.Context, n NormalizedSubscription) error {
	return s.inTransaction(func(tx *Service) error {
		if err := tx.repo.UpsertSubscription(&models.BillingSubscription{
			UserID:                 n.UserID,
			Provider:               n.Provider,
			ProviderSubscriptionID: n.ProviderSubscriptionID,
			ProviderPriceRef:       n.ProviderPriceRef,
			Tier:                   n.Tier,
			BillingInterval:        n.BillingInterval,
			Status:                 n.Status,
			CurrentPeriodStart:     n.CurrentPeriodStart,
			CurrentPeriodEnd:       n.CurrentPeriodEnd,
			CancelAtPeriodEnd:      n.CancelAtPeriodEnd,
			CanceledAt:             n.CanceledAt,
			RawPayloadJSON:         n.RawPayloadJSON,
		}); err != nil {
			return err
		}
		return tx.reconcileEntitlement(ctx, n.UserID)
	})
}

func (s *Service) handleSubscriptionEvent(ctx context.Context, env *Envelope, rawPayload []byte) error {
	obj, err := ParseSubscriptionObject(env.Data.Object)
	if err != nil {
		return err
	}

	account, err := s.repo.GetBillingAccountByCustomerID(models.BillingProviderStripe, obj.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No local linkage for this customer. Acknowledge: retrying
			// cannot make the account appear.
			log.Printf("billing: ignoring %s for unlinked customer %s", env.Type, obj.Customer)
			return nil
		}
		return err
	}

	// Cancel events may arrive with an empty items list; an absent price
	// ref maps to the free tier without touching the mapping table.
	tier := entitlements.TierFree
	if ref := obj.PriceRef(); ref != "" {
		tier, err = s.ResolveMappedTier(ctx, models.BillingProviderStripe, ref, obj.Interval())
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	status := mapProcessorStatus(obj.Status)
	var canceledAt *time.Time
	if env.Type == EventSubscriptionCanceled {
		status = models.BillingStatusCanceled
		canceledAt = unixPtr(obj.CanceledAt)
		if canceledAt == nil {
			now := time.Now()
			canceledAt = &now
		}
	} else {
		canceledAt = unixPtr(obj.CanceledAt)
	}

	return s.syncSubscription(ctx, NormalizedSubscription{
		UserID:                 account.UserID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: obj.ID,
		ProviderPriceRef:       obj.PriceRef(),
		Tier:                   string(tier),
		BillingInterval:        normalizeInterval(obj.Interval()),
		Status:                 status,
		CurrentPeriodStart:     obj.PeriodStart(),
		CurrentPeriodEnd:       obj.PeriodEnd(),
		CancelAtPeriodEnd:      obj.CancelAtPeriodEnd,
		CanceledAt:             canceledAt,
		RawPayloadJSON:         string(rawPayload),
	})
}

func (s *Service) handleInvoicePaid(ctx context.Context, env *Envelope) error {
	inv, err := ParseInvoiceObject(env.Data.Object)
	if err != nil {
		return err
	}

	account, err := s.repo.GetBillingAccountByCustomerID(models.BillingProviderStripe, inv.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: ignoring invoice %s for unlinked customer %s", inv.ID, inv.Customer)
			return nil
		}
		return err
	}

	// The payment insert gates the renewal, so both must commit together: a
	// payment row without its renewal would turn every retry into a no-op.
	return s.inTransaction(func(tx *Service) error {
		now := time.Now()
		created, err := tx.repo.CreatePaymentIfNotExists(&models.Payment{
			UserID:                 account.UserID,
			Provider:               models.BillingProviderStripe,
			ProviderInvoiceID:      inv.ID,
			ProviderSubscriptionID: inv.Subscription,
			AmountCents:            inv.AmountPaid,
			Currency:               strings.ToLower(inv.Currency),
			Status:                 models.PaymentStatusPaid,
			SettledAt:              &now,
		})
		if err != nil {
			return err
		}
		if !created {
			// Redelivered invoice: the audit row and the renewal below
			// already happened once. No further state change.
			return nil
		}

		// A paid invoice on a known subscription is a renewal: past_due
		// clears and the period's quota refills.
		if strings.TrimSpace(inv.Subscription) != "" {
			sub, err := tx.repo.GetSubscription(models.BillingProviderStripe, inv.Subscription)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return tx.reconcileEntitlement(ctx, account.UserID)
				}
				return err
			}
			if sub.Status == models.BillingStatusPastDue {
				sub.Status = models.BillingStatusActive
				if err := tx.repo.UpsertSubscription(sub); err != nil {
					return err
				}
			}
		}
		return tx.reconcileEntitlement(ctx, account.UserID)
	})
}

func (s *Service) handleInvoiceFailed(ctx context.Context, env *Envelope) error {
	inv, err := ParseInvoiceObject(env.Data.Object)
	if err != nil {
		return err
	}

	account, err := s.repo.GetBillingAccountByCustomerID(models.BillingProviderStripe, inv.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: ignoring failed invoice %s for unlinked customer %s", inv.ID, inv.Customer)
			return nil
		}
		return err
	}

	if _, err := s.repo.CreatePaymentIfNotExists(&models.Payment{
		UserID:                 account.UserID,
		Provider:               models.BillingProviderStripe,
		ProviderInvoiceID:      inv.ID,
		ProviderSubscriptionID: inv.Subscription,
		AmountCents:            inv.AmountDue,
		Currency:               strings.ToLower(inv.Currency),
		Status:                 models.PaymentStatusFailed,
	}); err != nil {
		return err
	}

	if strings.TrimSpace(inv.Subscription) != "" {
		sub, err := s.repo.GetSubscription(models.BillingProviderStripe, inv.Subscription)
		if err == nil && sub.Status != models.BillingStatusCanceled {
			sub.Status = models.BillingStatusPastDue
			if err := s.repo.UpsertSubscription(sub); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	return s.reconcileEntitlement(ctx, account.UserID)
}

// reconcileEntitlement recomputes the user's effective entitlement from all
// of their subscriptions and writes it as one atomic transition. Quota only
// refills when the tier or the period window moved, so replayed events that
// change nothing also refill nothing.
func (s *Service) reconcileEntitlement(ctx context.Context, userID uint) error {
	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return err
	}

	ent, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	tier := bestTier(subs)
	var active *models.BillingSubscription
	for i := range subs {
		if isEntitlingStatus(subs[i].Status) && entitlements.Normalize(subs[i].Tier) == tier {
			active = &subs[i]
			break
		}
	}

	spec := entitlements.Catalog[tier]
	t := entitlements.Transition{Tier: tier}

	cancelAtPeriodEnd := false
	if active != nil {
		t.Status = active.Status
		t.CurrentPeriodStart = active.CurrentPeriodStart
		t.CurrentPeriodEnd = active.CurrentPeriodEnd
		cancelAtPeriodEnd = active.CancelAtPeriodEnd
		t.CanceledAt = active.CanceledAt
	} else {
		// No entitling subscription left: back to the free tier with a
		// fresh monthly window.
		now := time.Now()
		end := now.AddDate(0, 1, 0)
		t.Status = models.BillingStatusActive
		t.CurrentPeriodStart = &now
		t.CurrentPeriodEnd = &end
		for i := range subs {
			if subs[i].Status == models.BillingStatusCanceled && subs[i].CanceledAt != nil {
				t.CanceledAt = subs[i].CanceledAt
			}
		}
	}
	t.CancelAtPeriodEnd = &cancelAtPeriodEnd

	tierChanged := entitlements.Normalize(ent.Tier) != tier
	periodMoved := periodAdvanced(ent.CurrentPeriodStart, t.CurrentPeriodStart)
	if tierChanged || periodMoved {
		t.ResetQuota = true
		t.RemainingQuota = spec.Quota
	}

	return s.store.Apply(ctx, userID, t)
}

func periodAdvanced(prev, next *time.Time) bool {
	if next == nil {
		return false
	}
	if prev == nil {
		return true
	}
	return next.After(*prev)
}

func addInterval(t time.Time, interval string) time.Time {
	if interval == models.BillingIntervalYear {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
