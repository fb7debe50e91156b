package billing

import "time"

// Recognized processor event types. Everything else is acknowledged and
// ignored so new processor features cannot break the handler.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionCanceled = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoiceFailed        = "invoice.payment_failed"
)

// Checkout modes inside checkout.session.completed.
const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// NormalizedSubscription is the provider-agnostic shape the service uses when
// syncing processor subscription state into local tables. Both the checkout
// and the subscription-lifecycle handlers reduce their payloads to this before
// touching the database.
type NormalizedSubscription struct {
	UserID                 uint
	Provider               string
	ProviderSubscriptionID string
	ProviderPriceRef       string
	Tier                   string
	BillingInterval        string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	RawPayloadJSON         string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
