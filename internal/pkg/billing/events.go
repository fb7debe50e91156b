package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Envelope is the outer shape shared by all processor events.
type Envelope struct {
	ID      string `json:"id" validate:"required"`
	Type    string `json:"type" validate:"required"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object" validate:"required"`
	} `json:"data"`
}

// CheckoutSession is the object inside checkout.session.completed. For
// one-time purchases the credited quantity travels in metadata.credits; for
// subscription purchases the subscription id links follow-up events.
type CheckoutSession struct {
	ID                string `json:"id" validate:"required"`
	Mode              string `json:"mode" validate:"required,oneof=payment subscription"`
	ClientReferenceID string `json:"client_reference_id" validate:"required"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	CustomerEmail     string `json:"customer_email"`
	Metadata          struct {
		Credits  string `json:"credits"`
		PriceRef string `json:"price_ref"`
	} `json:"metadata"`
}

// SubscriptionObject is the object inside customer.subscription.* events.
// The period fields are authoritative; local state is overwritten from them.
type SubscriptionObject struct {
	ID                 string `json:"id" validate:"required"`
	Customer           string `json:"customer" validate:"required"`
	Status             string `json:"status" validate:"required,oneof=active trialing past_due canceled unpaid incomplete"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CanceledAt         int64  `json:"canceled_at"`
	Items              struct {
		Data []struct {
			Price struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// InvoiceObject is the object inside invoice.paid / invoice.payment_failed.
type InvoiceObject struct {
	ID           string `json:"id" validate:"required"`
	Customer     string `json:"customer" validate:"required"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// ParseEnvelope decodes and validates the outer event envelope.
func ParseEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	return &env, nil
}

// Recognized reports whether the event type is part of the closed set this
// processor handles.
func Recognized(eventType string) bool {
	switch eventType {
	case EventCheckoutCompleted, EventSubscriptionUpdated, EventSubscriptionCanceled,
		EventInvoicePaid, EventInvoiceFailed:
		return true
	default:
		return false
	}
}

// ParseCheckoutSession validates the checkout.session.completed object.
func ParseCheckoutSession(raw json.RawMessage) (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("malformed checkout session: %w", err)
	}
	if err := validate.Struct(&cs); err != nil {
		return nil, fmt.Errorf("invalid checkout session: %w", err)
	}
	return &cs, nil
}

// ParseSubscriptionObject validates a customer.subscription.* object.
func ParseSubscriptionObject(raw json.RawMessage) (*SubscriptionObject, error) {
	var sub SubscriptionObject
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("malformed subscription object: %w", err)
	}
	if err := validate.Struct(&sub); err != nil {
		return nil, fmt.Errorf("invalid subscription object: %w", err)
	}
	return &sub, nil
}

// ParseInvoiceObject validates an invoice.* object.
func ParseInvoiceObject(raw json.RawMessage) (*InvoiceObject, error) {
	var inv InvoiceObject
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("malformed invoice object: %w", err)
	}
	if err := validate.Struct(&inv); err != nil {
		return nil, fmt.Errorf("invalid invoice object: %w", err)
	}
	return &inv, nil
}

// Credits returns the purchased credit quantity of a one-time checkout.
func (cs *CheckoutSession) Credits() (int64, error) {
	raw := strings.TrimSpace(cs.Metadata.Credits)
	if raw == "" {
		return 0, fmt.Errorf("checkout session %s has no credits metadata", cs.ID)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("checkout session %s has invalid credits metadata %q", cs.ID, raw)
	}
	return n, nil
}

// UserID resolves the local user from the checkout's client reference.
func (cs *CheckoutSession) UserID() (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(cs.ClientReferenceID), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("checkout session %s has invalid client_reference_id %q", cs.ID, cs.ClientReferenceID)
	}
	return uint(id), nil
}

// PriceRef returns the subscription's price reference, if any.
func (so *SubscriptionObject) PriceRef() string {
	if len(so.Items.Data) == 0 {
		return ""
	}
	return so.Items.Data[0].Price.ID
}

// Interval returns the subscription's billing interval, if any.
func (so *SubscriptionObject) Interval() string {
	if len(so.Items.Data) == 0 {
		return ""
	}
	return so.Items.Data[0].Price.Recurring.Interval
}

// PeriodStart converts the unix period start into a time, nil when absent.
func (so *SubscriptionObject) PeriodStart() *time.Time {
	return unixPtr(so.CurrentPeriodStart)
}

// PeriodEnd converts the unix period end into a time, nil when absent.
func (so *SubscriptionObject) PeriodEnd() *time.Time {
	return unixPtr(so.CurrentPeriodEnd)
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}
