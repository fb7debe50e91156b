package billing

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseEnvelope(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid","created":1700000000,"data":{"object":{"id":"in_1"}}}`)
	env, err := ParseEnvelope(payload)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.ID != "evt_1" || env.Type != "invoice.paid" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	if _, err := ParseEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
	if _, err := ParseEnvelope([]byte(`{"type":"invoice.paid","data":{"object":{}}}`)); err == nil {
		t.Fatalf("expected missing id to fail validation")
	}
	if _, err := ParseEnvelope([]byte(`{"id":"evt_1","type":"invoice.paid","data":{}}`)); err == nil {
		t.Fatalf("expected missing data.object to fail validation")
	}
}

func TestRecognized(t *testing.T) {
	for _, typ := range []string{
		EventCheckoutCompleted,
		EventSubscriptionUpdated,
		EventSubscriptionCanceled,
		EventInvoicePaid,
		EventInvoiceFailed,
	} {
		if !Recognized(typ) {
			t.Fatalf("expected %q to be recognized", typ)
		}
	}
	if Recognized("charge.refunded") {
		t.Fatalf("expected charge.refunded to be unrecognized")
	}
	if Recognized("") {
		t.Fatalf("expected empty type to be unrecognized")
	}
}

func TestParseCheckoutSession(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "cs_1",
		"mode": "payment",
		"client_reference_id": "42",
		"customer": "cus_1",
		"metadata": {"credits": "50"}
	}`)
	cs, err := ParseCheckoutSession(raw)
	if err != nil {
		t.Fatalf("ParseCheckoutSession: %v", err)
	}

	userID, err := cs.UserID()
	if err != nil || userID != 42 {
		t.Fatalf("UserID() = %d, %v; want 42", userID, err)
	}
	credits, err := cs.Credits()
	if err != nil || credits != 50 {
		t.Fatalf("Credits() = %d, %v; want 50", credits, err)
	}

	if _, err := ParseCheckoutSession(json.RawMessage(`{"id":"cs_1","mode":"setup","client_reference_id":"42"}`)); err == nil {
		t.Fatalf("expected unknown mode to fail validation")
	}
	if _, err := ParseCheckoutSession(json.RawMessage(`{"id":"cs_1","mode":"payment"}`)); err == nil {
		t.Fatalf("expected missing client_reference_id to fail validation")
	}
}

func TestCheckoutSessionCredits_Invalid(t *testing.T) {
	tests := []string{"", "0", "-5", "abc"}
	for _, raw := range tests {
		cs := &CheckoutSession{ID: "cs_1"}
		cs.Metadata.Credits = raw
		if _, err := cs.Credits(); err == nil {
			t.Fatalf("expected credits metadata %q to fail", raw)
		}
	}
}

func TestCheckoutSessionUserID_Invalid(t *testing.T) {
	for _, ref := range []string{"", "0", "-1", "abc"} {
		cs := &CheckoutSession{ID: "cs_1", ClientReferenceID: ref}
		if _, err := cs.UserID(); err == nil {
			t.Fatalf("expected client_reference_id %q to fail", ref)
		}
	}
}

func TestParseSubscriptionObject(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "active",
		"cancel_at_period_end": true,
		"current_period_start": 1700000000,
		"current_period_end": 1702592000,
		"items": {"data": [{"price": {"id": "price_pro_month", "recurring": {"interval": "month"}}}]}
	}`)
	sub, err := ParseSubscriptionObject(raw)
	if err != nil {
		t.Fatalf("ParseSubscriptionObject: %v", err)
	}

	if sub.PriceRef() != "price_pro_month" {
		t.Fatalf("PriceRef() = %q", sub.PriceRef())
	}
	if sub.Interval() != "month" {
		t.Fatalf("Interval() = %q", sub.Interval())
	}
	if start := sub.PeriodStart(); start == nil || !start.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("PeriodStart() = %v", start)
	}
	if !sub.CancelAtPeriodEnd {
		t.Fatalf("expected cancel_at_period_end to decode")
	}

	empty := &SubscriptionObject{}
	if empty.PriceRef() != "" || empty.Interval() != "" {
		t.Fatalf("expected empty items to yield empty refs")
	}
	if empty.PeriodStart() != nil || empty.PeriodEnd() != nil {
		t.Fatalf("expected zero timestamps to yield nil periods")
	}

	if _, err := ParseSubscriptionObject(json.RawMessage(`{"id":"sub_1","customer":"cus_1","status":"paused"}`)); err == nil {
		t.Fatalf("expected unknown status to fail validation")
	}
}

func TestParseInvoiceObject(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "in_1",
		"customer": "cus_1",
		"subscription": "sub_1",
		"amount_paid": 1999,
		"currency": "eur"
	}`)
	inv, err := ParseInvoiceObject(raw)
	if err != nil {
		t.Fatalf("ParseInvoiceObject: %v", err)
	}
	if inv.AmountPaid != 1999 || inv.Subscription != "sub_1" {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	if _, err := ParseInvoiceObject(json.RawMessage(`{"id":"in_1"}`)); err == nil {
		t.Fatalf("expected missing customer to fail validation")
	}
}
