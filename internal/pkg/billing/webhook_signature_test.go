package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	valid := SignWebhookPayload(payload, secret, now)

	if !verifyWebhookSignatureAt(payload, valid, secret, DefaultSignatureTolerance, now) {
		t.Fatalf("expected freshly signed payload to validate")
	}
	if verifyWebhookSignatureAt(payload, valid, "other-secret", DefaultSignatureTolerance, now) {
		t.Fatalf("expected wrong secret to fail")
	}
	if verifyWebhookSignatureAt([]byte(`{"id":"evt_2"}`), valid, secret, DefaultSignatureTolerance, now) {
		t.Fatalf("expected signature over different payload to fail")
	}
	if verifyWebhookSignatureAt(payload, "", secret, DefaultSignatureTolerance, now) {
		t.Fatalf("expected empty header to fail")
	}
	if verifyWebhookSignatureAt(payload, valid, "", DefaultSignatureTolerance, now) {
		t.Fatalf("expected empty secret to fail")
	}
}

func TestVerifyWebhookSignature_Tolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	signedAt := time.Unix(1700000000, 0)
	header := SignWebhookPayload(payload, secret, signedAt)

	if !verifyWebhookSignatureAt(payload, header, secret, DefaultSignatureTolerance, signedAt.Add(4*time.Minute)) {
		t.Fatalf("expected signature within tolerance to validate")
	}
	if verifyWebhookSignatureAt(payload, header, secret, DefaultSignatureTolerance, signedAt.Add(6*time.Minute)) {
		t.Fatalf("expected signature older than tolerance to fail")
	}
	if verifyWebhookSignatureAt(payload, header, secret, DefaultSignatureTolerance, signedAt.Add(-6*time.Minute)) {
		t.Fatalf("expected signature from the future to fail")
	}
	// tolerance 0 disables the age check
	if !verifyWebhookSignatureAt(payload, header, secret, 0, signedAt.Add(24*time.Hour)) {
		t.Fatalf("expected zero tolerance to skip the age check")
	}
}

func TestVerifyWebhookSignature_MultipleV1(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", now.Unix())
	mac.Write(payload)
	good := hex.EncodeToString(mac.Sum(nil))

	bad := "0" + good[1:]
	if bad == good {
		bad = "1" + good[1:]
	}

	// Processors send multiple v1 entries during secret rotation; one valid
	// entry is enough.
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), bad, good)
	if !verifyWebhookSignatureAt(payload, header, secret, DefaultSignatureTolerance, now) {
		t.Fatalf("expected one matching v1 entry to validate")
	}

	headerAllBad := fmt.Sprintf("t=%d,v1=%s", now.Unix(), "deadbeef")
	if verifyWebhookSignatureAt(payload, headerAllBad, secret, DefaultSignatureTolerance, now) {
		t.Fatalf("expected all-invalid v1 entries to fail")
	}
}

func TestVerifyWebhookSignature_MalformedHeader(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	tests := []string{
		"t=abc,v1=deadbeef",
		"v1=deadbeef",
		"t=1700000000",
		"nonsense",
	}
	for _, header := range tests {
		if verifyWebhookSignatureAt(payload, header, secret, DefaultSignatureTolerance, now) {
			t.Fatalf("expected malformed header %q to fail", header)
		}
	}
}
