package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/scribeforge/scribeforge/app/models"
	"github.com/scribeforge/scribeforge/internal/pkg/billing"
	"github.com/scribeforge/scribeforge/internal/pkg/database"
	"github.com/scribeforge/scribeforge/internal/pkg/env"
)

const webhookProcessTimeout = 15 * time.Second

// HandleStripeWebhook receives payment processor events. The event row is
// written before any processing so a replayed delivery of an applied event
// can be answered with 200 without touching billing state again. A known
// event whose last attempt failed is processed again: the processor keeps
// redelivering until we answer 2xx, and that retry is the recovery path.
// Invalid signatures are recorded too; the audit trail must show what the
// processor sent us.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
	defer cancel()

	signatureValid := billing.VerifyWebhookSignature(rawBody, signature, secret, billing.DefaultSignatureTolerance)

	envelope, parseErr := billing.ParseEnvelope(rawBody)
	eventID := ""
	eventType := ""
	if parseErr == nil {
		eventID = envelope.ID
		eventType = envelope.Type
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		fiberlog.Error(fmt.Sprintf("webhook persist failed: %v", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created && stored.Applied() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !billing.Recognized(envelope.Type) {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	procErr := svc.ProcessEvent(ctx, envelope, rawBody)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		fiberlog.Error(fmt.Sprintf("webhook %s (%s) failed: %v", envelope.ID, envelope.Type, procErr))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
