package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/scribeforge/scribeforge/app/models"
	"github.com/scribeforge/scribeforge/internal/pkg/acceptance"
	"github.com/scribeforge/scribeforge/internal/pkg/database"
	"github.com/scribeforge/scribeforge/internal/pkg/usercontext"
)

// HandleRecordAcceptance records that the caller accepted the document's
// current version. Repeating the call for the same version updates the
// existing record instead of growing the ledger.
func HandleRecordAcceptance(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	doc, httpErr := loadOwnedDocument(c, user)
	if httpErr != nil {
		return httpErr
	}
	if doc.Status != models.DocumentStatusGenerated {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "document_not_ready", "status": doc.Status})
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	ledger := acceptance.NewLedger(database.GetDB())
	record, err := ledger.Record(c.Context(), acceptance.RecordInput{
		DocumentID: doc.ID,
		Version:    doc.Version,
		UserID:     user.UserID,
		Content:    []byte(req.Content),
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})
	if err != nil {
		fiberlog.Error(fmt.Sprintf("acceptance record failed for document %s: %v", doc.UUID, err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "acceptance_record_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"acceptance": acceptanceJSON(record)})
}

// HandleGetAcceptance returns the caller's most recent acceptance for the
// document, or 404 if none exists.
func HandleGetAcceptance(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	doc, httpErr := loadOwnedDocument(c, user)
	if httpErr != nil {
		return httpErr
	}

	ledger := acceptance.NewLedger(database.GetDB())
	record, err := ledger.HasAccepted(c.Context(), doc.ID, user.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "acceptance_lookup_failed"})
	}
	if record == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	return c.JSON(fiber.Map{
		"acceptance": acceptanceJSON(record),
		"current":    record.DocumentVersion == doc.Version,
	})
}

func acceptanceJSON(r *models.AcceptanceRecord) fiber.Map {
	return fiber.Map{
		"id":               r.PublicID,
		"document_id":      r.DocumentID,
		"document_version": r.DocumentVersion,
		"content_hash":     r.ContentHash,
		"accepted_at":      r.AcceptedAt.UTC().Format(time.RFC3339),
	}
}
