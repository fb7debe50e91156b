package controllers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/scribeforge/scribeforge/app/models"
	"github.com/scribeforge/scribeforge/app/repository"
	"github.com/scribeforge/scribeforge/internal/pkg/acceptance"
	"github.com/scribeforge/scribeforge/internal/pkg/database"
	"github.com/scribeforge/scribeforge/internal/pkg/entitlements"
	"github.com/scribeforge/scribeforge/internal/pkg/metrics/counter"
	"github.com/scribeforge/scribeforge/internal/pkg/usagegate"
	"github.com/scribeforge/scribeforge/internal/pkg/usercontext"
)

var (
	gateOnce sync.Once
	gate     *usagegate.Gate
)

func usageGate() *usagegate.Gate {
	gateOnce.Do(func() {
		gate = usagegate.New(entitlements.NewStore(database.GetDB()))
	})
	return gate
}

// HandleGenerateDocument runs the metered generation path: entitlement check,
// document creation, then consumption recording. Consumption is recorded
// after the document exists so a failed generation never costs the user.
func HandleGenerateDocument(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req struct {
		Title   string `json:"title"`
		Kind    string `json:"kind"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > 255 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title must be 1-255 characters"})
	}
	if req.Kind == "" {
		req.Kind = "generic"
	}

	verdict, err := usageGate().CanConsume(c.Context(), user.UserID, 1)
	if err != nil {
		fiberlog.Error(fmt.Sprintf("usage gate error for user %d: %v", user.UserID, err))
	}
	if !verdict.Allowed {
		status := fiber.StatusForbidden
		if verdict.Reason == usagegate.ReasonUnavailable {
			status = fiber.StatusServiceUnavailable
		}
		resp := fiber.Map{
			"error":  "usage_denied",
			"reason": verdict.Reason,
			"tier":   verdict.Tier,
		}
		if verdict.Reason == usagegate.ReasonLimitReached || verdict.Reason == usagegate.ReasonNoCredits {
			resp["upgrade"] = entitlements.CatalogList()
		}
		return c.Status(status).JSON(resp)
	}

	hash := ""
	status := models.DocumentStatusPending
	if req.Content != "" {
		sum := sha256.Sum256([]byte(req.Content))
		hash = hex.EncodeToString(sum[:])
		status = models.DocumentStatusGenerated
	}

	doc := &models.Document{
		UserID:      user.UserID,
		Title:       req.Title,
		Kind:        req.Kind,
		Version:     1,
		Status:      status,
		ContentHash: hash,
	}
	if err := repository.GetGlobalFactory().GetDocumentRepository().Create(doc); err != nil {
		fiberlog.Error(fmt.Sprintf("document create failed: %v", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "document_create_failed"})
	}

	if err := usageGate().RecordConsumption(c.Context(), user.UserID, doc.UUID); err != nil {
		// The document exists; losing one consumption tick is preferable to
		// failing the request after the work is done.
		fiberlog.Error(fmt.Sprintf("record consumption failed for document %s: %v", doc.UUID, err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document": documentJSON(doc),
		"usage": fiber.Map{
			"tier":      verdict.Tier,
			"unlimited": verdict.Unlimited,
			"remaining": remainingAfter(verdict),
		},
	})
}

// HandleGetDocument returns document metadata and counts a view.
func HandleGetDocument(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	doc, httpErr := loadOwnedDocument(c, user)
	if httpErr != nil {
		return httpErr
	}

	if err := counter.AddDocumentView(doc.ID); err != nil {
		fiberlog.Warn(fmt.Sprintf("view counter failed for document %s: %v", doc.UUID, err))
	}

	return c.JSON(fiber.Map{"document": documentJSON(doc)})
}

// HandleListDocuments returns the caller's documents, newest first.
func HandleListDocuments(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", 25)
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	repo := repository.GetGlobalFactory().GetDocumentRepository()
	docs, err := repo.GetByUserID(user.UserID, (page-1)*perPage, perPage)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "document_list_failed"})
	}
	total, err := repo.CountByUserID(user.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "document_list_failed"})
	}

	items := make([]fiber.Map, 0, len(docs))
	for i := range docs {
		items = append(items, documentJSON(&docs[i]))
	}

	return c.JSON(fiber.Map{
		"documents": items,
		"page":      page,
		"per_page":  perPage,
		"total":     total,
	})
}

// HandleDownloadDocument gates downloads on a recorded acceptance for the
// document's current version and counts the download.
func HandleDownloadDocument(c *fiber.Ctx) error {
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

	ledger := acceptance.NewLedger(database.GetDB())
	record, err := ledger.HasAccepted(c.Context(), doc.ID, user.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "acceptance_lookup_failed"})
	}
	if record == nil || record.DocumentVersion != doc.Version {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":            "acceptance_required",
			"document_version": doc.Version,
		})
	}

	if err := counter.AddDocumentDownload(doc.ID); err != nil {
		fiberlog.Warn(fmt.Sprintf("download counter failed for document %s: %v", doc.UUID, err))
	}

	return c.JSON(fiber.Map{
		"document":     documentJSON(doc),
		"accepted_at":  record.AcceptedAt.UTC().Format(time.RFC3339),
		"content_hash": doc.ContentHash,
	})
}

// loadOwnedDocument resolves :uuid and enforces that the caller owns the
// document (admins may read any). Returns a fiber error response on failure.
func loadOwnedDocument(c *fiber.Ctx, user usercontext.UserContext) (*models.Document, error) {
	id := c.Params("uuid")
	if id == "" {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "uuid missing"})
	}

	doc, err := repository.GetGlobalFactory().GetDocumentRepository().GetByUUID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "document_lookup_failed"})
	}
	if doc.UserID != user.UserID && !user.IsAdmin {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	return doc, nil
}

func documentJSON(doc *models.Document) fiber.Map {
	return fiber.Map{
		"uuid":         doc.UUID,
		"title":        doc.Title,
		"kind":         doc.Kind,
		"version":      doc.Version,
		"status":       doc.Status,
		"content_hash": doc.ContentHash,
		"created_at":   doc.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func remainingAfter(v usagegate.Verdict) interface{} {
	if v.Unlimited || v.Remaining == nil {
		return nil
	}
	r := *v.Remaining - 1
	if r < 0 {
		r = 0
	}
	return r
}
