package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/scribeforge/scribeforge/app/models"
	"github.com/scribeforge/scribeforge/app/repository"
	"github.com/scribeforge/scribeforge/internal/pkg/database"
	"github.com/scribeforge/scribeforge/internal/pkg/entitlements"
	"github.com/scribeforge/scribeforge/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
	}
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}

	docCount, err := repository.GetGlobalFactory().GetDocumentRepository().CountByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
	}

	return c.JSON(fiber.Map{
		"id":                   account.ID,
		"username":             account.Name,
		"email":                account.Email,
		"status":               account.Status,
		"is_admin":             account.Role == models.ROLE_ADMIN,
		"created_at":           account.CreatedAt.UTC().Format(time.RFC3339),
		"api_key_active":       settings.HasActiveAPIKey(),
		"api_key_last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
		"stats": fiber.Map{
			"documents": fiber.Map{"count": docCount},
		},
	})
}

// HandleGetEntitlement returns the caller's current entitlement snapshot
// together with the static spec of the tier it is on.
func HandleGetEntitlement(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	store := entitlements.NewStore(database.GetDB())
	ent, err := store.GetOrCreate(c.Context(), userCtx.UserID)
	if err != nil {
		fiberlog.Error(fmt.Sprintf("entitlement load failed for user %d: %v", userCtx.UserID, err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entitlement_load_failed"})
	}

	tier := entitlements.Normalize(ent.Tier)
	spec := entitlements.Spec(ent.Tier)

	return c.JSON(fiber.Map{
		"tier":                 string(tier),
		"status":               ent.Status,
		"remaining_quota":      ent.RemainingQuota,
		"credit_balance":       ent.CreditBalance,
		"unlimited":            ent.Unlimited() && !spec.CreditBased,
		"credit_based":         spec.CreditBased,
		"current_period_start": formatTimePtr(ent.CurrentPeriodStart),
		"current_period_end":   formatTimePtr(ent.CurrentPeriodEnd),
		"cancel_at_period_end": ent.CancelAtPeriodEnd,
		"features":             spec.Features,
		"catalog":              entitlements.CatalogList(),
	})
}

// HandleIssueAPIKey creates (or replaces) the caller's API key. The plaintext
// key appears only in this response; afterwards only its hash is stored.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	plaintext, err := settings.IssueAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "api_key_issue_failed"})
	}
	if err := db.Save(settings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "api_key_issue_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    plaintext,
		"key_prefix": settings.APIKeyPrefix,
		"created_at": formatTimePtr(settings.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey revokes the caller's active API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.Authenticated {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if !settings.HasActiveAPIKey() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_active_key"})
	}

	settings.RevokeAPIKey()
	if err := db.Save(settings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "api_key_revoke_failed"})
	}

	return c.JSON(fiber.Map{"ok": true})
}
