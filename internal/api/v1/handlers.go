package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/scribeforge/scribeforge/app/controllers"
	"github.com/scribeforge/scribeforge/internal/pkg/middleware"
	"github.com/scribeforge/scribeforge/internal/pkg/ratelimit"
)

// APIServer implements the v1 API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetUserProfile returns account information for the authenticated user (API key).
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetEntitlement returns the caller's entitlement snapshot.
func (s *APIServer) GetEntitlement(c *fiber.Ctx) error {
	return controllers.HandleGetEntitlement(c)
}

// PostAPIKey rotates the caller's API key. The old key stops working with
// this call; the new plaintext appears only in the response.
func (s *APIServer) PostAPIKey(c *fiber.Ctx) error {
	return controllers.HandleIssueAPIKey(c)
}

// DeleteAPIKey revokes the caller's API key.
func (s *APIServer) DeleteAPIKey(c *fiber.Ctx) error {
	return controllers.HandleRevokeAPIKey(c)
}

// PostGenerateDocument runs a metered document generation.
func (s *APIServer) PostGenerateDocument(c *fiber.Ctx) error {
	return controllers.HandleGenerateDocument(c)
}

// GetDocuments lists the caller's documents.
func (s *APIServer) GetDocuments(c *fiber.Ctx) error {
	return controllers.HandleListDocuments(c)
}

// GetDocument returns metadata for a document by UUID.
func (s *APIServer) GetDocument(c *fiber.Ctx) error {
	return controllers.HandleGetDocument(c)
}

// PostAcceptance records acceptance of the document's current version.
func (s *APIServer) PostAcceptance(c *fiber.Ctx) error {
	return controllers.HandleRecordAcceptance(c)
}

// GetAcceptance returns the caller's acceptance state for a document.
func (s *APIServer) GetAcceptance(c *fiber.Ctx) error {
	return controllers.HandleGetAcceptance(c)
}

// GetDownload gates and counts a document download.
func (s *APIServer) GetDownload(c *fiber.Ctx) error {
	return controllers.HandleDownloadDocument(c)
}

// RegisterHandlers wires the v1 routes. Everything except ping requires an
// API key; the metered routes additionally carry their per-user rate limits.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	auth := middleware.APIKeyAuthMiddleware()

	router.Get("/user/profile", auth, s.GetUserProfile)
	router.Get("/account/entitlement", auth, s.GetEntitlement)
	router.Post("/account/api-key", auth, s.PostAPIKey)
	router.Delete("/account/api-key", auth, s.DeleteAPIKey)

	router.Post("/documents/generate", auth, ratelimit.Middleware("generate"), s.PostGenerateDocument)
	router.Get("/documents", auth, s.GetDocuments)
	router.Get("/documents/:uuid", auth, s.GetDocument)
	router.Post("/documents/:uuid/accept", auth, ratelimit.Middleware("acceptance"), s.PostAcceptance)
	router.Get("/documents/:uuid/acceptance", auth, s.GetAcceptance)
	router.Get("/documents/:uuid/download", auth, ratelimit.Middleware("download"), s.GetDownload)
}
