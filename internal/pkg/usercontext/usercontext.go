// Package usercontext carries the identity resolved from an API key across
// one request. The middleware resolves the key once; everything downstream
// reads the context instead of re-parsing headers.
package usercontext

import "github.com/gofiber/fiber/v2"

const localsKey = "USER_CONTEXT"

// UserContext identifies the API caller for one request. The zero value is
// an anonymous, unauthenticated caller.
type UserContext struct {
	UserID        uint
	Username      string
	Authenticated bool
	IsAdmin       bool
	Plan          string
}

// Set stores the caller context on the request. Called by the API key
// middleware after a successful key lookup.
func Set(c *fiber.Ctx, ctx UserContext) {
	c.Locals(localsKey, ctx)
}

// GetUserContext returns the caller context, or an anonymous one when the
// request carried no valid API key.
func GetUserContext(c *fiber.Ctx) UserContext {
	if v := c.Locals(localsKey); v != nil {
		if ctx, ok := v.(UserContext); ok {
			return ctx
		}
	}
	return UserContext{}
}
