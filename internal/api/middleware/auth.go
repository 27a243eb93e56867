package middleware

import (
	"crypto/subtle"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
)

// UserLocalsKey is the fiber locals key holding the *utils.AuthenticatedUser.
const UserLocalsKey = "user"

// OrganizationHeader selects the organization when authentication is disabled.
const OrganizationHeader = "X-Organization-ID"

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	// ResourceID is the expected audience for token validation
	ResourceID string
	// Issuer, when set, must match the token's iss claim
	Issuer string
	// JWTAuthenticator validates bearer tokens
	JWTAuthenticator *utils.JwtAuthenticator
	// SkipPaths bypass authentication, matched by prefix
	SkipPaths []string
}

// AuthMiddleware returns a Fiber middleware for Bearer token authentication
func AuthMiddleware(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, prefix := range cfg.SkipPaths {
			if strings.HasPrefix(c.Path(), prefix) {
				return c.Next()
			}
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}

		if token == "" {
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="vesting"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid Bearer token",
			})
		}

		user, err := cfg.JWTAuthenticator.ValidateToken(token)
		if err != nil {
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="vesting", error="invalid_token"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Invalid token",
				"details": err.Error(),
			})
		}

		if cfg.ResourceID != "" && !slices.Contains(user.Aud, cfg.ResourceID) {
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="vesting", error="invalid_token"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid audience",
			})
		}

		if cfg.Issuer != "" && user.Iss != cfg.Issuer {
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="vesting", error="invalid_token"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid issuer",
			})
		}

		if user.OrganizationID == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Token is not bound to an organization",
			})
		}

		c.Locals(UserLocalsKey, user)
		return c.Next()
	}
}

// GetAuthenticatedUser retrieves the authenticated user from Fiber context
// Returns nil if no user is found or if user is not of correct type
func GetAuthenticatedUser(c *fiber.Ctx) *utils.AuthenticatedUser {
	user, ok := c.Locals(UserLocalsKey).(*utils.AuthenticatedUser)
	if !ok {
		return nil
	}
	return user
}

// OrganizationID returns the organization of the authenticated user, falling back to the
// X-Organization-ID header when the request was not authenticated.
func OrganizationID(c *fiber.Ctx) string {
	if user := GetAuthenticatedUser(c); user != nil {
		return user.OrganizationID
	}
	return strings.TrimSpace(c.Get(OrganizationHeader))
}

// CallbackSecretHeader carries the shared secret of the chain layer on status callbacks.
const CallbackSecretHeader = "X-Callback-Secret"

// CallbackAuthMiddleware admits only requests carrying the shared chain-layer secret. User
// tokens are never accepted here.
func CallbackAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		provided := c.Get(CallbackSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid callback secret",
			})
		}
		return c.Next()
	}
}
