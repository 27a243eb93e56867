package api

import (
	"github.com/gofiber/fiber/v2"
)

// handleOAuthProtectedResource publishes the protected resource metadata MCP clients read to
// find where to get a token.
func (s *APIServer) handleOAuthProtectedResource(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"authorization_servers":    []string{s.issuer},
		"bearer_methods_supported": []string{"header"},
		"resource":                 s.audience,
		"scopes_supported":         []string{},
	})
}
