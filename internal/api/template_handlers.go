package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/vesting-mcp/internal/api/middleware"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

// organization returns the organization every lookup of the request is scoped to.
func organization(c *fiber.Ctx) (string, error) {
	organizationID := middleware.OrganizationID(c)
	if organizationID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "organization is required")
	}
	return organizationID, nil
}

func (s *APIServer) handleCreateTemplate(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var req services.CreateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	template, err := s.svc.Templates.CreateTemplate(c.UserContext(), organizationID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(template)
}

func (s *APIServer) handleListTemplates(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	templates, err := s.svc.Templates.ListTemplates(c.UserContext(), organizationID, c.Query("keyword"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(templates)
}

func (s *APIServer) handleGetTemplate(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	template, err := s.svc.Templates.GetTemplate(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(template)
}

func (s *APIServer) handleUpdateTemplate(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var req services.UpdateTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	template, err := s.svc.Templates.UpdateTemplate(c.UserContext(), organizationID, c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(template)
}

func (s *APIServer) handleDeleteTemplate(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	if err := s.svc.Templates.DeleteTemplate(c.UserContext(), organizationID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
