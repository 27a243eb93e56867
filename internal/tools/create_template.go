package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/schedule"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

type createTemplateTool struct {
	templateService services.TemplateService
}

type CreateTemplateArguments struct {
	// Required fields
	Name     string           `json:"name" validate:"required"`
	Schedule schedule.Details `json:"schedule"`

	// Optional fields
	Description string  `json:"description,omitempty"`
	TokenID     *string `json:"token_id,omitempty"`
}

func NewCreateTemplateTool(templateService services.TemplateService) *createTemplateTool {
	return &createTemplateTool{
		templateService: templateService,
	}
}

func (c *createTemplateTool) GetTool() mcp.Tool {
	return mcp.NewTool("create_template",
		mcp.WithDescription("Create a vesting template. A schedule without milestones vests linearly by time: set start_time, end_time (RFC 3339), cliff_seconds, unlock_interval_seconds and an optional cliff_release_percent. "+
			"A schedule with milestones vests by milestone: each milestone has a name, a type (TIME with unlock_at, or EVENT), an allocation with allocation_type PERCENT or ABSOLUTE and a sequence. "+
			"Amounts are decimal strings in token base units."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the template (e.g., 'Team 4y / 1y cliff')"),
		),
		mcp.WithString("description",
			mcp.Description("Description of what this template is for"),
		),
		mcp.WithString("token_id",
			mcp.Description("Optional token the template is meant for"),
		),
		mcp.WithObject("schedule",
			mcp.Required(),
			mcp.Description("Schedule object, e.g. {\"total_allocation\": \"1000000\", \"start_time\": \"2025-01-01T00:00:00Z\", \"end_time\": \"2029-01-01T00:00:00Z\", \"cliff_seconds\": 31536000, \"unlock_interval_seconds\": 2592000}"),
		),
	)
}

func (c *createTemplateTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateTemplateArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}

		if err := validator.New().Struct(args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		organizationID, err := organizationFromContext(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		template, err := c.templateService.CreateTemplate(ctx, organizationID, services.CreateTemplateRequest{
			Name:        args.Name,
			Description: args.Description,
			TokenID:     args.TokenID,
			Schedule:    args.Schedule,
		})
		if err != nil {
			return serviceError("creating template", err), nil
		}

		return jsonResult("Template created successfully", template), nil
	}
}
