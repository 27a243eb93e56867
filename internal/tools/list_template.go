package tools

import (
	"context"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

func NewListTemplateTool(templateService services.TemplateService) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_template",
		mcp.WithDescription("List the organization's vesting templates with optional keyword search over names and descriptions. Returns each template's id, name, whether it is locked and a summary of its schedule."),
		mcp.WithString("keyword",
			mcp.Description("Search keyword to filter templates by name or description"),
		),
		mcp.WithString("limit",
			mcp.Description("Maximum number of templates to return (default: 10)"),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		keyword := request.GetString("keyword", "")
		limit, err := strconv.Atoi(request.GetString("limit", "10"))
		if err != nil || limit <= 0 {
			limit = 10
		}

		organizationID, err := organizationFromContext(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		templates, err := templateService.ListTemplates(ctx, organizationID, keyword, limit)
		if err != nil {
			return serviceError("listing templates", err), nil
		}

		templateList := make([]map[string]any, len(templates))
		for i, template := range templates {
			kind := "time"
			if len(template.Schedule.Milestones) > 0 {
				kind = "milestone"
			}
			templateList[i] = map[string]any{
				"id":               template.ID,
				"name":             template.Name,
				"description":      template.Description,
				"locked":           template.IsLocked(),
				"schedule_kind":    kind,
				"total_allocation": template.Schedule.TotalAllocation,
			}
		}

		result := map[string]any{
			"templates": templateList,
			"count":     len(templates),
			"filters": map[string]any{
				"keyword": keyword,
				"limit":   limit,
			},
		}
		if len(templates) == 0 {
			result["message"] = "No templates found matching the criteria"
		}

		return jsonResult("Templates listed successfully", result), nil
	}

	return tool, handler
}
