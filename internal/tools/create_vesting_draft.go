package tools

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

type createVestingDraftTool struct {
	vestingService services.VestingService
}

type CreateVestingDraftArguments struct {
	// Required fields
	TemplateID string `json:"template_id" validate:"required"`
	ChainID    uint   `json:"chain_id" validate:"required"`
	Name       string `json:"name" validate:"required"`

	// Optional fields
	TokenID string `json:"token_id,omitempty"`
}

func NewCreateVestingDraftTool(vestingService services.VestingService) *createVestingDraftTool {
	return &createVestingDraftTool{
		vestingService: vestingService,
	}
}

func (c *createVestingDraftTool) GetTool() mcp.Tool {
	return mcp.NewTool("create_vesting_draft",
		mcp.WithDescription("Create a DRAFT vesting contract from a template. The template's schedule is copied into the contract, so later template edits do not affect it. Deploy it through the HTTP API with a signed transaction."),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("ID of the vesting template"),
		),
		mcp.WithNumber("chain_id",
			mcp.Required(),
			mcp.Description("ID of the chain to deploy on (see list_chains)"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the vesting contract"),
		),
		mcp.WithString("token_id",
			mcp.Description("ID of the token being vested"),
		),
	)
}

func (c *createVestingDraftTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args CreateVestingDraftArguments
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

		contract, err := c.vestingService.CreateDraft(ctx, organizationID, services.CreateDraftRequest{
			TemplateID: args.TemplateID,
			ChainID:    args.ChainID,
			TokenID:    args.TokenID,
			Name:       args.Name,
		})
		if err != nil {
			return serviceError("creating vesting draft", err), nil
		}

		return jsonResult("Vesting draft created successfully", contract), nil
	}
}
