package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/rxtech-lab/vesting-mcp/internal/tools"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
)

// Services is what the MCP tools read from and write to.
type Services struct {
	Templates    services.TemplateService
	Vesting      services.VestingService
	Revocations  services.RevocationService
	Transactions services.TransactionService
	Chains       services.ChainService
}

type MCPServer struct {
	server *server.MCPServer
}

func NewMCPServer(svc Services, now func() time.Time) *MCPServer {
	mcpServer := &MCPServer{}
	mcpServer.InitializeTools(svc, now)
	return mcpServer
}

func (s *MCPServer) InitializeTools(svc Services, now func() time.Time) {
	srv := server.NewMCPServer(
		"Vesting MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv.AddPrompt(mcp.NewPrompt("vesting-mcp-usage",
		mcp.WithPromptDescription("Instructions and guidance for using vesting MCP tools"),
		mcp.WithArgument("tool_category",
			mcp.ArgumentDescription("Category of tools to get instructions for (chain, template, vesting, transaction, or all)"),
			mcp.RequiredArgument(),
		),
	), func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		category := request.Params.Arguments["tool_category"]
		if category == "" {
			return nil, fmt.Errorf("tool_category is required")
		}

		instructions := getToolInstructions(category)

		return mcp.NewGetPromptResult(
			fmt.Sprintf("Vesting MCP Tools - %s", category),
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(
					mcp.RoleUser,
					mcp.NewTextContent(instructions),
				),
			},
		), nil
	})

	// Chain Tools
	listChainsTool, listChainsHandler := tools.NewListChainsTool(svc.Chains)
	srv.AddTool(listChainsTool, listChainsHandler)

	// Template Tools
	listTemplateTool, listTemplateHandler := tools.NewListTemplateTool(svc.Templates)
	srv.AddTool(listTemplateTool, listTemplateHandler)

	createTemplateTool := tools.NewCreateTemplateTool(svc.Templates)
	srv.AddTool(createTemplateTool.GetTool(), createTemplateTool.GetHandler())

	previewScheduleTool := tools.NewPreviewScheduleTool(now)
	srv.AddTool(previewScheduleTool.GetTool(), previewScheduleTool.GetHandler())

	// Vesting Tools
	createDraftTool := tools.NewCreateVestingDraftTool(svc.Vesting)
	srv.AddTool(createDraftTool.GetTool(), createDraftTool.GetHandler())

	listVestingTool, listVestingHandler := tools.NewListVestingContractsTool(svc.Vesting)
	srv.AddTool(listVestingTool, listVestingHandler)

	statusTool, statusHandler := tools.NewGetVestingStatusTool(svc.Vesting, svc.Revocations, now)
	srv.AddTool(statusTool, statusHandler)

	vestedTool, vestedHandler := tools.NewComputeVestedAmountTool(svc.Vesting, now)
	srv.AddTool(vestedTool, vestedHandler)

	milestoneTool, milestoneHandler := tools.NewRecordMilestoneTool(svc.Vesting)
	srv.AddTool(milestoneTool, milestoneHandler)

	// Transaction Tools
	pendingTool, pendingHandler := tools.NewListPendingTransactionsTool(svc.Transactions)
	srv.AddTool(pendingTool, pendingHandler)

	s.server = srv
}

func getToolInstructions(category string) string {
	switch category {
	case "chain":
		return `Chain Tools:

1. list_chains - List configured blockchains
   Usage: Find the chain_id to create a vesting contract on`

	case "template":
		return `Template Tools:

1. list_template - List vesting templates with keyword search
   Usage: Browse the organization's vesting schedules

2. create_template - Create a vesting template from a schedule
   Usage: Define a time based schedule (start, end, cliff, unlock interval) or a milestone schedule

3. preview_schedule - Compute what a schedule would have vested at a point in time
   Usage: Check a schedule before saving it. Nothing is stored`

	case "vesting":
		return `Vesting Tools:

1. create_vesting_draft - Create a DRAFT vesting contract from a template
   Usage: The template's schedule is copied into the contract and the template becomes locked once deployed

2. list_vesting_contracts - List vesting contracts with their lifecycle status
   Usage: See which contracts are DRAFT, DEPLOYING, DEPLOYED, ACTIVE or DEACTIVATED

3. get_vesting_status - Show a contract with its recipients, revocations and vested split
   Usage: Inspect one contract in depth

4. compute_vested_amount - Compute the vested and unvested split of a contract or recipient
   Usage: Answer "how much has vested" at a given time

5. record_milestone - Mark an event milestone as achieved
   Usage: Unlock the share of a milestone schedule tied to an off-chain event`

	case "transaction":
		return `Transaction Tools:

1. list_pending_transactions - List transactions still waiting for a chain outcome
   Usage: See what the reconciler is tracking`

	case "all":
		return `Vesting MCP Tools Overview:

This MCP server provides 10 tools for managing token vesting schedules:

CHAIN (1 tool):
- list_chains: List configured blockchains

TEMPLATE (3 tools):
- list_template: Browse vesting templates
- create_template: Add a new vesting template
- preview_schedule: Dry-run a schedule

VESTING (5 tools):
- create_vesting_draft: Create a contract from a template
- list_vesting_contracts: List contracts
- get_vesting_status: Inspect one contract
- compute_vested_amount: Vested and unvested split
- record_milestone: Achieve an event milestone

TRANSACTION (1 tool):
- list_pending_transactions: Transactions awaiting a chain outcome

Deployment, funding, recipients and revocations take signed transactions and go through the HTTP API.
No private keys are handled by the server.`

	default:
		return `Invalid category. Available categories: chain, template, vesting, transaction, all`
	}
}

// StreamableHTTPHandler serves the tools over streamable HTTP. contextFunc decides which
// organization each request acts for.
func (s *MCPServer) StreamableHTTPHandler(path string, contextFunc server.HTTPContextFunc) http.Handler {
	return server.NewStreamableHTTPServer(s.server,
		server.WithEndpointPath(path),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(contextFunc),
	)
}

// StartStdioServer serves the tools over stdio. A stdio client has no token, so every call
// acts for organizationID.
func (s *MCPServer) StartStdioServer(organizationID string) error {
	user := &utils.AuthenticatedUser{Sub: "stdio", OrganizationID: organizationID}
	return server.ServeStdio(s.server, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return utils.WithAuthenticatedUser(ctx, user)
	}))
}

func (s *MCPServer) GetServer() *server.MCPServer {
	return s.server
}
