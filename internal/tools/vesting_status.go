package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

func NewListVestingContractsTool(vestingService services.VestingService) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_vesting_contracts",
		mcp.WithDescription("List the organization's vesting contracts with their lifecycle status"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("status",
			mcp.Description("Filter by status (DRAFT, DEPLOYING, DEPLOYED, ACTIVE, DEACTIVATED). Optional."),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := models.VestingStatus(request.GetString("status", ""))

		organizationID, err := organizationFromContext(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		contracts, err := vestingService.List(ctx, organizationID)
		if err != nil {
			return serviceError("listing vesting contracts", err), nil
		}

		contractList := []map[string]any{}
		for _, contract := range contracts {
			if status != "" && contract.Status != status {
				continue
			}
			contractList = append(contractList, map[string]any{
				"id":          contract.ID,
				"name":        contract.Name,
				"status":      contract.Status,
				"chain_id":    contract.ChainID,
				"address":     contract.Address,
				"is_deployed": contract.IsDeployed,
				"is_funded":   contract.IsFunded,
				"is_active":   contract.IsActive,
			})
		}

		return jsonResult("Vesting contracts listed successfully", map[string]any{
			"contracts": contractList,
			"count":     len(contractList),
		}), nil
	}

	return tool, handler
}

func NewGetVestingStatusTool(vestingService services.VestingService, revocationService services.RevocationService, now func() time.Time) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("get_vesting_status",
		mcp.WithDescription("Show one vesting contract with its recipients, revocations and the vested split of the whole contract right now"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("vesting_id",
			mcp.Required(),
			mcp.Description("ID of the vesting contract"),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vestingID, err := request.RequireString("vesting_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		organizationID, err := organizationFromContext(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		contract, err := vestingService.Get(ctx, organizationID, vestingID)
		if err != nil {
			return serviceError("getting vesting contract", err), nil
		}
		recipients, err := vestingService.ListRecipients(ctx, organizationID, vestingID)
		if err != nil {
			return serviceError("listing recipients", err), nil
		}
		revocations, err := revocationService.ListByVesting(ctx, organizationID, vestingID)
		if err != nil {
			return serviceError("listing revocations", err), nil
		}

		result := map[string]any{
			"contract":    contract,
			"recipients":  recipients,
			"revocations": revocations,
		}
		// the split is best effort; a broken schedule should not hide the rest
		if amount, err := vestingService.VestedAmount(ctx, organizationID, vestingID, "", now()); err == nil {
			result["vested"] = amount
		} else {
			result["vested_error"] = err.Error()
		}

		return jsonResult("Vesting status", result), nil
	}

	return tool, handler
}

func NewComputeVestedAmountTool(vestingService services.VestingService, now func() time.Time) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("compute_vested_amount",
		mcp.WithDescription("Compute the vested and unvested amounts of a vesting contract, or of one recipient in it. A revoked recipient keeps what had vested at revocation."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("vesting_id",
			mcp.Required(),
			mcp.Description("ID of the vesting contract"),
		),
		mcp.WithString("recipient",
			mcp.Description("Recipient address. Omit for the whole contract."),
		),
		mcp.WithString("at",
			mcp.Description("RFC 3339 time to compute at (default: now)"),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vestingID, err := request.RequireString("vesting_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		recipient := request.GetString("recipient", "")
		at, err := parseAt(request.GetString("at", ""), now)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		organizationID, err := organizationFromContext(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		amount, err := vestingService.VestedAmount(ctx, organizationID, vestingID, recipient, at)
		if err != nil {
			return serviceError("computing vested amount", err), nil
		}

		return jsonResult("Vested amount computed", map[string]any{
			"vesting_id": vestingID,
			"recipient":  recipient,
			"at":         at.UTC(),
			"vested":     amount.Vested.String(),
			"unvested":   amount.Unvested.String(),
		}), nil
	}

	return tool, handler
}

func NewRecordMilestoneTool(vestingService services.VestingService) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("record_milestone",
		mcp.WithDescription("Mark a milestone of a milestone-based vesting contract as achieved. Recording the same milestone twice is a no-op."),
		mcp.WithString("vesting_id",
			mcp.Required(),
			mcp.Description("ID of the vesting contract"),
		),
		mcp.WithNumber("sequence",
			mcp.Required(),
			mcp.Description("Sequence number of the milestone"),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vestingID, err := request.RequireString("vesting_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sequence, err := request.RequireInt("sequence")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		organizationID, err := organizationFromContext(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		contract, err := vestingService.RecordMilestone(ctx, organizationID, vestingID, sequence)
		if err != nil {
			return serviceError("recording milestone", err), nil
		}

		return jsonResult("Milestone recorded", map[string]any{
			"vesting_id":          contract.ID,
			"achieved_milestones": contract.AchievedMilestones,
		}), nil
	}

	return tool, handler
}
