package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

const defaultPendingLimit = 50

func NewListPendingTransactionsTool(transactionService services.TransactionService) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_pending_transactions",
		mcp.WithDescription("List the organization's transactions that are still waiting for an outcome from the chain, oldest first"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of transactions to return (default: 50)"),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", defaultPendingLimit)
		if limit <= 0 {
			limit = defaultPendingLimit
		}

		organizationID, err := organizationFromContext(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		pending := []map[string]any{}
		truncated := false
		for tx, err := range transactionService.PendingByOrganization(ctx, organizationID, 0) {
			if err != nil {
				return serviceError("listing pending transactions", err), nil
			}
			if len(pending) == limit {
				truncated = true
				break
			}
			pending = append(pending, map[string]any{
				"id":         tx.ID,
				"hash":       tx.Hash,
				"chain_id":   tx.ChainID,
				"type":       tx.Type,
				"frozen":     tx.Frozen,
				"metadata":   tx.Metadata,
				"created_at": tx.CreatedAt,
			})
		}

		return jsonResult("Pending transactions listed successfully", map[string]any{
			"transactions": pending,
			"count":        len(pending),
			"truncated":    truncated,
		}), nil
	}

	return tool, handler
}
