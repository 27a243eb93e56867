package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

func NewListChainsTool(chainService services.ChainService) (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("list_chains",
		mcp.WithDescription("List all configured blockchains. Use the id as chain_id when creating vesting contracts."),
		mcp.WithString("chain_type",
			mcp.Description("Filter by chain type (ethereum, solana). Optional."),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		chainType := request.GetString("chain_type", "")

		chains, err := chainService.ListChains(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error listing chains: %v", err)), nil
		}

		filteredChains := []map[string]any{}
		var activeChain map[string]any
		for _, chain := range chains {
			entry := map[string]any{
				"id":         chain.ID,
				"name":       chain.Name,
				"chain_type": chain.ChainType,
				"network_id": chain.NetworkID,
				"is_active":  chain.IsActive,
			}
			if chain.IsActive && activeChain == nil {
				activeChain = entry
			}
			if chainType == "" || string(chain.ChainType) == chainType {
				filteredChains = append(filteredChains, entry)
			}
		}

		response := map[string]any{
			"chains": filteredChains,
			"total":  len(filteredChains),
		}
		if activeChain != nil {
			response["active_chain"] = activeChain
		}

		responseJSON, _ := json.MarshalIndent(response, "", "  ")
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(string(responseJSON)),
			},
		}, nil
	}

	return tool, handler
}
