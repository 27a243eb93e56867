package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
)

var errNoOrganization = errors.New("no organization in context. Authenticate with a token that carries an org_id claim")

// organizationFromContext returns the organization the caller acts for. Every lookup a tool makes is
// scoped to it.
func organizationFromContext(ctx context.Context) (string, error) {
	user, ok := utils.GetAuthenticatedUser(ctx)
	if !ok || user.OrganizationID == "" {
		return "", errNoOrganization
	}
	return user.OrganizationID, nil
}

func jsonResult(message string, v any) *mcp.CallToolResult {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error encoding result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message + ": "),
			mcp.NewTextContent(string(resultJSON)),
		},
	}
}

// serviceError formats a service failure with its error code so the client can tell a
// rejected request from a broken one.
func serviceError(action string, err error) *mcp.CallToolResult {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		return mcp.NewToolResultError(fmt.Sprintf("Error %s [%s]: %v", action, svcErr.Code, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Error %s: %v", action, err))
}

// parseAt reads an optional RFC 3339 timestamp, falling back to now.
func parseAt(raw string, now func() time.Time) (time.Time, error) {
	if raw == "" {
		return now(), nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("at must be an RFC 3339 timestamp: %w", err)
	}
	return at, nil
}
