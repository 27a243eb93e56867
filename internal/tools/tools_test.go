package tools

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrg = "org-1"

var scheduleStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type testServices struct {
	templates   services.TemplateService
	vesting     services.VestingService
	revocations services.RevocationService
	txs         services.TransactionService
	chains      services.ChainService
	chain       *models.Chain
}

// setupTestServices wires the services on an in-memory database. No tool under test talks
// to a chain, so there is no chain adapter.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()

	db, err := services.NewSqliteDBService(":memory:")
	if err != nil {
		t.Fatalf("Failed to setup test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := &testServices{
		templates: services.NewTemplateService(db.GetDB()),
		chains:    services.NewChainService(db.GetDB()),
		txs:       services.NewTransactionService(db.GetDB(), logger),
	}
	svc.vesting = services.NewVestingService(db.GetDB(), svc.chains, svc.txs, nil, logger)
	svc.revocations = services.NewRevocationService(db.GetDB(), svc.chains, svc.txs, nil, logger, nil)

	svc.chain = &models.Chain{
		ChainType: models.ChainTypeEthereum,
		RPC:       "http://localhost:8545",
		NetworkID: "31337",
		Name:      "Local",
		IsActive:  true,
	}
	require.NoError(t, svc.chains.CreateChain(context.Background(), svc.chain))
	return svc
}

func orgContext(organizationID string) context.Context {
	return utils.WithAuthenticatedUser(context.Background(), &utils.AuthenticatedUser{
		Sub:            "user-1",
		OrganizationID: organizationID,
	})
}

func fixedNow() time.Time {
	return scheduleStart.Add(180 * 24 * time.Hour)
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// timeScheduleArgs is 1000 units over 360 days with a 90 day cliff, unlocking every 30 days.
func timeScheduleArgs() map[string]interface{} {
	return map[string]interface{}{
		"total_allocation":        "1000",
		"start_time":              scheduleStart.Format(time.RFC3339),
		"end_time":                scheduleStart.Add(360 * 24 * time.Hour).Format(time.RFC3339),
		"cliff_seconds":           90 * 24 * 3600,
		"unlock_interval_seconds": 30 * 24 * 3600,
	}
}

func milestoneScheduleArgs() map[string]interface{} {
	return map[string]interface{}{
		"total_allocation": "1000",
		"milestones": []interface{}{
			map[string]interface{}{"name": "Launch", "type": "EVENT", "allocation": "40", "allocation_type": "PERCENT", "sequence": 1},
			map[string]interface{}{"name": "Audit", "type": "EVENT", "allocation": "60", "allocation_type": "PERCENT", "sequence": 2},
		},
	}
}

// decodeResult checks the result is a success and decodes its JSON payload.
func decodeResult(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	require.NotNil(t, result)
	require.False(t, result.IsError, "unexpected tool error: %v", result.Content)
	require.Len(t, result.Content, 2)
	textContent, ok := result.Content[1].(mcp.TextContent)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(textContent.Text), v))
}

func errorText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.True(t, result.IsError)
	require.NotEmpty(t, result.Content)
	textContent, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return textContent.Text
}

func createTemplate(t *testing.T, svc *testServices, name string, details map[string]interface{}) string {
	t.Helper()
	tool := NewCreateTemplateTool(svc.templates)
	result, err := tool.GetHandler()(orgContext(testOrg), callRequest(map[string]interface{}{
		"name":     name,
		"schedule": details,
	}))
	require.NoError(t, err)

	var template models.VestingTemplate
	decodeResult(t, result, &template)
	return template.ID
}

func createDraft(t *testing.T, svc *testServices, templateID string) string {
	t.Helper()
	tool := NewCreateVestingDraftTool(svc.vesting)
	result, err := tool.GetHandler()(orgContext(testOrg), callRequest(map[string]interface{}{
		"template_id": templateID,
		"chain_id":    svc.chain.ID,
		"name":        "Team vesting",
	}))
	require.NoError(t, err)

	var contract models.VestingContract
	decodeResult(t, result, &contract)
	return contract.ID
}

func TestNewListChainsTool(t *testing.T) {
	svc := setupTestServices(t)
	tool, handler := NewListChainsTool(svc.chains)

	assert.Equal(t, "list_chains", tool.Name)
	assert.Contains(t, tool.InputSchema.Properties, "chain_type")

	result, err := handler(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	var response struct {
		Chains      []map[string]any `json:"chains"`
		Total       int              `json:"total"`
		ActiveChain map[string]any   `json:"active_chain"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &response))
	assert.Equal(t, 1, response.Total)
	assert.Equal(t, "Local", response.ActiveChain["name"])

	result, err = handler(context.Background(), callRequest(map[string]interface{}{"chain_type": "solana"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &response))
	assert.Equal(t, 0, response.Total)
}

func TestPreviewScheduleHandler_TimeSchedule(t *testing.T) {
	tool := NewPreviewScheduleTool(fixedNow)
	assert.Equal(t, "preview_schedule", tool.GetTool().Name)

	result, err := tool.GetHandler()(context.Background(), callRequest(map[string]interface{}{
		"schedule": timeScheduleArgs(),
	}))
	require.NoError(t, err)

	var preview map[string]any
	decodeResult(t, result, &preview)
	assert.Equal(t, "time", preview["kind"])
	assert.Equal(t, "500", preview["vested"])
	assert.Equal(t, "500", preview["unvested"])
}

func TestPreviewScheduleHandler_BeforeCliff(t *testing.T) {
	tool := NewPreviewScheduleTool(fixedNow)

	result, err := tool.GetHandler()(context.Background(), callRequest(map[string]interface{}{
		"schedule": timeScheduleArgs(),
		"at":       scheduleStart.Add(89 * 24 * time.Hour).Format(time.RFC3339),
	}))
	require.NoError(t, err)

	var preview map[string]any
	decodeResult(t, result, &preview)
	assert.Equal(t, "0", preview["vested"])
	assert.Equal(t, "1000", preview["unvested"])
}

func TestPreviewScheduleHandler_Milestones(t *testing.T) {
	tool := NewPreviewScheduleTool(fixedNow)

	result, err := tool.GetHandler()(context.Background(), callRequest(map[string]interface{}{
		"schedule": milestoneScheduleArgs(),
		"achieved": []interface{}{1},
	}))
	require.NoError(t, err)

	var preview map[string]any
	decodeResult(t, result, &preview)
	assert.Equal(t, "milestone", preview["kind"])
	assert.Equal(t, "400", preview["vested"])

	result, err = tool.GetHandler()(context.Background(), callRequest(map[string]interface{}{
		"schedule": milestoneScheduleArgs(),
		"achieved": []interface{}{7},
	}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "no milestone with sequence 7")
}

func TestPreviewScheduleHandler_InvalidSchedule(t *testing.T) {
	tool := NewPreviewScheduleTool(fixedNow)

	details := timeScheduleArgs()
	details["end_time"] = scheduleStart.Add(-time.Hour).Format(time.RFC3339)

	result, err := tool.GetHandler()(context.Background(), callRequest(map[string]interface{}{
		"schedule": details,
	}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "invalid schedule")

	result, err = tool.GetHandler()(context.Background(), callRequest(map[string]interface{}{
		"schedule": timeScheduleArgs(),
		"at":       "yesterday",
	}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "RFC 3339")
}

func TestListPendingTransactionsHandler(t *testing.T) {
	svc := setupTestServices(t)
	tool, handler := NewListPendingTransactionsTool(svc.txs)
	assert.Equal(t, "list_pending_transactions", tool.Name)

	for i, org := range []string{testOrg, testOrg, testOrg, "org-2"} {
		_, err := svc.txs.Submit(context.Background(), services.SubmitTransactionRequest{
			Type:           models.TransactionTypeVestingDeployment,
			ChainID:        svc.chain.ID,
			Hash:           "0x" + string(rune('a'+i)),
			OrganizationID: org,
		})
		require.NoError(t, err)
	}

	result, err := handler(orgContext(testOrg), callRequest(map[string]interface{}{"limit": 2}))
	require.NoError(t, err)

	var response struct {
		Transactions []map[string]any `json:"transactions"`
		Count        int              `json:"count"`
		Truncated    bool             `json:"truncated"`
	}
	decodeResult(t, result, &response)
	assert.Equal(t, 2, response.Count)
	assert.True(t, response.Truncated)
	assert.Equal(t, "0xa", response.Transactions[0]["hash"])

	result, err = handler(orgContext(testOrg), callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	decodeResult(t, result, &response)
	assert.Equal(t, 3, response.Count)
	assert.False(t, response.Truncated)
}

func TestToolsRequireOrganization(t *testing.T) {
	svc := setupTestServices(t)
	_, handler := NewListPendingTransactionsTool(svc.txs)

	result, err := handler(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, result), "no organization")
}
