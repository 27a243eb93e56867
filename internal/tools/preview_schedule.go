package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/vesting-mcp/internal/schedule"
)

type previewScheduleTool struct {
	now func() time.Time
}

type PreviewScheduleArguments struct {
	Schedule schedule.Details `json:"schedule"`
	At       string           `json:"at,omitempty"`
	Achieved []int            `json:"achieved,omitempty"`
}

// NewPreviewScheduleTool validates a schedule and computes its vested split without storing
// anything.
func NewPreviewScheduleTool(now func() time.Time) *previewScheduleTool {
	return &previewScheduleTool{now: now}
}

func (p *previewScheduleTool) GetTool() mcp.Tool {
	return mcp.NewTool("preview_schedule",
		mcp.WithDescription("Validate a vesting schedule and compute how much of its total allocation is vested at a point in time. Same schedule format as create_template. Nothing is stored."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithObject("schedule",
			mcp.Required(),
			mcp.Description("Schedule object in the create_template format"),
		),
		mcp.WithString("at",
			mcp.Description("RFC 3339 time to compute at (default: now)"),
		),
		mcp.WithArray("achieved",
			mcp.Description("Sequences of EVENT milestones to treat as achieved"),
			mcp.Items(map[string]any{"type": "number"}),
		),
	)
}

func (p *previewScheduleTool) GetHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args PreviewScheduleArguments
		if err := request.BindArguments(&args); err != nil {
			return nil, fmt.Errorf("failed to bind arguments: %w", err)
		}

		at, err := parseAt(args.At, p.now)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		def, err := schedule.Parse(args.Schedule)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		for _, sequence := range args.Achieved {
			if !def.HasMilestone(sequence) {
				return mcp.NewToolResultError(fmt.Sprintf("schedule has no milestone with sequence %d", sequence)), nil
			}
		}
		achieved := append(def.AchievedByTime(at), args.Achieved...)

		amount, err := schedule.ComputeVested(def, schedule.Reference{At: at, Achieved: achieved})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult("Schedule preview", map[string]any{
			"kind":     def.Kind().String(),
			"at":       at.UTC(),
			"total":    def.Total().String(),
			"vested":   amount.Vested.String(),
			"unvested": amount.Unvested.String(),
		}), nil
	}
}
