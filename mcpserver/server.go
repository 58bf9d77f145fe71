// Package mcpserver exposes the monitor control surface as MCP tools:
// start, stop, run-now and status. The monitor handle is injected at
// construction; there is no package-level state.
package mcpserver

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anthropics/feishu-topic-monitor/internal/service"
)

// MonitorMCPServer provides MCP tools for controlling the topic monitor
type MonitorMCPServer struct {
	server  *mcp.Server
	monitor *service.MonitorService
}

// NewServer creates a new monitor MCP server bound to a monitor handle
func NewServer(monitor *service.MonitorService) *MonitorMCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "topic-monitor",
		Version: "v1.0.0",
	}, nil)

	ms := &MonitorMCPServer{
		server:  server,
		monitor: monitor,
	}
	ms.registerTools()
	return ms
}

func (s *MonitorMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "monitor_start",
		Description: "Start the topic monitor: resolve the notification target and arm the schedule.",
	}, s.handleStart)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "monitor_stop",
		Description: "Stop the topic monitor schedule. In-flight work finishes.",
	}, s.handleStop)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "monitor_run_now",
		Description: "Trigger one monitoring cycle immediately. A no-op if a cycle is already in flight.",
	}, s.handleRunNow)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "monitor_status",
		Description: "Get the monitor status: schedule, in-flight state, last cycle stats and recent alerts.",
	}, s.handleStatus)
}

// StartInput is empty - no input needed
type StartInput struct{}

// StartOutput is the output for monitor_start
type StartOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *MonitorMCPServer) handleStart(ctx context.Context, req *mcp.CallToolRequest, input StartInput) (*mcp.CallToolResult, StartOutput, error) {
	if err := s.monitor.Start(ctx); err != nil {
		return nil, StartOutput{Success: false, Message: err.Error()}, nil
	}
	return nil, StartOutput{Success: true, Message: "monitor started"}, nil
}

// StopInput is empty - no input needed
type StopInput struct{}

// StopOutput is the output for monitor_stop
type StopOutput struct {
	Success bool `json:"success"`
}

func (s *MonitorMCPServer) handleStop(ctx context.Context, req *mcp.CallToolRequest, input StopInput) (*mcp.CallToolResult, StopOutput, error) {
	s.monitor.Stop()
	return nil, StopOutput{Success: true}, nil
}

// RunNowInput is empty - no input needed
type RunNowInput struct{}

// RunNowOutput is the output for monitor_run_now
type RunNowOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *MonitorMCPServer) handleRunNow(ctx context.Context, req *mcp.CallToolRequest, input RunNowInput) (*mcp.CallToolResult, RunNowOutput, error) {
	if err := s.monitor.RunNow(); err != nil {
		return nil, RunNowOutput{Success: false, Message: err.Error()}, nil
	}
	return nil, RunNowOutput{Success: true, Message: "cycle completed"}, nil
}

// StatusInput is the input for monitor_status
type StatusInput struct {
	RecentAlerts int `json:"recent_alerts,omitempty" jsonschema:"description=How many recent alert deliveries to include (default 5)"`
}

// AlertSummary is one recent alert delivery
type AlertSummary struct {
	ChannelName string `json:"channel_name"`
	Topics      string `json:"topics"`
	MatchCount  int    `json:"match_count"`
	DeliveredAt string `json:"delivered_at"`
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
}

// StatusOutput is the output for monitor_status
type StatusOutput struct {
	Started      bool           `json:"started"`
	CycleRunning bool           `json:"cycle_running"`
	Schedule     string         `json:"schedule"`
	SkippedTicks int64          `json:"skipped_ticks"`
	LastCycle    string         `json:"last_cycle,omitempty"`
	Alerts       []AlertSummary `json:"alerts,omitempty"`
}

func (s *MonitorMCPServer) handleStatus(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	status := s.monitor.GetStatus()

	out := StatusOutput{
		Started:      status.Started,
		CycleRunning: status.InFlight,
		Schedule:     status.Schedule,
		SkippedTicks: status.SkippedTicks,
	}
	if status.LastCycle != nil {
		out.LastCycle = status.LastCycle.StartedAt.Format(time.RFC3339)
	}

	limit := input.RecentAlerts
	if limit <= 0 {
		limit = 5
	}
	if records, err := s.monitor.RecentAlerts(ctx, limit); err == nil {
		for _, rec := range records {
			out.Alerts = append(out.Alerts, AlertSummary{
				ChannelName: rec.ChannelName,
				Topics:      strings.Join(rec.Topics, ", "),
				MatchCount:  rec.MatchCount,
				DeliveredAt: rec.DeliveredAt.Format(time.RFC3339),
				OK:          rec.OK,
				Error:       rec.Error,
			})
		}
	}

	return nil, out, nil
}

// Run starts the MCP server with stdio transport
func (s *MonitorMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
