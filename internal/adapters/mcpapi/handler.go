// Package mcpapi exposes the synchronized review cache to agent tooling over
// a stateless MCP streamable-HTTP surface. The tools are read-only: agents
// can inspect the queue and read notes, never write through the cache.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// ErrUnknownSubmission marks a notes request for an id the cache has never
// seen.
var ErrUnknownSubmission = errors.New("unknown submission")

// QueueReader is the read-only cache view the tools serve from.
type QueueReader interface {
	CaptureQueue(context.Context) (QueueCapture, error)
	ListNotes(context.Context, int) ([]NoteCapture, error)
}

// QueueCapture is one point-in-time snapshot of the grouped review queue.
type QueueCapture struct {
	CapturedAt time.Time          `json:"captured_at"`
	Statuses   []string           `json:"statuses"`
	Groups     []GroupCapture     `json:"groups"`
	Fetch      FetchStateCapture  `json:"fetch"`
	External   []ExternalChange   `json:"external_changes,omitempty"`
}

// GroupCapture is one rendered group of the queue.
type GroupCapture struct {
	Key         string              `json:"key"`
	Display     string              `json:"display"`
	Submissions []SubmissionCapture `json:"submissions"`
}

// SubmissionCapture is one submission row in a capture.
type SubmissionCapture struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Round  *int   `json:"round,omitempty"`
}

// FetchStateCapture summarizes the listing fetch lifecycle for agents.
type FetchStateCapture struct {
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
}

// ExternalChange reports a status change observed from polling that did not
// originate in this session.
type ExternalChange struct {
	SubmissionID int    `json:"submission_id"`
	NewStatus    string `json:"new_status"`
}

// NoteCapture is one note row in a capture, newest-first.
type NoteCapture struct {
	ID        int        `json:"id"`
	Author    string     `json:"author"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Edited    *time.Time `json:"edited,omitempty"`
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds the read-only MCP adapter over a queue reader.
func NewHandler(cfg Config, reader QueueReader) (*Handler, error) {
	if reader == nil {
		return nil, fmt.Errorf("queue reader is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerCaptureQueueTool(mcpSrv, reader)
	registerListNotesTool(mcpSrv, reader)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "ansok"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerCaptureQueueTool registers the `ansok.capture_queue` tool.
func registerCaptureQueueTool(srv *mcpserver.MCPServer, reader QueueReader) {
	srv.AddTool(
		mcp.NewTool(
			"ansok.capture_queue",
			mcp.WithDescription("Return the grouped review queue as currently synchronized from the review service."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			capture, err := reader.CaptureQueue(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(capture)
			if err != nil {
				return nil, fmt.Errorf("encode capture_queue result: %w", err)
			}
			return result, nil
		},
	)
}

// registerListNotesTool registers the `ansok.list_notes` tool.
func registerListNotesTool(srv *mcpserver.MCPServer, reader QueueReader) {
	srv.AddTool(
		mcp.NewTool(
			"ansok.list_notes",
			mcp.WithDescription("List the cached reviewer notes for one submission, newest first."),
			mcp.WithNumber("submission_id", mcp.Required(), mcp.Description("Submission identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			submissionID, err := req.RequireInt("submission_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			notes, err := reader.ListNotes(ctx, submissionID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"notes": notes,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_notes result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps reader errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, ErrUnknownSubmission):
		return mcp.NewToolResultError("not_found: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
