package helper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zhaopengme/browser-agent-extension/internal/protocol"
)

// genericObjectSchema is deliberately permissive and shared by every
// tool. No per-action param shape is declared anywhere: the side panel
// checks only that the action is in the catalog and that params decode
// as a JSON object, and the executor interprets the individual fields.
var genericObjectSchema = json.RawMessage(`{"type":"object","additionalProperties":true}`)

// serveMCP builds the stdio MCP surface — one tool per catalog action
// plus the status tool — and blocks serving it until ctx ends.
func (h *Helper) serveMCP(ctx context.Context) error {
	srv := mcpserver.NewMCPServer(
		"browser-agent",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	descriptions := toolDescriptions()
	for name, desc := range descriptions {
		srv.AddTool(mcp.NewToolWithRawSchema(name, desc, genericObjectSchema), h.handlerFor(name))
	}
	srv.AddTool(
		mcp.NewToolWithRawSchema(protocol.StatusToolName, "Report whether the browser extension is currently reachable.", genericObjectSchema),
		h.handleStatus,
	)

	return mcpserver.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout)
}

func toolDescriptions() map[string]string {
	descs := make(map[string]string)
	for _, name := range protocol.ToolNames() {
		if name == protocol.StatusToolName {
			continue
		}
		action, _ := protocol.ActionFor(name)
		descs[name] = fmt.Sprintf("Invoke the %q browser action via the connected extension.", action)
	}
	return descs
}

func (h *Helper) handlerFor(toolName string) mcpserver.ToolHandlerFunc {
	action, _ := protocol.ActionFor(toolName)
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		tabID, _ := args["tabId"].(string)
		delete(args, "tabId")

		data, err := h.callAction(ctx, action, tabID, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(err.Error())},
				IsError: true,
			}, nil
		}
		return resultToContent(action, data), nil
	}
}

func (h *Helper) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	connected, mode, sessionID := h.connectionStatus(ctx)
	payload := map[string]any{"connected": connected, "mode": string(mode)}
	if sessionID != "" {
		payload["sessionId"] = sessionID
	} else {
		payload["sessionId"] = nil
	}
	raw, _ := json.Marshal(payload)
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(raw))}}, nil
}

// resultToContent implements §4.4's screenshot re-wrapping rule: a
// screenshot result carrying a base64 image blob becomes MCP image
// content; everything else is stringified JSON.
func resultToContent(action protocol.Action, data json.RawMessage) *mcp.CallToolResult {
	if action == protocol.ActionScreenshot {
		var shot struct {
			Data     string `json:"data"`
			MimeType string `json:"mimeType"`
		}
		if err := json.Unmarshal(data, &shot); err == nil && shot.Data != "" {
			mime := shot.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewImageContent(shot.Data, mime)}}
		}
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(data))}}
}

