package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder turns tool arguments into an endpoint request.
type MCPDecoder func(mcp.CallToolRequest) (*MCPDecodeResult, error)

// Failer is implemented by responses that can carry a failure of their own,
// such as a file result for a file that could not be ingested.
type Failer interface {
	Failed() error
}

// RegisterMCPTool registers an Endpoint as an MCP tool on srv.
func RegisterMCPTool(srv *server.MCPServer, tool mcp.Tool, endpoint Endpoint, decode MCPDecoder) {
	srv.AddTool(tool, MCPHandler(endpoint, decode))
}

// MCPHandler adapts an Endpoint to an MCP tool handler. Responses are
// returned as JSON text. Endpoint errors become tool errors; a Failer
// response keeps its JSON body and is marked as a tool error.
func MCPHandler(endpoint Endpoint, decode MCPDecoder) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: invalid arguments: %v", req.Params.Name, err)), nil
		}
		if decoded == nil {
			decoded = &MCPDecodeResult{}
		}

		ctx = WithTransport(ctx, "mcp")
		ctx, _ = EnsureRequestID(ctx)
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
		}
		res := mcp.NewToolResultText(string(data))
		if f, ok := resp.(Failer); ok && f.Failed() != nil {
			res.IsError = true
		}
		return res, nil
	}
}
