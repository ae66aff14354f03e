package api

import (
	"log/slog"

	"github.com/hazyhaar/supplier-ingest/pkg/kit"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers the ingestion tools on the server.
func RegisterMCPTools(srv *server.MCPServer, runner *pipeline.Runner, logger *slog.Logger) {
	ep := newEndpoints(runner, logger)

	kit.RegisterMCPTool(srv, mcp.NewTool("list_profiles",
		mcp.WithDescription("List the supplier profiles known to the ingester, in detection order."),
	), ep.listProfiles, func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("detect_provider",
		mcp.WithDescription("Detect which supplier profile a price-list file name belongs to."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name, e.g. 'PVP BSH 2024.xlsx'")),
	), ep.detectProvider, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		name, _ := req.GetArguments()["filename"].(string)
		return &kit.MCPDecodeResult{Request: &detectReq{Filename: name}}, nil
	})

	kit.RegisterMCPTool(srv, mcp.NewTool("ingest_file",
		mcp.WithDescription("Ingest a local CSV or XLSX price list and return canonical products, duplicates and the row summary."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the file on the server")),
	), ep.ingestFile, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		path, _ := req.GetArguments()["path"].(string)
		return &kit.MCPDecodeResult{Request: &ingestReq{Path: path}}, nil
	})
}
