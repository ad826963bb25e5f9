package mcp

import (
	"strconv"

	"github.com/mark3labs/mcp-go/server"

	"microturk-backend/services"
	mstore "microturk-backend/storage/marketplace"
)

// MCPServer wraps the mcp-go server with our business logic
type MCPServer struct {
	mcpServer *server.MCPServer
	store     mstore.Store
	payouts   *services.PayoutService
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(store mstore.Store, payouts *services.PayoutService) *MCPServer {
	mcpServer := server.NewMCPServer(
		"MicroTurk MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		store:     store,
		payouts:   payouts,
	}

	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all MCP tools with the server
func (s *MCPServer) registerTools() {
	s.registerNextTaskTool()
	s.registerSubmitLabelTool()
	s.registerGetBalanceTool()
	s.registerRequestPayoutTool()
	s.registerGetTaskStatsTool()
}

// toInt64 safely converts interface{} to int64
func toInt64(val interface{}) int64 {
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	if f, ok := val.(float64); ok {
		return int64(f)
	}
	if str, ok := val.(string); ok {
		if i, err := strconv.ParseInt(str, 10, 64); err == nil {
			return i
		}
	}
	return 0
}
