package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all TravelProof tools
// registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("travelproof", "0.1.0", server.WithToolCapabilities(false))
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolPreviewPurchase, h.HandlePreviewPurchase)
	s.AddTool(ToolAuthorizePayment, h.HandleAuthorizePayment)
	s.AddTool(ToolVerifyChallenge, h.HandleVerifyChallenge)
	s.AddTool(ToolListCards, h.HandleListCards)
	s.AddTool(ToolGetPersonalization, h.HandleGetPersonalization)
	s.AddTool(ToolListPayments, h.HandleListPayments)

	return s
}
