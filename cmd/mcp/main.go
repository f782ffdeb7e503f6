// TravelProof MCP Server - exposes purchase preview, authorization and
// challenge answers for one cardholder session as MCP tools
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaineelmodi11/KingsHacks/internal/logging"
	"github.com/jaineelmodi11/KingsHacks/internal/mcpserver"
)

func main() {
	_ = godotenv.Load()
	// stdout carries the protocol
	logger := logging.NewWriter(os.Stderr, os.Getenv("LOG_LEVEL"), "text")

	cfg := mcpserver.Config{
		APIURL:    envOrDefault("TRAVELPROOF_API_URL", "http://localhost:8080"),
		APIKey:    os.Getenv("TRAVELPROOF_API_KEY"),
		SessionID: os.Getenv("TRAVELPROOF_SESSION_ID"),
	}
	if cfg.SessionID == "" {
		logger.Error("TRAVELPROOF_SESSION_ID is required")
		os.Exit(1)
	}

	logger.Info("serving MCP over stdio", "api_url", cfg.APIURL, "session_id", cfg.SessionID)
	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
