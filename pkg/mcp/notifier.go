package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// ClientNotifier pushes notifications to connected clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier with MCP server notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier bound to mcpServer.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends payload to the client's session. Clients without a live
// session are skipped.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(clientID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}
