// Package mcpserver wires ToolSurface onto the official MCP Go SDK's
// streamable-HTTP handler: one mcp.Server, one set of mcp.AddTool
// registrations, one NewStreamableHTTPHandler mounted under gin via
// gin.WrapH.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/loopwire/termsession/src/toolsurface"
)

// Server hosts the MCP tool surface over streamable HTTP.
type Server struct {
	mcpServer *mcp.Server
	surface   *toolsurface.Surface
}

// NewServer builds the MCP server and registers every terminal operation
// as a named tool.
func NewServer(surface *toolsurface.Surface) (*Server, error) {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Terminal Session Manager",
		Version: "1.0.0",
	}, nil)

	s := &Server{mcpServer: mcpServer, surface: surface}
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Mount attaches the streamable HTTP handler under /mcp on the given gin
// engine.
func (s *Server) Mount(engine *gin.Engine) {
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	engine.Any("/mcp/*path", gin.WrapH(http.StripPrefix("/mcp", handler)))
	engine.Any("/mcp", gin.WrapH(handler))
	logrus.Info("MCP HTTP endpoints configured at /mcp")
}

// logToolCall wraps a tool handler with timing/logging middleware.
func logToolCall[T any, R any](toolName string, handler func(ctx context.Context, req *mcp.CallToolRequest, args T) (*mcp.CallToolResult, R, error)) func(context.Context, *mcp.CallToolRequest, T) (*mcp.CallToolResult, R, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args T) (*mcp.CallToolResult, R, error) {
		start := time.Now()
		result, output, err := handler(ctx, req, args)
		duration := time.Since(start)
		if err != nil {
			logrus.WithFields(logrus.Fields{"tool": toolName, "duration": duration}).Errorf("tool call failed: %v", err)
			if err.Error() == "" {
				err = fmt.Errorf("tool %s failed with unknown error", toolName)
			}
		} else {
			logrus.WithFields(logrus.Fields{"tool": toolName, "duration": duration}).Info("tool call completed")
		}
		return result, output, err
	}
}
