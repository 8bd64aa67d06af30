package mcpadapter

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/shiftlog-retrieval/internal/core/ports"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server exposes shift-report retrieval to an external reasoning service.
type Server struct {
	retriever ports.Retriever
	maxK      int
	mcp       *server.MCPServer
}

func NewServer(retriever ports.Retriever, maxK int) *Server {
	if maxK <= 0 {
		maxK = 50
	}
	s := &Server{
		retriever: retriever,
		maxK:      maxK,
	}
	s.mcp = server.NewMCPServer(
		"shiftlog-retrieval",
		Version,
		server.WithToolCapabilities(false),
	)
	s.mcp.AddTool(retrieveDocumentsTool, s.handleRetrieveDocuments)
	s.mcp.AddTool(listReportDatesTool, s.handleListReportDates)
	return s
}

// Serve runs on stdio. Stdout carries protocol messages only.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
