// Package mcp exposes Waypoint's operations to AI agents over the Model
// Context Protocol. Tools cover the registry, event log, checkpoints, the
// command log, and resume; resources expose read-only instance listings.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
	"github.com/waypointhq/waypoint/internal/domain/resume"
	"github.com/waypointhq/waypoint/internal/service"
)

// InstanceRegistry is the subset of the registry service the tools need.
type InstanceRegistry interface {
	Register(ctx context.Context, req *instance.RegisterRequest) (*instance.Instance, error)
	Heartbeat(ctx context.Context, req *instance.HeartbeatRequest) (*service.HeartbeatResult, error)
	List(ctx context.Context, project string, includeClosed bool) ([]instance.Instance, error)
	ListStale(ctx context.Context) ([]instance.Instance, error)
	GetDetails(ctx context.Context, idOrFragment string) (*instance.Instance, error)
	Close(ctx context.Context, id string) (*instance.Instance, error)
}

// EventLog is the subset of the event service the tools need.
type EventLog interface {
	Emit(ctx context.Context, instanceID string, t event.Type, payload, metadata json.RawMessage) (*event.InstanceEvent, error)
	Query(ctx context.Context, filter event.Filter) ([]event.InstanceEvent, error)
	Replay(ctx context.Context, instanceID string, upToSequence int64) ([]event.InstanceEvent, error)
	ListTypes() []string
	AggregateByType(ctx context.Context, instanceID string) (map[event.Type]int, error)
}

// CheckpointManager is the subset of the checkpoint service the tools need.
type CheckpointManager interface {
	Create(ctx context.Context, req *checkpoint.CreateRequest) (*checkpoint.Checkpoint, error)
	Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error)
	ListForInstance(ctx context.Context, instanceID string, limit int) ([]checkpoint.Checkpoint, error)
	Cleanup(ctx context.Context, policy checkpoint.RetentionPolicy) (int, error)
}

// CommandLog is the subset of the command log service the tools need.
type CommandLog interface {
	Log(ctx context.Context, e *command.Entry) (*command.Entry, error)
	Search(ctx context.Context, filter command.Filter) ([]command.Entry, error)
	StatsFor(ctx context.Context, instanceID string) (*command.Stats, error)
}

// Resumer is the subset of the resume engine the tools need.
type Resumer interface {
	Resume(ctx context.Context, hint string, choice *int) (*resume.Result, error)
	Details(ctx context.Context, instanceID string) (*service.RecoveryDetails, error)
}

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps holds the service dependencies the tools call into.
// Nil fields make the corresponding tools return an error result.
type ServerDeps struct {
	Registry    InstanceRegistry
	Events      EventLog
	Checkpoints CheckpointManager
	Commands    CommandLog
	Resume      Resumer
}

// Server hosts the MCP server over streamable HTTP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
	listener  net.Listener
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start begins serving MCP over HTTP. Binding errors are returned
// synchronously; the accept loop runs in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	handler := AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
	s.httpSrv = &http.Server{Handler: handler}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("mcp server failed", "error", err)
		}
	}()

	slog.Info("mcp server listening", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the MCP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
