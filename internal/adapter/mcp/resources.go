package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"waypoint://instances",
			"Instance List",
			mcplib.WithResourceDescription("All registered instances with derived statuses"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleInstancesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"waypoint://instances/stale",
			"Stale Instances",
			mcplib.WithResourceDescription("Instances past the staleness threshold, candidates for resume"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStaleInstancesResource,
	)
}

func (s *Server) handleInstancesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Registry == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"registry not configured"}`,
			},
		}, nil
	}
	list, err := s.deps.Registry.List(ctx, "", false)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleStaleInstancesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Registry == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"registry not configured"}`,
			},
		}, nil
	}
	list, err := s.deps.Registry.ListStale(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
