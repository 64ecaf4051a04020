package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ibmi-mcp/db2i-mcp-gateway/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// toolURIPrefix and toolsetURIPrefix are the stable namespaces every
// surfaced resource lives under, per spec.md §6's requirement that
// resources/list and resources/read expose tools/toolsets under a stable
// URI scheme.
const (
	toolURIPrefix    = "tool://"
	toolsetURIPrefix = "toolset://"
)

// toolListing is one entry in the JSON body of the "tool://all" and
// "toolset://<name>" catalog resources, one per listed tool: enough for an
// agent to decide which tool to call without having already seen tools/list.
type toolListing struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Toolsets    []string `json:"toolsets,omitempty"`
	ReadOnly    bool     `json:"readOnly"`
}

// registerResources publishes one catalog resource per known toolset plus
// a top-level "all tools" catalog, each read back as a JSON document.
// Grounded on the teacher's internal/server/resources.go
// (registerBuiltinResources: one mcp.Resource per logical document,
// ReadResourceHandlerFunc returning its JSON-marshaled contents).
func (s *Server) registerResources(srv *mcpserver.MCPServer, reg *registry.Registry) {
	srv.AddResource(
		mcp.NewResource(toolURIPrefix+"all", "All registered tools",
			mcp.WithResourceDescription("Catalog of every enabled, registered SQL tool."),
			mcp.WithMIMEType("application/json"),
		),
		s.readAllToolsResource,
	)

	toolsets := map[string]bool{}
	for _, name := range reg.Names() {
		desc, ok := reg.Get(name)
		if !ok {
			continue
		}
		for _, ts := range desc.Annotations.Toolsets {
			if toolsets[ts] {
				continue
			}
			toolsets[ts] = true
			uri := toolsetURIPrefix + ts
			srv.AddResource(
				mcp.NewResource(uri, "Toolset: "+ts,
					mcp.WithResourceDescription("Tools belonging to the \""+ts+"\" toolset."),
					mcp.WithMIMEType("application/json"),
				),
				s.readToolsetResource(ts),
			)
		}
	}
}

func (s *Server) readAllToolsResource(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reg := s.watcher.Current()
	return toolListingContents(req.Params.URI, reg, reg.Names())
}

func (s *Server) readToolsetResource(toolset string) mcpserver.ResourceHandlerFunc {
	return func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		reg := s.watcher.Current()
		var names []string
		for _, name := range reg.Names() {
			desc, ok := reg.Get(name)
			if !ok {
				continue
			}
			for _, ts := range desc.Annotations.Toolsets {
				if ts == toolset {
					names = append(names, name)
					break
				}
			}
		}
		return toolListingContents(req.Params.URI, reg, names)
	}
}

func toolListingContents(uri string, reg *registry.Registry, names []string) ([]mcp.ResourceContents, error) {
	listing := make([]toolListing, 0, len(names))
	for _, name := range names {
		desc, ok := reg.Get(name)
		if !ok {
			continue
		}
		listing = append(listing, toolListing{
			Name:        desc.Name,
			Description: desc.Description,
			Toolsets:    desc.Annotations.Toolsets,
			ReadOnly:    desc.Annotations.ReadOnlyHint,
		})
	}
	data, err := json.MarshalIndent(listing, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool listing: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
