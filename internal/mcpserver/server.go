// Package mcpserver exposes the intake engine as MCP tools over stdio so
// coordination agents can submit and query requests without the HTTP API.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/wh0th3h3llam1/agent-aid/internal/geo"
	"github.com/wh0th3h3llam1/agent-aid/internal/intake"
	"github.com/wh0th3h3llam1/agent-aid/internal/models"
	"github.com/wh0th3h3llam1/agent-aid/internal/similarity"
)

// Config identifies the server to MCP clients.
type Config struct {
	Name    string
	Version string
}

// Server bridges MCP tool calls to the engine.
type Server struct {
	server *mcp.Server
	engine *intake.Engine
	log    *zap.Logger
}

// NewServer registers the aid_* tools on a fresh MCP server.
func NewServer(cfg Config, engine *intake.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "agentaid"
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: name, Version: cfg.Version}, nil),
		engine: engine,
		log:    log.Named("mcp"),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "aid_submit",
		Description: "Submit a free-text disaster relief report. Returns either the committed request or a follow-up question with a session id to resume.",
	}, s.handleSubmit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "aid_search_similar",
		Description: "Find committed relief requests similar to a free-text query.",
	}, s.handleSearchSimilar)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "aid_nearby",
		Description: "List committed relief requests within a radius of a coordinate, closest first.",
	}, s.handleNearby)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "aid_pending",
		Description: "List relief requests still waiting for an agent to claim them.",
	}, s.handlePending)

	return s
}

// Run serves MCP over stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

type submitInput struct {
	Input     string `json:"input" jsonschema:"the free-text relief report or follow-up answer"`
	SessionID string `json:"session_id,omitempty" jsonschema:"session id from a previous follow-up, if resuming"`
	Source    string `json:"source,omitempty" jsonschema:"intake channel label, defaults to mcp"`
}

func (s *Server) handleSubmit(ctx context.Context, req *mcp.CallToolRequest, in submitInput) (*mcp.CallToolResult, *intake.TurnResult, error) {
	if strings.TrimSpace(in.Input) == "" {
		return nil, nil, fmt.Errorf("input is required")
	}
	source := in.Source
	if source == "" {
		source = "mcp"
	}

	res, err := s.engine.Process(ctx, in.Input, in.SessionID, source)
	if err != nil {
		return nil, nil, err
	}
	return nil, res, nil
}

type searchInput struct {
	Query string `json:"query" jsonschema:"free-text description of the need to match against"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results, defaults to 5"`
}

type searchOutput struct {
	Results []similarity.Result `json:"results"`
	Count   int                 `json:"count"`
}

func (s *Server) handleSearchSimilar(ctx context.Context, req *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, *searchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, nil, fmt.Errorf("query is required")
	}
	results, err := s.engine.SearchSimilar(in.Query, in.Limit)
	if err != nil {
		return nil, nil, err
	}
	return nil, &searchOutput{Results: results, Count: len(results)}, nil
}

type nearbyInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radius_km,omitempty" jsonschema:"search radius in kilometers, defaults to the server radius"`
}

type nearbyOutput struct {
	Matches []geo.Match `json:"matches"`
	Count   int         `json:"count"`
}

func (s *Server) handleNearby(ctx context.Context, req *mcp.CallToolRequest, in nearbyInput) (*mcp.CallToolResult, *nearbyOutput, error) {
	matches := s.engine.Nearby(in.Latitude, in.Longitude, in.RadiusKm)
	return nil, &nearbyOutput{Matches: matches, Count: len(matches)}, nil
}

type pendingInput struct{}

type pendingOutput struct {
	Requests []*models.DisasterRequest `json:"requests"`
	Count    int                       `json:"count"`
}

func (s *Server) handlePending(ctx context.Context, req *mcp.CallToolRequest, in pendingInput) (*mcp.CallToolResult, *pendingOutput, error) {
	pending := s.engine.Requests().ListPending()
	return nil, &pendingOutput{Requests: pending, Count: len(pending)}, nil
}
