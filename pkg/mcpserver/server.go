// Package mcpserver exports an action registry as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/errmodel"
	"github.com/wilhg/sherpa/pkg/logging"
)

// Server serves the actions of a registry over MCP.
type Server struct {
	srv    *mcp.Server
	mem    action.Memory
	logger logging.Logger
	names  []string
}

type Option func(*Server)

// WithMemory supplies belief-sourced arguments of exported actions. Without
// it actions that read the belief are not exported.
func WithMemory(m action.Memory) Option { return func(s *Server) { s.mem = m } }

func WithLogger(l logging.Logger) Option { return func(s *Server) { s.logger = logging.OrNoOp(l) } }

// New registers every action of reg as a tool named after it.
func New(reg *action.Registry, version string, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("mcpserver: registry is nil")
	}
	s := &Server{logger: logging.NoOpLogger{}}
	for _, o := range opts {
		o(s)
	}
	s.srv = mcp.NewServer(&mcp.Implementation{Name: "sherpa", Version: version}, nil)
	for _, a := range reg.List() {
		schema, ok := s.inputSchema(a)
		if !ok {
			s.logger.Warn("not exporting action that reads the belief", "action", a.Name())
			continue
		}
		s.srv.AddTool(&mcp.Tool{Name: a.Name(), Description: a.Usage(), InputSchema: schema}, s.handler(a))
		s.names = append(s.names, a.Name())
	}
	return s, nil
}

// Tools returns the exported tool names.
func (s *Server) Tools() []string { return append([]string(nil), s.names...) }

// Run serves a single transport until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error { return s.srv.Run(ctx, t) }

// Connect starts a session on t without blocking.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

// inputSchema returns the object schema remote callers fill in. Arguments the
// action reads from the belief are left out and resolved from the server's
// memory.
func (s *Server) inputSchema(a action.Action) (*jsonschema.Schema, bool) {
	if sch, ok := a.(action.Schemed); ok {
		var out jsonschema.Schema
		if err := json.Unmarshal(sch.InputSchema(), &out); err == nil && out.Type == "object" {
			return &out, true
		}
	}
	var caller []action.ArgumentSpec
	for _, arg := range a.Arguments() {
		if arg.FromBelief() {
			if s.mem == nil {
				return nil, false
			}
			continue
		}
		caller = append(caller, arg)
	}
	return action.ArgumentSchema(caller), true
}

func (s *Server) handler(a action.Action) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return failure(errmodel.Validation(errmodel.CodeInvalidInput, "arguments must be a JSON object", nil), nil), nil
			}
		}
		out, resolved, err := action.Invoke(ctx, a, args, s.mem)
		if err != nil {
			s.logger.Warn("tool call failed", "tool", a.Name(), "error", err)
			return failure(err, resolved), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: action.FormatOutput(out)}}}, nil
	}
}

func failure(err error, args map[string]any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: errmodel.Observation(err, args)}},
	}
}
