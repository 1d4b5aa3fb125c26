// Package mcpclient connects to MCP servers and exposes their tools as
// actions.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/errmodel"
	"github.com/wilhg/sherpa/pkg/logging"
)

// ErrNotConnected is returned when a session is used before Connect or after
// Close.
var ErrNotConnected = errors.New("mcpclient: session not connected")

// Session is one connection to an MCP server.
type Session struct {
	transport mcp.Transport
	client    *mcp.Client
	logger    logging.Logger

	mu sync.Mutex
	cs *mcp.ClientSession
}

type Option func(*Session)

func WithLogger(l logging.Logger) Option { return func(s *Session) { s.logger = logging.OrNoOp(l) } }

// New prepares a session over t. Nothing is started until Connect.
func New(t mcp.Transport, version string, opts ...Option) *Session {
	s := &Session{
		transport: t,
		client:    mcp.NewClient(&mcp.Implementation{Name: "sherpa", Version: version}, nil),
		logger:    logging.NoOpLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Command returns a transport that runs a server as a subprocess speaking
// MCP over stdio.
func Command(name string, args ...string) mcp.Transport {
	return &mcp.CommandTransport{Command: exec.Command(name, args...)}
}

// Connect performs the MCP handshake. Connecting twice is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cs != nil {
		return nil
	}
	cs, err := s.client.Connect(ctx, s.transport, nil)
	if err != nil {
		return errmodel.Tool(fmt.Sprintf("mcp connect: %v", err), nil, err)
	}
	s.cs = cs
	s.logger.Info("mcp session connected")
	return nil
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	cs := s.cs
	s.cs = nil
	s.mu.Unlock()
	if cs == nil {
		return nil
	}
	return cs.Close()
}

func (s *Session) session() (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cs == nil {
		return nil, ErrNotConnected
	}
	return s.cs, nil
}

// Actions lists the server's tools as actions bound to this session.
func (s *Session) Actions(ctx context.Context) ([]action.Action, error) {
	cs, err := s.session()
	if err != nil {
		return nil, err
	}
	var out []action.Action
	params := &mcp.ListToolsParams{}
	for {
		res, err := cs.ListTools(ctx, params)
		if err != nil {
			return nil, errmodel.Tool(fmt.Sprintf("mcp list tools: %v", err), nil, err)
		}
		for _, t := range res.Tools {
			a, err := newTool(s, t)
			if err != nil {
				s.logger.Warn("skipping mcp tool", "tool", t.Name, "error", err)
				continue
			}
			out = append(out, a)
		}
		if res.NextCursor == "" {
			return out, nil
		}
		params.Cursor = res.NextCursor
	}
}

// CallTool calls a remote tool. Tool-level failures are returned as errors
// carrying the server's message.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	cs, err := s.session()
	if err != nil {
		return nil, err
	}
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	text := contentText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, errors.New(text)
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return text, nil
}

// Use connects, hands the session's actions to fn and closes the session
// whatever fn returns.
func Use(ctx context.Context, s *Session, fn func(context.Context, []action.Action) error) (err error) {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	actions, err := s.Actions(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, actions)
}

func contentText(cs []mcp.Content) string {
	var parts []string
	for _, c := range cs {
		if t, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Tool is a remote MCP tool usable as an action.
type Tool struct {
	action.Base
	session *Session
	schema  []byte
}

var _ action.Schemed = (*Tool)(nil)

func newTool(s *Session, t *mcp.Tool) (*Tool, error) {
	schema := []byte(`{"type":"object"}`)
	if t.InputSchema != nil {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, err
		}
		schema = b
	}
	if err := action.CompileJSONSchema(schema); err != nil {
		return nil, err
	}
	usage := t.Description
	if usage == "" {
		usage = t.Title
	}
	return &Tool{
		Base:    action.NewBase(t.Name, usage, argumentsOf(schema), action.WithKind(action.KindMCP)),
		session: s,
		schema:  schema,
	}, nil
}

// InputSchema implements action.Schemed.
func (t *Tool) InputSchema() []byte { return t.schema }

func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.session.CallTool(ctx, t.Name(), args)
}

// argumentsOf lists the top-level properties of an object schema so the
// tool can be described in prompts.
func argumentsOf(schema []byte) []action.ArgumentSpec {
	var doc struct {
		Properties map[string]struct {
			Type        any    `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil
	}
	required := map[string]bool{}
	for _, r := range doc.Required {
		required[r] = true
	}
	names := make([]string, 0, len(doc.Properties))
	for n := range doc.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]action.ArgumentSpec, 0, len(names))
	for _, n := range names {
		p := doc.Properties[n]
		typ, _ := p.Type.(string)
		out = append(out, action.ArgumentSpec{Name: n, Type: typ, Description: p.Description, Optional: !required[n]})
	}
	return out
}
