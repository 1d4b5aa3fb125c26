package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/action/tools"
	"github.com/wilhg/sherpa/pkg/adapters/embedding"
	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
	"github.com/wilhg/sherpa/pkg/belief"
	"github.com/wilhg/sherpa/pkg/errmodel"
	"github.com/wilhg/sherpa/pkg/mcpclient"
	"github.com/wilhg/sherpa/pkg/mcpserver"
	"github.com/wilhg/sherpa/pkg/pool"
	"github.com/wilhg/sherpa/pkg/runtime"
)

// RunCmd runs one task and prints the answer.
type RunCmd struct {
	Task     string   `name:"task" required:"" help:"Task to perform"`
	Name     string   `name:"name" default:"sherpa" help:"Agent name"`
	User     string   `name:"user" help:"Save the agent and its belief for this user"`
	Docs     []string `name:"docs" type:"existingfile" help:"Text files indexed for the search action"`
	Embedder string   `name:"embedder" default:"fake" help:"Embedding provider for --docs"`
	Files    string   `name:"files" type:"existingdir" help:"Directory the fs.read action may read"`
	HTTP     bool     `name:"http" help:"Enable the http.get action"`
	MCP      []string `name:"mcp" help:"Command line of an MCP server whose tools the agent may use"`
}

func (c *RunCmd) Run(g *Globals) error {
	ctx := g.ctx
	model, err := llm.New(ctx, g.cfg.LLM.Provider, g.cfg.ProviderConfig())
	if err != nil {
		return err
	}
	actions, err := c.actions(ctx)
	if err != nil {
		return err
	}

	var sessions []*mcpclient.Session
	defer func() {
		for _, s := range sessions {
			_ = s.Close()
		}
	}()
	for _, line := range c.MCP {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		s := mcpclient.New(mcpclient.Command(fields[0], fields[1:]...), version, mcpclient.WithLogger(g.logger))
		sessions = append(sessions, s)
		if err := s.Connect(ctx); err != nil {
			return err
		}
		remote, err := s.Actions(ctx)
		if err != nil {
			return err
		}
		actions = append(actions, remote...)
	}

	b := belief.New()
	b.SetActions(actions...)
	opts := append(runtime.ConfigOptions(g.cfg), runtime.WithBelief(b), runtime.WithLogger(g.logger))

	if c.User != "" {
		p, closeStore, err := g.openPool()
		if err != nil {
			return err
		}
		defer closeStore()
		id, err := p.SaveAgent(ctx, pool.Agent{
			Name:      c.Name,
			AgentType: "task",
			Config:    map[string]any{"provider": g.cfg.LLM.Provider, "model": g.cfg.LLM.Model},
			Belief:    b.Snapshot(),
		}, c.User, nil, true)
		if err != nil {
			return err
		}
		if s, ok := p.StartSession(ctx, c.User, id); ok {
			defer p.EndSession(context.WithoutCancel(ctx), s.SessionID)
		}
		opts = append(opts, runtime.WithSnapshot(p.Checkpoint(id), 1))
		g.logger.Info("agent saved", "agent_id", id, "user_id", c.User)
	}

	agent := runtime.NewTaskAgent(c.Name, model, opts...)
	answer, err := agent.Run(ctx, c.Task)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.out, answer)
	return err
}

func (c *RunCmd) actions(ctx context.Context) ([]action.Action, error) {
	actions := []action.Action{tools.NewFinish()}
	if c.Files != "" {
		actions = append(actions, tools.NewFileRead(os.DirFS(c.Files)))
	}
	if c.HTTP {
		actions = append(actions, tools.NewHTTPGet(&http.Client{Timeout: 30 * time.Second}))
	}
	if len(c.Docs) > 0 {
		r, err := c.index(ctx)
		if err != nil {
			return nil, err
		}
		actions = append(actions, tools.NewSearch(r))
	}
	return actions, nil
}

// index embeds every --docs file, one paragraph per document.
func (c *RunCmd) index(ctx context.Context) (*vectorstore.Retriever, error) {
	e, err := embedding.New(ctx, c.Embedder, map[string]any{})
	if err != nil {
		return nil, err
	}
	vs, err := vectorstore.New(ctx, "memory", nil)
	if err != nil {
		return nil, err
	}
	r := vectorstore.NewRetriever(e, vs, "docs")
	var docs []vectorstore.Document
	for _, path := range c.Docs {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		for i, para := range strings.Split(string(b), "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				docs = append(docs, vectorstore.Document{
					ID:      fmt.Sprintf("%s#%d", filepath.Base(path), i),
					Content: para,
					Source:  path,
				})
			}
		}
	}
	return r, r.AddDocuments(ctx, docs)
}

// AgentsCmd groups the stored-agent commands.
type AgentsCmd struct {
	List   AgentsListCmd   `cmd:"" help:"List stored agents"`
	Show   AgentsShowCmd   `cmd:"" help:"Show one stored agent as JSON"`
	Delete AgentsDeleteCmd `cmd:"" help:"Delete a stored agent"`
}

type AgentsListCmd struct {
	User string   `name:"user" help:"Only agents of this user"`
	Type string   `name:"type" help:"Only agents of this type"`
	Tags []string `name:"tag" help:"Only agents carrying any of these tags"`
	All  bool     `name:"all" help:"Include deleted agents"`
}

func (c *AgentsListCmd) Run(g *Globals) error {
	p, closeStore, err := g.openPool()
	if err != nil {
		return err
	}
	defer closeStore()
	w := tabwriter.NewWriter(g.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tNAME\tTYPE\tACTIVE\tUPDATED")
	for _, e := range p.ListAgents(g.ctx, c.User, c.Type, c.Tags, !c.All) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", e.ID, e.UserID, e.Agent.Name, e.Agent.AgentType, e.Active, e.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

type AgentsShowCmd struct {
	ID string `arg:"" help:"Agent id"`
}

func (c *AgentsShowCmd) Run(g *Globals) error {
	p, closeStore, err := g.openPool()
	if err != nil {
		return err
	}
	defer closeStore()
	e, ok := p.GetAgent(g.ctx, c.ID)
	if !ok {
		return fmt.Errorf("agent %s: %w", c.ID, errNotFound)
	}
	enc := json.NewEncoder(g.out)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

type AgentsDeleteCmd struct {
	ID   string `arg:"" help:"Agent id"`
	Hard bool   `name:"hard" help:"Remove the row instead of marking it inactive"`
}

func (c *AgentsDeleteCmd) Run(g *Globals) error {
	p, closeStore, err := g.openPool()
	if err != nil {
		return err
	}
	defer closeStore()
	if !p.DeleteAgent(g.ctx, c.ID, !c.Hard) {
		return fmt.Errorf("agent %s: %w", c.ID, errNotFound)
	}
	_, err = fmt.Fprintf(g.out, "deleted %s\n", c.ID)
	return err
}

// ServeCmd serves /healthz and read-only agent endpoints.
type ServeCmd struct {
	Addr string `name:"addr" default:"${addr}" help:"HTTP listen address"`
}

func (c *ServeCmd) Run(g *Globals) error {
	p, closeStore, err := g.openPool()
	if err != nil {
		return err
	}
	defer closeStore()
	srv := &http.Server{Addr: c.Addr, Handler: buildMux(p), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-g.ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	g.logger.Info("listening", "addr", c.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func buildMux(p *pool.Pool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/agents", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		type agentView struct {
			ID        string    `json:"agent_id"`
			UserID    string    `json:"user_id"`
			Name      string    `json:"agent_name"`
			Type      string    `json:"agent_type"`
			Tags      []string  `json:"tags"`
			UpdatedAt time.Time `json:"updated_at"`
		}
		out := []agentView{}
		for _, e := range p.ListAgents(r.Context(), q.Get("user"), q.Get("type"), q["tag"], true) {
			out = append(out, agentView{e.ID, e.UserID, e.Agent.Name, e.Agent.AgentType, e.Tags, e.UpdatedAt})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("GET /api/agents/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		e, ok := p.GetAgent(r.Context(), id)
		if !ok {
			errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeNotFound, "agent not found", map[string]any{"agent_id": id}))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e)
	})
	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Stats(r.Context()))
	})
	return mux
}

// MCPCmd serves the file and http actions to MCP clients over stdio.
type MCPCmd struct {
	Files string `name:"files" type:"existingdir" help:"Directory exported as fs.read"`
	HTTP  bool   `name:"http" help:"Export http.get"`
}

func (c *MCPCmd) Run(g *Globals) error {
	reg, err := action.NewRegistry()
	if err != nil {
		return err
	}
	if c.Files != "" {
		if err := reg.Register(tools.NewFileRead(os.DirFS(c.Files))); err != nil {
			return err
		}
	}
	if c.HTTP {
		if err := reg.Register(tools.NewHTTPGet(&http.Client{Timeout: 30 * time.Second})); err != nil {
			return err
		}
	}
	srv, err := mcpserver.New(reg, version, mcpserver.WithLogger(g.logger))
	if err != nil {
		return err
	}
	return srv.Run(g.ctx, &mcp.StdioTransport{})
}
