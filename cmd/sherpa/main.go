package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	_ "github.com/wilhg/sherpa/pkg/adapters/embedding/fake"
	_ "github.com/wilhg/sherpa/pkg/adapters/embedding/gemini"
	_ "github.com/wilhg/sherpa/pkg/adapters/embedding/openai"
	_ "github.com/wilhg/sherpa/pkg/adapters/llm/anthropic"
	_ "github.com/wilhg/sherpa/pkg/adapters/llm/fake"
	_ "github.com/wilhg/sherpa/pkg/adapters/llm/gemini"
	_ "github.com/wilhg/sherpa/pkg/adapters/llm/openai"
	_ "github.com/wilhg/sherpa/pkg/adapters/vectorstore/memory"
	"github.com/wilhg/sherpa/pkg/config"
	"github.com/wilhg/sherpa/pkg/logging"
	"github.com/wilhg/sherpa/pkg/otel"
	"github.com/wilhg/sherpa/pkg/pool"
	"github.com/wilhg/sherpa/pkg/store/sqlstore"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Globals are shared by every command.
type Globals struct {
	Config   string           `name:"config" help:"YAML config file" default:"${config}" type:"path"`
	LogLevel string           `name:"log-level" help:"Override the configured log level"`
	Version  kong.VersionFlag `name:"version" help:"Print version and exit"`

	ctx    context.Context
	cfg    *config.Config
	logger logging.Logger
	out    io.Writer
}

type CLI struct {
	Globals

	Run    RunCmd    `cmd:"" help:"Run a task with a fresh agent"`
	Agents AgentsCmd `cmd:"" help:"Manage stored agents"`
	Serve  ServeCmd  `cmd:"" help:"Serve the health endpoint and agent listing"`
	MCP    MCPCmd    `cmd:"" name:"mcp" help:"Expose the built-in actions as an MCP server on stdio"`
	Prompt PromptCmd `cmd:"" help:"Lint and diff prompt templates"`
	Eval   EvalCmd   `cmd:"" help:"Score prompt fixtures and recorded policy decisions"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "sherpa: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("sherpa"),
		kong.Description("Task agents with belief, policy and persistent pools"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(out, os.Stderr),
		kong.Vars{
			"version": fmt.Sprintf("sherpa %s (commit=%s, date=%s)", version, commit, date),
			"config":  getEnv("SHERPA_CONFIG", "sherpa.yaml"),
			"addr":    getEnv("SHERPA_ADDR", ":8080"),
		},
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	cli.Globals.ctx = ctx
	cli.Globals.cfg = cfg
	cli.Globals.out = out
	cli.Globals.logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	shutdown, err := otel.Init(ctx, otel.FromConfig(cfg.Otel, version))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	return kctx.Run(&cli.Globals)
}

// openPool opens the configured store and a pool over it. The returned
// function closes the store.
func (g *Globals) openPool() (*pool.Pool, func(), error) {
	st, err := sqlstore.Open(g.ctx, g.cfg.Pool.DatabaseURL, sqlstore.WithLogger(g.logger))
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(g.ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	p, err := pool.New(g.ctx, st,
		pool.WithLogger(g.logger),
		pool.WithDefaultMaxAgents(g.cfg.Pool.DefaultMaxAgents),
		pool.WithSoftDelete(g.cfg.Pool.SoftDelete),
	)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return p, func() { _ = st.Close() }, nil
}

var errNotFound = errors.New("not found")

func getEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
