package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/sherpa/pkg/pool"
	"github.com/wilhg/sherpa/pkg/runtime"
	"github.com/wilhg/sherpa/pkg/store/sqlstore"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	if got := getEnv("FOO", "default"); got != "bar" {
		t.Fatalf("getEnv returned %q, want %q", got, "bar")
	}
	if got := getEnv("MISSING", "default"); got != "default" {
		t.Fatalf("getEnv returned %q, want %q", got, "default")
	}
}

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	url := "sqlite:file:" + filepath.Join(dir, "cli.db") + "?_pragma=busy_timeout(5000)"
	t.Setenv("SHERPA_DATABASE_URL", url)
	t.Setenv("SHERPA_LLM_PROVIDER", "fake")
	t.Setenv("SHERPA_CONFIG", filepath.Join(dir, "missing.yaml"))
	return url
}

func sherpa(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out), "sherpa %v", args)
	return out.String()
}

func TestCLI_RunAndManageAgents(t *testing.T) {
	setup(t)

	got := sherpa(t, "run", "--task", "say hi", "--user", "u1", "--name", "helper")
	assert.Equal(t, runtime.NoAnswer+"\n", got)

	list := sherpa(t, "agents", "list", "--user", "u1")
	lines := strings.Split(strings.TrimSpace(list), "\n")
	require.Len(t, lines, 2, list)
	assert.Contains(t, lines[1], "helper")
	id := strings.Fields(lines[1])[0]

	var shown pool.Entry
	require.NoError(t, json.Unmarshal([]byte(sherpa(t, "agents", "show", id)), &shown))
	assert.Equal(t, "say hi", shown.Agent.Belief.Task)

	assert.Equal(t, "deleted "+id+"\n", sherpa(t, "agents", "delete", id))
	list = sherpa(t, "agents", "list", "--user", "u1")
	assert.Len(t, strings.Split(strings.TrimSpace(list), "\n"), 1)
	list = sherpa(t, "agents", "list", "--user", "u1", "--all")
	assert.Len(t, strings.Split(strings.TrimSpace(list), "\n"), 2)

	sherpa(t, "agents", "delete", "--hard", id)
	err := run(context.Background(), []string{"agents", "show", id}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errNotFound)
}

func TestBuildMux(t *testing.T) {
	url := setup(t)
	ctx := context.Background()
	st, err := sqlstore.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	p, err := pool.New(ctx, st)
	require.NoError(t, err)
	id, err := p.SaveAgent(ctx, pool.Agent{Name: "a1", AgentType: "qa"}, "u1", []string{"x"}, false)
	require.NoError(t, err)

	srv := httptest.NewServer(buildMux(p))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/api/agents?user=u1")
	require.NoError(t, err)
	defer res.Body.Close()
	var agents []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "a1", agents[0]["agent_name"])

	res, err = http.Get(srv.URL + "/api/agents/" + id)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/api/agents/missing")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&envelope))
	assert.Equal(t, "not_found", envelope.Error.Code)
}
