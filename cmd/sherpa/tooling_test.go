package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/sherpa/pkg/prompt"
)

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCLI_PromptDiff(t *testing.T) {
	setup(t)
	file := writeFile(t, filepath.Join(t.TempDir(), "reformulate.tmpl"), "Rewrite {{.Query}} for {{.Task}}.\n")

	got := sherpa(t, "prompt", "diff", "reformulate", file)
	assert.Contains(t, got, "--- reformulate@v1")
	assert.Contains(t, got, "+++ reformulate@v2")
	assert.Contains(t, got, "+Rewrite {{.Query}} for {{.Task}}.")

	var out bytes.Buffer
	err := run(context.Background(), []string{"prompt", "diff", "nosuch", file}, &out)
	assert.ErrorIs(t, err, prompt.ErrNotFound)
}

func TestCLI_PromptLint(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "greet.tmpl"), "Hello {{.name}}")
	bad := writeFile(t, filepath.Join(dir, "broken.tmpl"), "Hello {{.name")

	assert.Contains(t, sherpa(t, "prompt", "lint", "--vars", "name", good), "ok "+good)

	var out bytes.Buffer
	err := run(context.Background(), []string{"prompt", "lint", "--vars", "user", good, bad}, &out)
	assert.ErrorIs(t, err, prompt.ErrLintFailed)
	assert.Contains(t, out.String(), "template.undeclared")
	assert.Contains(t, out.String(), "template.syntax")
}

func TestCLI_Eval(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	prompts := filepath.Join(dir, "prompts")
	writeFile(t, filepath.Join(prompts, "reformulate.json"), `{"name":"reformulate","template":"reformulate",
		"vars":{"Task":"t","Action":"search","Args":"{}","Query":"capital"},
		"expect":{"contains":["Reformulate the query \"capital\""]}}`)
	replay := filepath.Join(dir, "replay")
	writeFile(t, filepath.Join(replay, "search.json"), `{"name":"search","task":"find the capital","actions":["search","finish"],
		"response":"{\"command\": {\"name\": \"search\", \"args\": {\"query\": \"capital\"}}}",
		"expect":{"action":"search","args":{"query":"capital"}}}`)

	got := sherpa(t, "eval", "--prompts", prompts, "--replay", replay)
	assert.Contains(t, got, "prompts: 1/1 (score 1.00)")
	assert.Contains(t, got, "replay: 1/1 (score 1.00)")

	writeFile(t, filepath.Join(replay, "wrong.json"), `{"name":"wrong","task":"t","actions":["search","finish"],
		"response":"{\"command\": {\"name\": \"finish\"}}","expect":{"action":"search"}}`)
	var out bytes.Buffer
	err := run(context.Background(), []string{"eval", "--replay", replay}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "replay: 1/2 (score 0.50)")
	assert.Contains(t, out.String(), "wrong: action finish, want search")

	require.Error(t, run(context.Background(), []string{"eval"}, &out))
}
