// Package eval scores prompts and policies offline against JSON fixtures.
package eval

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/wilhg/sherpa/pkg/prompt"
)

// Report is the outcome of an evaluation. Score is Passed/Total, or 1 when
// there were no cases.
type Report struct {
	Score   float64
	Total   int
	Passed  int
	Details []string
}

func (r *Report) add(ok bool) {
	r.Total++
	if ok {
		r.Passed++
	}
}

func (r *Report) fail(name, format string, args ...any) {
	r.Details = append(r.Details, name+": "+fmt.Sprintf(format, args...))
}

func (r *Report) finish() Report {
	r.Score = 1
	if r.Total > 0 {
		r.Score = float64(r.Passed) / float64(r.Total)
	}
	return *r
}

// Fixture represents one prompt evaluation case. Either Prompt holds an
// inline template body or Template names a stored prompt (latest version
// unless Version is set).
type Fixture struct {
	Name     string         `json:"name"`
	Prompt   string         `json:"prompt,omitempty"`
	Template string         `json:"template,omitempty"`
	Version  int            `json:"version,omitempty"`
	Vars     map[string]any `json:"vars"`
	Expect   Expectation    `json:"expect"`
}

type Expectation struct {
	Contains    []string `json:"contains,omitempty"`
	NotContains []string `json:"not_contains,omitempty"`
}

const unresolved = "<no value>"

// EvaluatePromptFixtures loads fixtures from the json files in dir, renders
// each one and checks its expectations. Stored templates are looked up in
// store, which may be nil when every fixture is inline. Inline bodies must
// also pass prompt.Lint.
func EvaluatePromptFixtures(fsys fs.FS, dir string, store *prompt.Store) (Report, error) {
	fixtures, err := loadJSON[Fixture](fsys, dir)
	if err != nil {
		return Report{}, err
	}
	var r Report
	for _, fx := range fixtures {
		out, ok := renderFixture(&r, fx, store)
		if ok {
			ok = check(&r, fx.Name, out, fx.Expect)
		}
		r.add(ok)
	}
	return r.finish(), nil
}

func renderFixture(r *Report, fx Fixture, store *prompt.Store) (string, bool) {
	var p prompt.Prompt
	switch {
	case fx.Template != "":
		var ok bool
		if store != nil {
			p, ok = store.Get(fx.Template, fx.Version)
		}
		if !ok {
			r.fail(fx.Name, "template %s v%d not found", fx.Template, fx.Version)
			return "", false
		}
	default:
		p = prompt.Prompt{Name: fx.Name, Body: fx.Prompt}
		if issues := prompt.Lint(p); len(issues) > 0 {
			for _, is := range issues {
				r.fail(fx.Name, "lint %s: %s", is.Rule, is.Message)
			}
			return "", false
		}
	}
	out, err := prompt.RenderPrompt(p, fx.Vars)
	if err != nil {
		r.fail(fx.Name, "render error: %v", err)
		return "", false
	}
	if strings.Contains(out, unresolved) {
		r.fail(fx.Name, "unresolved variable")
		return "", false
	}
	return out, true
}

func check(r *Report, name, out string, exp Expectation) bool {
	ok := true
	for _, s := range exp.Contains {
		if !strings.Contains(out, s) {
			ok = false
			r.fail(name, "missing contains: %s", s)
		}
	}
	for _, s := range exp.NotContains {
		if strings.Contains(out, s) {
			ok = false
			r.fail(name, "unexpected contains: %s", s)
		}
	}
	return ok
}

func loadJSON[T any](fsys fs.FS, dir string) ([]T, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, v)
	}
	return out, nil
}
