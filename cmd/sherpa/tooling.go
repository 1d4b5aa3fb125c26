package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/action/tools"
	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/eval"
	"github.com/wilhg/sherpa/pkg/policy"
	"github.com/wilhg/sherpa/pkg/prompt"
)

// PromptCmd groups the template tooling.
type PromptCmd struct {
	Lint PromptLintCmd `cmd:"" help:"Lint template files"`
	Diff PromptDiffCmd `cmd:"" help:"Diff a template file against the built-in template of the same name"`
}

type PromptLintCmd struct {
	Files []string `arg:"" type:"existingfile" help:"Template files; the name is the file name without extension"`
	Vars  string   `name:"vars" help:"Comma separated fields the templates may read"`
}

func (c *PromptLintCmd) Run(g *Globals) error {
	failed := 0
	for _, path := range c.Files {
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		p := prompt.Prompt{Name: templateName(path), Body: string(body)}
		if c.Vars != "" {
			p.Meta = map[string]string{"vars": c.Vars}
		}
		issues := prompt.Lint(p)
		if len(issues) == 0 {
			fmt.Fprintf(g.out, "ok %s\n", path)
			continue
		}
		failed++
		for _, is := range issues {
			fmt.Fprintf(g.out, "%s: %s: %s\n", path, is.Rule, is.Message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates: %w", failed, len(c.Files), prompt.ErrLintFailed)
	}
	return nil
}

type PromptDiffCmd struct {
	Name string `arg:"" help:"Built-in template name"`
	File string `arg:"" type:"existingfile" help:"Candidate template body"`
}

func (c *PromptDiffCmd) Run(g *Globals) error {
	store := prompt.Defaults()
	if _, ok := store.Get(c.Name, 0); !ok {
		return fmt.Errorf("%w: %s", prompt.ErrNotFound, c.Name)
	}
	body, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	saved, issues, err := store.Save(prompt.Prompt{Name: c.Name, Body: string(body)})
	if err != nil {
		for _, is := range issues {
			fmt.Fprintf(g.out, "%s: %s: %s\n", c.File, is.Rule, is.Message)
		}
		return err
	}
	diff, err := store.Diff(c.Name, saved.Version-1, saved.Version)
	if err != nil {
		return err
	}
	if diff == "" {
		diff = "no changes\n"
	}
	_, err = fmt.Fprint(g.out, diff)
	return err
}

func templateName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// EvalCmd scores prompt fixtures and recorded policy decisions offline.
type EvalCmd struct {
	Prompts  string  `name:"prompts" type:"existingdir" help:"Directory of prompt fixtures (json)"`
	Replay   string  `name:"replay" type:"existingdir" help:"Directory of recorded policy decisions (json)"`
	Chat     bool    `name:"chat" help:"Replay against the chat policy"`
	MinScore float64 `name:"min-score" default:"1" help:"Fail when a score is below this"`
}

func (c *EvalCmd) Run(g *Globals) error {
	if c.Prompts == "" && c.Replay == "" {
		return errors.New("eval: nothing to evaluate; pass --prompts or --replay")
	}
	var low []string
	if c.Prompts != "" {
		r, err := eval.EvaluatePromptFixtures(os.DirFS(c.Prompts), ".", prompt.Defaults())
		if err != nil {
			return err
		}
		if c.print(g, "prompts", r) {
			low = append(low, "prompts")
		}
	}
	if c.Replay != "" {
		cases, err := eval.LoadReplayCases(os.DirFS(c.Replay), ".")
		if err != nil {
			return err
		}
		reg, err := builtinActions()
		if err != nil {
			return err
		}
		newPolicy := func(m llm.LLM) policy.Policy {
			if c.Chat {
				return policy.NewChatPolicy(m, policy.WithLogger(g.logger))
			}
			return policy.NewReactPolicy(m, policy.WithLogger(g.logger))
		}
		r, err := eval.ReplayPolicy(g.ctx, newPolicy, reg, cases)
		if err != nil {
			return err
		}
		if c.print(g, "replay", r) {
			low = append(low, "replay")
		}
	}
	if len(low) > 0 {
		return fmt.Errorf("eval: %v below %.2f", low, c.MinScore)
	}
	return nil
}

// print writes the report and reports whether it scored below MinScore.
func (c *EvalCmd) print(g *Globals, label string, r eval.Report) bool {
	fmt.Fprintf(g.out, "%s: %d/%d (score %.2f)\n", label, r.Passed, r.Total, r.Score)
	for _, d := range r.Details {
		fmt.Fprintf(g.out, "  - %s\n", d)
	}
	return r.Score < c.MinScore
}

// builtinActions registers the actions recorded decisions may name. Replay
// only selects actions, so none of them is ever executed.
func builtinActions() (*action.Registry, error) {
	return action.NewRegistry(
		tools.NewSearch(nil),
		tools.NewFileRead(os.DirFS(".")),
		tools.NewHTTPGet(http.DefaultClient),
		tools.NewFinish(),
	)
}
