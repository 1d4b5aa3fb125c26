package prompt

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"
)

// Issue is one lint finding. Offset is a byte offset into the body when the
// rule can point at one.
type Issue struct {
	Rule    string
	Message string
	Offset  int
}

var secretLike = regexp.MustCompile(`(?i)(aws_secret_access_key|BEGIN PRIVATE KEY|\bsk-[A-Za-z0-9_-]{16,})`)

var funcs = template.FuncMap{
	"inc":  func(i int) int { return i + 1 },
	"trim": strings.TrimSpace,
}

func parseBody(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(body)
}

// Lint checks that a template has a name and a body, carries nothing that
// looks like a credential and parses. When Meta["vars"] lists the
// template's inputs (comma separated), every top-level field the body
// reads must be among them.
func Lint(p Prompt) []Issue {
	var issues []Issue
	if p.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	}
	if p.Body == "" {
		issues = append(issues, Issue{Rule: "body.required", Message: "body is empty"})
	}
	if loc := secretLike.FindStringIndex(p.Body); loc != nil {
		issues = append(issues, Issue{Rule: "security.secrets", Message: "body appears to contain secrets-like content", Offset: loc[0]})
	}
	t, err := parseBody(p.Name, p.Body)
	if err != nil {
		return append(issues, Issue{Rule: "template.syntax", Message: err.Error()})
	}
	if declared, ok := p.Meta["vars"]; ok {
		vars := strings.Split(declared, ",")
		for i := range vars {
			vars[i] = strings.TrimSpace(vars[i])
		}
		for _, f := range fields(t) {
			if !slices.Contains(vars, f) {
				issues = append(issues, Issue{Rule: "template.undeclared", Message: fmt.Sprintf("field .%s is not declared in vars", f)})
			}
		}
	}
	return issues
}

// Fields lists the top-level fields a template reads from its data, sorted.
// Fields read inside range and with blocks are relative to a different dot
// and are not included.
func Fields(p Prompt) ([]string, error) {
	t, err := parseBody(p.Name, p.Body)
	if err != nil {
		return nil, err
	}
	return fields(t), nil
}

func fields(t *template.Template) []string {
	seen := map[string]bool{}
	var walk func(parse.Node)
	walk = func(n parse.Node) {
		switch n := n.(type) {
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.PipeNode:
			if n == nil {
				return
			}
			for _, c := range n.Cmds {
				walk(c)
			}
		case *parse.CommandNode:
			for _, a := range n.Args {
				walk(a)
			}
		case *parse.FieldNode:
			seen[n.Ident[0]] = true
		case *parse.IfNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.RangeNode:
			walk(n.Pipe)
		case *parse.WithNode:
			walk(n.Pipe)
		}
	}
	if t.Tree != nil {
		walk(t.Tree.Root)
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
