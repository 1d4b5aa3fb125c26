package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestStore_VersioningAndLint(t *testing.T) {
	s := NewStore()

	// lint failure: empty name
	if _, issues, err := s.Save(Prompt{Name: "", Body: "hello"}); err == nil {
		t.Fatal("expected lint failure for missing name")
	} else if len(issues) == 0 {
		t.Fatal("expected issues")
	}

	// save v1
	v1, issues, err := s.Save(Prompt{Name: "welcome", Body: "Hi {{.User}}"})
	if err != nil {
		t.Fatalf("save v1: %v (%v)", err, issues)
	}
	if v1.Version != 1 {
		t.Fatalf("v1 version=%d", v1.Version)
	}

	// save v2
	v2, _, err := s.Save(Prompt{Name: "welcome", Body: "Hello {{.User}}!"})
	if err != nil {
		t.Fatal(err)
	}
	if v2.Version != 2 {
		t.Fatalf("v2 version=%d", v2.Version)
	}

	got, ok := s.Get("welcome", 0)
	if !ok || got.Version != 2 {
		t.Fatalf("get latest=%+v ok=%v", got, ok)
	}
	got1, ok := s.Get("welcome", 1)
	if !ok || got1.Version != 1 {
		t.Fatalf("get v1=%+v ok=%v", got1, ok)
	}

	all := s.List("welcome")
	if len(all) != 2 || all[0].Version != 1 || all[1].Version != 2 {
		t.Fatalf("list=%+v", all)
	}
}

func TestLint_TemplateSyntaxAndSecrets(t *testing.T) {
	issues := Lint(Prompt{Name: "x", Body: "{{.Broken"})
	if len(issues) != 1 || issues[0].Rule != "template.syntax" {
		t.Fatalf("issues=%+v", issues)
	}
	issues = Lint(Prompt{Name: "x", Body: "key sk-abcdefghijklmnopqrstuv"})
	if len(issues) != 1 || issues[0].Rule != "security.secrets" || issues[0].Offset != 4 {
		t.Fatalf("issues=%+v", issues)
	}
	// a dash after "ask" is not a key
	if issues := Lint(Prompt{Name: "x", Body: "Ask-me-anything task-list"}); len(issues) != 0 {
		t.Fatalf("false positive: %+v", issues)
	}
}

func TestRender(t *testing.T) {
	s := NewStore()
	if _, _, err := s.Save(Prompt{Name: "greet", Body: "Hello {{.User}}"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Render("greet", map[string]string{"User": "Ada"})
	if err != nil || got != "Hello Ada" {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if _, err := s.Render("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestDefaults_RenderPolicy(t *testing.T) {
	s := Defaults()
	out, err := s.Render(ReactPolicy, PolicyData{
		Role:           "a helpful assistant",
		Task:           "What is Go?",
		State:          &StateView{Name: "start", Description: "first turn"},
		Actions:        []ActionView{{Name: "search", Description: "Search the docs"}},
		ResponseFormat: `{"command":{"name":"action name"}}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Task: What is Go?", "Current state: start - first turn", "- search: Search the docs", `{"command":{"name":"action name"}}`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Conversation so far") {
		t.Fatalf("empty context rendered:\n%s", out)
	}

	out, err = s.Render(Synthesize, AnswerData{Role: "r", Task: "t", Resources: []ResourceView{{Content: " first ", Source: "a"}, {Content: "second", Source: "b"}}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[1] first\n[2] second") {
		t.Fatalf("resources not numbered:\n%s", out)
	}
}

func TestLint_DeclaredVars(t *testing.T) {
	body := "{{.Role}} {{if .Context}}{{.Context}}{{end}} {{range .Actions}}{{.Name}}{{end}}"
	got, err := Fields(Prompt{Name: "p", Body: body})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "Actions,Context,Role" {
		t.Fatalf("fields=%v", got)
	}
	ok := Prompt{Name: "p", Body: body, Meta: map[string]string{"vars": "Role, Context, Actions"}}
	if issues := Lint(ok); len(issues) != 0 {
		t.Fatalf("issues=%+v", issues)
	}
	missing := Prompt{Name: "p", Body: body, Meta: map[string]string{"vars": "Role,Actions"}}
	issues := Lint(missing)
	if len(issues) != 1 || issues[0].Rule != "template.undeclared" || !strings.Contains(issues[0].Message, ".Context") {
		t.Fatalf("issues=%+v", issues)
	}
}
