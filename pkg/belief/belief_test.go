package belief

import (
	"context"
	"strings"
	"testing"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
	"github.com/wilhg/sherpa/pkg/statemachine"
	"github.com/wilhg/sherpa/pkg/tokenizer"
)

// words counts whitespace-separated words, which keeps budgets easy to reason about.
func words(s string) int { return len(strings.Fields(s)) }

func TestWindows_EmptyBelief(t *testing.T) {
	b := New()
	if got := b.Context(words, 100); got != "" {
		t.Fatalf("context=%q", got)
	}
	if got := b.InternalHistory(words, 100); got != "" {
		t.Fatalf("history=%q", got)
	}
	if got := b.Context(nil, 100); got != "" {
		t.Fatalf("context with default counter=%q", got)
	}
}

func TestContext_DropsOldestFirst(t *testing.T) {
	b := New()
	// 3, 2 and 3 words once rendered
	b.SetCurrentTask("one two")
	b.AddEvent(EventResult, "agent", "three", nil)
	b.AddEvent(EventUserInput, "user", "four five", nil)

	if got := b.Context(words, 100); got != "task: one two\nresult: three\nuser_input: four five" {
		t.Fatalf("full=%q", got)
	}
	if got := b.Context(words, 5); got != "result: three\nuser_input: four five" {
		t.Fatalf("budget 5=%q", got)
	}
	if got := b.Context(words, 2); got != "" {
		t.Fatalf("budget 2=%q", got)
	}
}

func TestContext_Monotonic(t *testing.T) {
	b := New()
	for i := 0; i < 20; i++ {
		b.AddEvent(EventUserInput, "user", strings.Repeat("word ", i%5+1), nil)
	}
	prev := -1
	for budget := 0; budget <= 200; budget += 7 {
		lines := 0
		if s := b.Context(tokenizer.Runes, budget); s != "" {
			lines = len(strings.Split(s, "\n"))
		}
		if lines < prev {
			t.Fatalf("budget %d kept %d events, fewer than %d", budget, lines, prev)
		}
		prev = lines
	}
}

func TestInternalHistory_OnlyActions(t *testing.T) {
	b := New()
	b.SetCurrentTask("find it")
	b.AddEvent(EventAction, "policy", "search {\"query\":\"x\"}", nil)
	b.RecordOutput("search", nil, "Command search returned: found")
	got := b.InternalHistory(words, 100)
	if strings.Contains(got, "task:") || !strings.Contains(got, "action_output: Command search returned: found") {
		t.Fatalf("history=%q", got)
	}
}

func TestActions_FlatListBindsMemory(t *testing.T) {
	b := New()
	b.Set("city", "Paris")
	weather := action.NewFunction("weather", "Weather for the city in belief",
		[]action.ArgumentSpec{{Name: "city", Source: action.SourceBelief}},
		func(_ context.Context, args map[string]any) (any, error) { return "sunny in " + args["city"].(string), nil })
	b.SetActions(weather)

	a, err := b.Action(context.Background(), "weather")
	if err != nil || a == nil {
		t.Fatalf("a=%v err=%v", a, err)
	}
	out, err := action.Call(context.Background(), a, nil, nil)
	if err != nil || out != "sunny in Paris" {
		t.Fatalf("out=%v err=%v", out, err)
	}
	if missing, _ := b.Action(context.Background(), "nope"); missing != nil {
		t.Fatal("unknown action resolved")
	}
}

func TestActions_FromStateMachine(t *testing.T) {
	m := statemachine.New()
	_ = m.AddState(statemachine.State{Name: "start"})
	_ = m.AddState(statemachine.State{Name: "end"})
	_ = m.UpdateTransition("finish_up", "start", "end")

	b := New()
	b.SetActions(action.NewFunction("ignored", "flat list is shadowed", nil, nil))
	b.SetStateMachine(m)
	acts, err := b.Actions(context.Background())
	if err != nil || len(acts) != 1 || acts[0].Name() != "finish_up" {
		t.Fatalf("acts=%v err=%v", acts, err)
	}
	if st, ok := b.State(); !ok || st.Name != "start" {
		t.Fatalf("state=%v", st)
	}
}

func TestSnapshotRestore(t *testing.T) {
	m := statemachine.New()
	_ = m.AddState(statemachine.State{Name: "start"})
	_ = m.AddState(statemachine.State{Name: "end"})
	b := New()
	b.SetStateMachine(m)
	b.SetCurrentTask("q")
	b.Set("k", "v")
	b.AddResources(vectorstore.Document{Content: "c", Source: "s"})
	_ = m.SetState("end")
	snap := b.Snapshot()

	m2 := statemachine.New()
	_ = m2.AddState(statemachine.State{Name: "start"})
	_ = m2.AddState(statemachine.State{Name: "end"})
	b2 := New()
	b2.SetStateMachine(m2)
	if err := b2.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if b2.CurrentTask() != "q" || len(b2.Events()) != 1 || len(b2.Resources()) != 1 {
		t.Fatalf("restored=%+v", b2.Snapshot())
	}
	if v, _ := b2.Get("k"); v != "v" {
		t.Fatalf("value=%v", v)
	}
	if m2.Current().Name != "end" {
		t.Fatalf("state=%s", m2.Current().Name)
	}
}
