package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/action/tools"
	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/adapters/llm/fake"
	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
	"github.com/wilhg/sherpa/pkg/belief"
	"github.com/wilhg/sherpa/pkg/validation"
)

type staticRetriever struct {
	docs    []vectorstore.Document
	calls   int
	queries []string
}

func (r *staticRetriever) SimilaritySearch(_ context.Context, q string, _ int) ([]vectorstore.Document, error) {
	r.calls++
	r.queries = append(r.queries, q)
	return r.docs, nil
}

var paris = vectorstore.Document{
	Content: "Paris is the capital and largest city of France.",
	Source:  "https://example.com/paris",
}

func echo(name string) action.Action {
	return action.NewFunction(name, "Echo "+name, nil, func(context.Context, map[string]any) (any, error) {
		return name + " done", nil
	})
}

func newAgent(m llm.LLM, actions []action.Action, opts ...Option) *TaskAgent {
	b := belief.New()
	b.SetActions(actions...)
	return NewTaskAgent("tester", m, append([]Option{WithBelief(b)}, opts...)...)
}

func eventsOf(b *belief.Belief, typ belief.EventType) []belief.Event {
	var out []belief.Event
	for _, e := range b.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestRun_BoundedTermination(t *testing.T) {
	m := fake.New(`{"command": {"name": "a"}}`)
	a := newAgent(m, []action.Action{echo("a"), echo("b")}, WithMaxIterations(3))

	got, err := a.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Fatal("empty answer")
	}
	if m.Calls() != 4 {
		t.Fatalf("calls=%d, want 3 policy steps and 1 forced final", m.Calls())
	}
	if !strings.Contains(m.Prompt(3), "used all the steps") {
		t.Fatalf("last prompt was not the forced final one: %q", m.Prompt(3))
	}
	outs := eventsOf(a.Belief(), belief.EventActionOutput)
	if len(outs) != 3 || outs[0].Content != "Command a returned: a done" {
		t.Fatalf("outputs=%+v", outs)
	}
}

func TestRun_SearchThenFinishWithCitations(t *testing.T) {
	r := &staticRetriever{docs: []vectorstore.Document{paris}}
	m := fake.New(
		`{"command": {"name": "search", "args": {"query": "capital of France"}}}`,
		`{"command": {"name": "finish", "args": {}}}`,
		"Paris is the capital and largest city of France.",
	)
	a := newAgent(m, []action.Action{tools.NewSearch(r), tools.NewFinish()},
		WithValidators(1, validation.NewCitationValidation(validation.DefaultCitationConfig())))

	got, err := a.Run(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	want := "Paris is the capital and largest city of France [1](https://example.com/paris)."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if !strings.Contains(m.Prompt(2), "[1] Paris is the capital") {
		t.Fatalf("synthesis prompt lacks resources: %q", m.Prompt(2))
	}
	res := eventsOf(a.Belief(), belief.EventResult)
	if len(res) != 1 || res[0].Content != want {
		t.Fatalf("result events=%+v", res)
	}
}

func TestRun_PolicyErrorBecomesFeedback(t *testing.T) {
	m := fake.New("I am not sure what to do.", `{"command": {"name": "finish"}}`, "All done.")
	a := newAgent(m, []action.Action{echo("a"), tools.NewFinish()})

	got, err := a.Run(context.Background(), "task")
	if err != nil || got != "All done." {
		t.Fatalf("got=%q err=%v", got, err)
	}
	fb := eventsOf(a.Belief(), belief.EventFeedback)
	if len(fb) != 1 || !strings.HasPrefix(fb[0].Content, "Your previous output was invalid") {
		t.Fatalf("feedback=%+v", fb)
	}
	if !strings.Contains(m.Prompt(1), "Your previous output was invalid") {
		t.Fatal("feedback not shown to the model")
	}
}

func TestRun_ToolErrorIsObservation(t *testing.T) {
	boom := action.NewFunction("boom", "Fails", nil, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("kaboom")
	})
	m := fake.New(`{"command": {"name": "boom"}}`, `{"command": {"name": "finish"}}`, "Gave up.")
	a := newAgent(m, []action.Action{boom, tools.NewFinish()})

	got, err := a.Run(context.Background(), "task")
	if err != nil || got != "Gave up." {
		t.Fatalf("got=%q err=%v", got, err)
	}
	outs := eventsOf(a.Belief(), belief.EventActionOutput)
	if len(outs) != 1 || !strings.HasPrefix(outs[0].Content, "Error: kaboom, tool/execution_failed") {
		t.Fatalf("outputs=%+v", outs)
	}
}

func TestRun_UpstreamErrorIsFinalAnswer(t *testing.T) {
	m := fake.New().ThenFail(llm.Classify("test", 429, errors.New("slow down")))
	a := newAgent(m, []action.Action{echo("a"), echo("b")})

	got, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "The task could not be completed") {
		t.Fatalf("got %q", got)
	}
	if m.Calls() != 1 {
		t.Fatalf("calls=%d", m.Calls())
	}
	if res := eventsOf(a.Belief(), belief.EventResult); len(res) != 1 {
		t.Fatalf("result events=%+v", res)
	}
}

func TestRun_RepeatedSearchIsReformulated(t *testing.T) {
	r := &staticRetriever{docs: []vectorstore.Document{paris}}
	search := `{"command": {"name": "search", "args": {"query": "capital"}}}`
	m := fake.New(search, search, `"capital city of France"`, `{"command": {"name": "finish"}}`, "Paris.")
	a := newAgent(m, []action.Action{tools.NewSearch(r), tools.NewFinish()})

	if _, err := a.Run(context.Background(), "What is the capital of France?"); err != nil {
		t.Fatal(err)
	}
	if strings.Join(r.queries, "|") != "capital|capital city of France" {
		t.Fatalf("queries=%q", r.queries)
	}
	if !strings.Contains(m.Prompt(2), `Reformulate the query "capital"`) {
		t.Fatalf("reformulation prompt: %q", m.Prompt(2))
	}
	if fb := eventsOf(a.Belief(), belief.EventFeedback); len(fb) != 0 {
		t.Fatalf("feedback=%+v", fb)
	}
}

func TestRun_RepeatedSearchSkippedWhenQueryUnchanged(t *testing.T) {
	r := &staticRetriever{docs: []vectorstore.Document{paris}}
	search := `{"command": {"name": "search", "args": {"query": "capital"}}}`
	m := fake.New(search, search, "Capital", `{"command": {"name": "finish"}}`, "Paris.")
	a := newAgent(m, []action.Action{tools.NewSearch(r), tools.NewFinish()})

	if _, err := a.Run(context.Background(), "task"); err != nil {
		t.Fatal(err)
	}
	if r.calls != 1 {
		t.Fatalf("retriever calls=%d", r.calls)
	}
	fb := eventsOf(a.Belief(), belief.EventFeedback)
	if len(fb) != 1 || !strings.Contains(fb[0].Content, "already ran search") {
		t.Fatalf("feedback=%+v", fb)
	}
}

func TestRun_RepeatedNonSearchActionRuns(t *testing.T) {
	cmd := `{"command": {"name": "a"}}`
	m := fake.New(cmd, cmd, `{"command": {"name": "finish"}}`, "ok")
	a := newAgent(m, []action.Action{echo("a"), tools.NewFinish()})
	if _, err := a.Run(context.Background(), "task"); err != nil {
		t.Fatal(err)
	}
	if n := len(eventsOf(a.Belief(), belief.EventActionOutput)); n != 2 {
		t.Fatalf("outputs=%d", n)
	}
}

func TestRun_ValidationRetries(t *testing.T) {
	m := fake.New("There are 42 bridges.", "There are many bridges.")
	a := newAgent(m, []action.Action{tools.NewFinish()}, WithValidators(1, validation.NumberValidation{}))

	got, err := a.Run(context.Background(), "How many bridges cross the Seine in Paris?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "There are many bridges." {
		t.Fatalf("got %q", got)
	}
	if m.Calls() != 2 {
		t.Fatalf("calls=%d", m.Calls())
	}
	if !strings.Contains(m.Prompt(1), "Your previous answer was rejected") {
		t.Fatalf("retry prompt: %q", m.Prompt(1))
	}
}

func TestRun_ValidationGivesUpAfterMaxSteps(t *testing.T) {
	m := fake.New("There are 42 bridges.")
	a := newAgent(m, []action.Action{tools.NewFinish()}, WithValidators(2, validation.NumberValidation{}))

	got, err := a.Run(context.Background(), "How many bridges?")
	if err != nil || got != "There are 42 bridges." {
		t.Fatalf("got=%q err=%v", got, err)
	}
	if m.Calls() != 3 {
		t.Fatalf("calls=%d", m.Calls())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := newAgent(fake.New("x"), []action.Action{echo("a"), echo("b")})
	if _, err := a.Run(ctx, "task"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

type snapshots struct{ saved []belief.Snapshot }

func (s *snapshots) SaveSnapshot(_ context.Context, snap belief.Snapshot) error {
	s.saved = append(s.saved, snap)
	return nil
}

func TestRun_Snapshots(t *testing.T) {
	sink := &snapshots{}
	m := fake.New(`{"command": {"name": "a"}}`, `{"command": {"name": "a"}}`, `{"command": {"name": "finish"}}`, "done")
	a := newAgent(m, []action.Action{echo("a"), tools.NewFinish()}, WithSnapshot(sink, 1))

	if _, err := a.Run(context.Background(), "task"); err != nil {
		t.Fatal(err)
	}
	// one per executed step plus the final one
	if len(sink.saved) != 3 {
		t.Fatalf("snapshots=%d", len(sink.saved))
	}
	last := sink.saved[len(sink.saved)-1]
	if last.Task != "task" || last.Events[len(last.Events)-1].Type != belief.EventResult {
		t.Fatalf("last snapshot=%+v", last)
	}
}
