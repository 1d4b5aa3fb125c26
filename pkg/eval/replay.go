package eval

import (
	"context"
	"encoding/json"
	"io/fs"
	"reflect"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/adapters/llm/fake"
	"github.com/wilhg/sherpa/pkg/belief"
	"github.com/wilhg/sherpa/pkg/policy"
)

// ReplayEvent is a belief event preloaded before the decision.
type ReplayEvent struct {
	Type    belief.EventType `json:"type"`
	Content string           `json:"content"`
}

// ReplayCase is one recorded policy decision: the belief the policy saw, the
// model output it got and the action it should pick.
type ReplayCase struct {
	Name     string         `json:"name"`
	Task     string         `json:"task"`
	Events   []ReplayEvent  `json:"events,omitempty"`
	Actions  []string       `json:"actions"`
	Response string         `json:"response"`
	Expect   ExpectedAction `json:"expect"`
}

// ExpectedAction is the decision a replay case should produce. An empty Action
// expects the policy to reject the response. Args are compared only when set.
type ExpectedAction struct {
	Action string         `json:"action,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
}

// PolicyFactory builds the policy under test around a scripted model.
type PolicyFactory func(model llm.LLM) policy.Policy

// LoadReplayCases reads every json file in dir as a ReplayCase.
func LoadReplayCases(fsys fs.FS, dir string) ([]ReplayCase, error) {
	return loadJSON[ReplayCase](fsys, dir)
}

// ReplayPolicy feeds each case's recorded response to a fresh policy and
// scores how many decisions match. Actions are looked up by name in reg.
func ReplayPolicy(ctx context.Context, newPolicy PolicyFactory, reg *action.Registry, cases []ReplayCase) (Report, error) {
	var r Report
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return r.finish(), err
		}
		r.add(replayOne(ctx, &r, newPolicy, reg, c))
	}
	return r.finish(), nil
}

func replayOne(ctx context.Context, r *Report, newPolicy PolicyFactory, reg *action.Registry, c ReplayCase) bool {
	b := belief.New()
	b.SetCurrentTask(c.Task)
	for _, e := range c.Events {
		b.AddEvent(e.Type, "replay", e.Content, nil)
	}
	actions := make([]action.Action, 0, len(c.Actions))
	for _, name := range c.Actions {
		a, ok := reg.Get(name)
		if !ok {
			r.fail(c.Name, "unknown action %s", name)
			return false
		}
		actions = append(actions, a)
	}
	b.SetActions(actions...)

	out, err := newPolicy(fake.New(c.Response)).SelectAction(ctx, b)
	if c.Expect.Action == "" {
		if err == nil {
			r.fail(c.Name, "expected rejection, got %s", out.Action.Name())
			return false
		}
		return true
	}
	if err != nil {
		r.fail(c.Name, "policy error: %v", err)
		return false
	}
	if got := out.Action.Name(); got != c.Expect.Action {
		r.fail(c.Name, "action %s, want %s", got, c.Expect.Action)
		return false
	}
	if c.Expect.Args != nil && !sameJSON(out.Args, c.Expect.Args) {
		r.fail(c.Name, "args %v, want %v", out.Args, c.Expect.Args)
		return false
	}
	return true
}

// sameJSON compares two values after normalizing them through JSON.
func sameJSON(a, b any) bool {
	norm := func(v any) any {
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		_ = json.Unmarshal(raw, &out)
		return out
	}
	return reflect.DeepEqual(norm(a), norm(b))
}
