// Package policy chooses the next action for an agent. The ReAct policies
// render the belief into a prompt, ask the model for a JSON command and
// resolve it against the actions the belief currently allows.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/belief"
	"github.com/wilhg/sherpa/pkg/errmodel"
	"github.com/wilhg/sherpa/pkg/logging"
	"github.com/wilhg/sherpa/pkg/prompt"
	"github.com/wilhg/sherpa/pkg/tokenizer"
)

// Output is a policy decision.
type Output struct {
	Action action.Action
	Args   map[string]any
}

// Same reports whether two decisions pick the same action with equal args.
func (o Output) Same(other Output) bool {
	if o.Action == nil || other.Action == nil {
		return false
	}
	if o.Action.Name() != other.Action.Name() {
		return false
	}
	if len(o.Args) == 0 && len(other.Args) == 0 {
		return true
	}
	return reflect.DeepEqual(o.Args, other.Args)
}

// Policy selects the next action.
type Policy interface {
	SelectAction(ctx context.Context, b *belief.Belief) (Output, error)
}

// Option configures a ReactPolicy.
type Option func(*ReactPolicy)

// WithRole sets the role line of the prompt.
func WithRole(role string) Option { return func(p *ReactPolicy) { p.role = role } }

// WithPrompts replaces the template store.
func WithPrompts(s *prompt.Store) Option { return func(p *ReactPolicy) { p.prompts = s } }

// WithTokenizer sets the counter used to budget context and history.
func WithTokenizer(c tokenizer.Counter) Option { return func(p *ReactPolicy) { p.count = c } }

// WithBudgets sets the token budgets for context and action history.
func WithBudgets(contextTokens, historyTokens int) Option {
	return func(p *ReactPolicy) { p.contextBudget, p.historyBudget = contextTokens, historyTokens }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(p *ReactPolicy) { p.logger = logging.OrNoOp(l) } }

// WithModelOptions passes opts to every Generate call.
func WithModelOptions(opts map[string]any) Option {
	return func(p *ReactPolicy) { p.modelOpts = opts }
}

// ReactPolicy asks the model for one JSON command per step. In chat mode the
// instructions go in a system message and the task in a user message.
type ReactPolicy struct {
	model         llm.LLM
	prompts       *prompt.Store
	role          string
	count         tokenizer.Counter
	contextBudget int
	historyBudget int
	logger        logging.Logger
	modelOpts     map[string]any
	chat          bool
}

// NewReactPolicy returns a single-prompt policy.
func NewReactPolicy(model llm.LLM, opts ...Option) *ReactPolicy {
	p := &ReactPolicy{
		model:         model,
		prompts:       prompt.Defaults(),
		role:          "a helpful assistant",
		count:         tokenizer.Runes,
		contextBudget: 3000,
		historyBudget: 1500,
		logger:        logging.NoOpLogger{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewChatPolicy returns a policy that splits its prompt into system and user
// messages.
func NewChatPolicy(model llm.LLM, opts ...Option) *ReactPolicy {
	p := NewReactPolicy(model, opts...)
	p.chat = true
	return p
}

// SelectAction picks the next action. When only one action is available it is
// returned with no arguments and the model is not consulted.
func (p *ReactPolicy) SelectAction(ctx context.Context, b *belief.Belief) (Output, error) {
	ctx, span := otel.Tracer("policy").Start(ctx, "Policy.SelectAction", trace.WithAttributes(
		attribute.Bool("policy.chat", p.chat),
	))
	defer span.End()
	actions, err := b.Actions(ctx)
	if err != nil {
		span.RecordError(err)
		return Output{}, err
	}
	span.SetAttributes(attribute.Int("policy.candidates", len(actions)))
	switch len(actions) {
	case 0:
		return Output{}, errmodel.Policy(errmodel.CodeInvalidSelection, "no actions available", nil)
	case 1:
		p.logger.Debug("single action available, skipping model", "action", actions[0].Name())
		return Output{Action: actions[0], Args: map[string]any{}}, nil
	}

	messages, err := p.messages(b, actions)
	if err != nil {
		return Output{}, err
	}
	res, err := p.model.Generate(ctx, messages, p.modelOpts)
	if err != nil {
		span.RecordError(err)
		return Output{}, err
	}
	p.logger.Debug("policy response", "text", res.Text)

	cmd, err := ParseCommand(res.Text)
	if err != nil {
		span.RecordError(err)
		return Output{}, err
	}
	span.SetAttributes(attribute.String("policy.action", cmd.Name))
	for _, a := range actions {
		if a.Name() == cmd.Name {
			return Output{Action: a, Args: cmd.Args}, nil
		}
	}
	return Output{}, errmodel.Policy(errmodel.CodeInvalidSelection,
		fmt.Sprintf("action %q is not available; choose one of: %s", cmd.Name, strings.Join(names(actions), ", ")),
		map[string]any{"action": cmd.Name})
}

func (p *ReactPolicy) messages(b *belief.Belief, actions []action.Action) ([]llm.Message, error) {
	data := prompt.PolicyData{
		Role:           p.role,
		Task:           b.CurrentTask(),
		Context:        b.Context(p.count, p.contextBudget),
		History:        b.InternalHistory(p.count, p.historyBudget),
		ResponseFormat: ResponseFormat(),
	}
	if st, ok := b.State(); ok {
		data.State = &prompt.StateView{Name: st.Name, Description: st.Description}
	}
	for _, a := range actions {
		data.Actions = append(data.Actions, prompt.ActionView{Name: a.Name(), Description: action.Describe(a)})
	}
	if !p.chat {
		text, err := p.prompts.Render(prompt.ReactPolicy, data)
		if err != nil {
			return nil, errmodel.System("prompt_error", "render policy prompt", nil, err)
		}
		return []llm.Message{{Role: llm.RoleUser, Content: text}}, nil
	}
	sys, err := p.prompts.Render(prompt.ChatPolicySystem, data)
	if err != nil {
		return nil, errmodel.System("prompt_error", "render policy system prompt", nil, err)
	}
	user, err := p.prompts.Render(prompt.ChatPolicyUser, data)
	if err != nil {
		return nil, errmodel.System("prompt_error", "render policy user prompt", nil, err)
	}
	return []llm.Message{{Role: llm.RoleSystem, Content: sys}, {Role: llm.RoleUser, Content: user}}, nil
}

// ResponseFormat is the JSON example shown to the model.
func ResponseFormat() string {
	type command struct {
		Name string            `json:"name"`
		Args map[string]string `json:"args"`
	}
	b, _ := json.MarshalIndent(struct {
		Command command `json:"command"`
	}{command{Name: "action name", Args: map[string]string{"arg name": "value"}}}, "", "    ")
	return string(b)
}

func names(actions []action.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Name()
	}
	return out
}
