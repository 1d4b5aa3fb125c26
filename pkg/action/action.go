// Package action defines the units of work an agent can perform.
//
// An Action declares its arguments up front. Each argument is either supplied by
// the caller (normally the policy, from the model's output) or read from the
// agent's belief under a key. Call resolves both kinds, validates them against
// the JSON schema derived from the declaration, runs the action and records the
// output back into the belief.
package action

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind is the closed set of action variants.
type Kind string

const (
	KindFunction   Kind = "function"
	KindSearch     Kind = "search"
	KindMCP        Kind = "mcp"
	KindTransition Kind = "transition"
	KindFinish     Kind = "finish"
)

// Source says where an argument value comes from.
type Source string

const (
	SourceCaller Source = "caller"
	SourceBelief Source = "belief"
)

// ArgumentSpec declares one argument of an action.
type ArgumentSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"` // JSON schema type, string when empty
	Description string `json:"description,omitempty"`
	Source      Source `json:"source,omitempty"`
	// BeliefKey overrides Name as the lookup key for belief-sourced arguments.
	BeliefKey string `json:"belief_key,omitempty"`
	Optional  bool   `json:"optional,omitempty"`
}

// Key returns the belief key for the argument.
func (a ArgumentSpec) Key() string {
	if a.BeliefKey != "" {
		return a.BeliefKey
	}
	return a.Name
}

// FromBelief reports whether the argument is read from the belief.
func (a ArgumentSpec) FromBelief() bool { return a.Source == SourceBelief }

// Action is a named capability with declared arguments.
type Action interface {
	Name() string
	Kind() Kind
	Usage() string
	Arguments() []ArgumentSpec
	// Execute runs the action with fully resolved arguments.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Memory is the slice of an agent's belief that actions read from and write to.
// *belief.Belief implements it.
type Memory interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	RecordOutput(action string, args map[string]any, content string)
}

// Bound is implemented by actions that carry their own memory handle and
// output key. Base implements it.
type Bound interface {
	Memory() Memory
	OutputKey() string
}

// Base carries the declaration shared by every action variant. Embed it and
// add an Execute method.
type Base struct {
	name      string
	usage     string
	kind      Kind
	args      []ArgumentSpec
	outputKey string
	memory    Memory
}

// Option configures a Base.
type Option func(*Base)

// WithMemory binds a belief handle used to resolve belief-sourced arguments.
func WithMemory(m Memory) Option { return func(b *Base) { b.memory = m } }

// WithOutputKey stores the action result in the belief under key instead of
// the action name.
func WithOutputKey(key string) Option { return func(b *Base) { b.outputKey = key } }

// WithKind overrides the default KindFunction.
func WithKind(k Kind) Option { return func(b *Base) { b.kind = k } }

// NewBase builds a Base. Arguments without a Source are caller-sourced.
func NewBase(name, usage string, args []ArgumentSpec, opts ...Option) Base {
	b := Base{name: name, usage: usage, kind: KindFunction}
	for _, a := range args {
		if a.Source == "" {
			a.Source = SourceCaller
		}
		if a.Type == "" {
			a.Type = "string"
		}
		b.args = append(b.args, a)
	}
	for _, o := range opts {
		o(&b)
	}
	return b
}

func (b *Base) Name() string              { return b.name }
func (b *Base) Kind() Kind                { return b.kind }
func (b *Base) Usage() string             { return b.usage }
func (b *Base) Arguments() []ArgumentSpec { return append([]ArgumentSpec(nil), b.args...) }
func (b *Base) Memory() Memory            { return b.memory }
func (b *Base) OutputKey() string         { return b.outputKey }

// Bind attaches a memory handle after construction.
func (b *Base) Bind(m Memory) { b.memory = m }

// Func is the body of a function action.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Function is an action backed by a Go function.
type Function struct {
	Base
	fn Func
}

// NewFunction builds a Function action.
func NewFunction(name, usage string, args []ArgumentSpec, fn Func, opts ...Option) *Function {
	return &Function{Base: NewBase(name, usage, args, opts...), fn: fn}
}

func (f *Function) Execute(ctx context.Context, args map[string]any) (any, error) {
	if f.fn == nil {
		return nil, fmt.Errorf("action %q has no body", f.name)
	}
	return f.fn(ctx, args)
}

// Describe returns the one-line description used in prompts: the usage and
// the JSON encoding of the caller-sourced arguments.
func Describe(a Action) string {
	var shown []ArgumentSpec
	for _, arg := range a.Arguments() {
		if !arg.FromBelief() {
			shown = append(shown, ArgumentSpec{Name: arg.Name, Type: arg.Type, Description: arg.Description})
		}
	}
	if len(shown) == 0 {
		return a.Usage()
	}
	b, _ := json.Marshal(shown)
	return fmt.Sprintf("%s, args: %s", a.Usage(), b)
}

// FormatOutput renders an action result as observation text.
func FormatOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprint(out)
	}
	return string(b)
}
