// Package statemachine constrains which actions an agent may take. Each
// transition is exposed to the policy as an action named after its trigger;
// firing it runs the transition's callbacks and moves the machine.
package statemachine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/errmodel"
)

// TagWaiting marks states in which the agent waits for outside input.
// Transitions leaving them are hidden from the policy unless asked for.
const TagWaiting = "waiting"

// State is a named node of the machine.
type State struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// HasTag reports whether the state carries tag.
func (s State) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Guard decides whether a transition may fire.
type Guard func(ctx context.Context) (bool, error)

// Callback runs during a transition. Usage is shown to the model as part of
// the transition's description.
type Callback struct {
	Usage string
	Func  func(ctx context.Context, args map[string]any) (any, error)
}

// Transition moves the machine from Source to Dest when Trigger fires and
// every guard passes. Action, when set, runs after the Before callbacks and
// supplies the transition's arguments.
type Transition struct {
	Trigger string
	Source  string
	Dest    string
	Guards  []Guard
	Before  []Callback
	After   []Callback
	Action  action.Action
}

func (t *Transition) key() string { return t.Trigger + "\x00" + t.Source + "\x00" + t.Dest }

// TransitionOption configures a transition.
type TransitionOption func(*Transition)

// WithGuards adds guards that must all pass.
func WithGuards(g ...Guard) TransitionOption {
	return func(t *Transition) { t.Guards = append(t.Guards, g...) }
}

// WithBefore adds callbacks run before the state changes.
func WithBefore(cb ...Callback) TransitionOption {
	return func(t *Transition) { t.Before = append(t.Before, cb...) }
}

// WithAfter adds callbacks run after the state changed.
func WithAfter(cb ...Callback) TransitionOption {
	return func(t *Transition) { t.After = append(t.After, cb...) }
}

// WithAction attaches an action whose arguments and output become the
// transition's.
func WithAction(a action.Action) TransitionOption {
	return func(t *Transition) { t.Action = a }
}

type stateEntry struct {
	state   State
	onEnter []Callback
	onExit  []Callback
}

// StateOption configures a state.
type StateOption func(*stateEntry)

// OnEnter adds callbacks run when the state is entered.
func OnEnter(cb ...Callback) StateOption {
	return func(e *stateEntry) { e.onEnter = append(e.onEnter, cb...) }
}

// OnExit adds callbacks run when the state is left.
func OnExit(cb ...Callback) StateOption {
	return func(e *stateEntry) { e.onExit = append(e.onExit, cb...) }
}

// Machine is a guarded finite state machine. Transitions are atomic: a
// trigger holds the machine until all its callbacks returned.
type Machine struct {
	fire sync.Mutex // serialises Trigger

	mu          sync.RWMutex
	states      map[string]*stateEntry
	order       []string
	transitions []*Transition
	current     string
	memory      action.Memory
}

// New returns an empty machine. The first state added becomes current.
func New() *Machine {
	return &Machine{states: map[string]*stateEntry{}}
}

// AddState registers a state, replacing one with the same name.
func (m *Machine) AddState(s State, opts ...StateOption) error {
	if s.Name == "" {
		return fmt.Errorf("statemachine: state name is empty")
	}
	e := &stateEntry{state: s}
	for _, o := range opts {
		o(e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[s.Name]; !ok {
		m.order = append(m.order, s.Name)
	}
	m.states[s.Name] = e
	if m.current == "" {
		m.current = s.Name
	}
	return nil
}

// UpdateTransition adds a transition, or reconfigures the one with the same
// trigger, source and destination in place. Calling it twice with the same
// arguments leaves one transition.
func (m *Machine) UpdateTransition(trigger, source, dest string, opts ...TransitionOption) error {
	if trigger == "" {
		return fmt.Errorf("statemachine: trigger is empty")
	}
	t := &Transition{Trigger: trigger, Source: source, Dest: dest}
	for _, o := range opts {
		o(t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range []string{source, dest} {
		if _, ok := m.states[n]; !ok {
			return fmt.Errorf("statemachine: unknown state %q", n)
		}
	}
	for i, existing := range m.transitions {
		if existing.key() == t.key() {
			m.transitions[i] = t
			return nil
		}
	}
	m.transitions = append(m.transitions, t)
	return nil
}

// Bind sets the memory used to resolve belief-sourced arguments of attached
// actions.
func (m *Machine) Bind(mem action.Memory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memory = mem
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.states[m.current]; ok {
		return e.state
	}
	return State{Name: m.current}
}

// SetState jumps to a state without running callbacks. Used on restore.
func (m *Machine) SetState(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[name]; !ok {
		return fmt.Errorf("statemachine: unknown state %q", name)
	}
	m.current = name
	return nil
}

// States returns the states in registration order.
func (m *Machine) States() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]State, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, m.states[n].state)
	}
	return out
}

// Transitions returns copies of the transitions in registration order.
func (m *Machine) Transitions() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transition, 0, len(m.transitions))
	for _, t := range m.transitions {
		out = append(out, *t)
	}
	return out
}

// Actions returns one action per trigger that can fire from the current
// state, in registration order. With includeWaiting false, transitions out of
// waiting states are left out.
func (m *Machine) Actions(ctx context.Context, includeWaiting bool) ([]action.Action, error) {
	m.mu.RLock()
	cur := m.current
	var candidates []*Transition
	for _, t := range m.transitions {
		if t.Source != cur {
			continue
		}
		if !includeWaiting && m.states[t.Source].state.HasTag(TagWaiting) {
			continue
		}
		candidates = append(candidates, t)
	}
	m.mu.RUnlock()

	seen := map[string]bool{}
	var out []action.Action
	for _, t := range candidates {
		if seen[t.Trigger] {
			continue
		}
		ok, err := passes(ctx, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		seen[t.Trigger] = true
		out = append(out, m.wrap(t))
	}
	return out, nil
}

// Trigger fires the first transition named trigger that can leave the current
// state. Order: guards, before callbacks, the attached action, exit callbacks,
// state change, enter callbacks, after callbacks. A failure before the state
// change leaves the machine where it was.
func (m *Machine) Trigger(ctx context.Context, trigger string, args map[string]any) (any, error) {
	m.fire.Lock()
	defer m.fire.Unlock()

	m.mu.RLock()
	cur := m.current
	mem := m.memory
	var candidates []*Transition
	for _, t := range m.transitions {
		if t.Trigger == trigger && t.Source == cur {
			candidates = append(candidates, t)
		}
	}
	m.mu.RUnlock()

	var t *Transition
	for _, c := range candidates {
		ok, err := passes(ctx, c)
		if err != nil {
			return nil, err
		}
		if ok {
			t = c
			break
		}
	}
	if t == nil {
		return nil, errmodel.Policy(errmodel.CodeInvalidSelection,
			fmt.Sprintf("trigger %q cannot fire from state %q", trigger, cur),
			map[string]any{"trigger": trigger, "state": cur})
	}

	var outputs []any
	run := func(cbs []Callback) error {
		for _, cb := range cbs {
			if cb.Func == nil {
				continue
			}
			out, err := cb.Func(ctx, args)
			if err != nil {
				return err
			}
			if out != nil {
				outputs = append(outputs, out)
			}
		}
		return nil
	}

	if err := run(t.Before); err != nil {
		return nil, err
	}
	if t.Action != nil {
		out, _, err := action.Invoke(ctx, t.Action, args, mem)
		if err != nil {
			return nil, err
		}
		if out != nil {
			outputs = append(outputs, out)
		}
	}
	m.mu.RLock()
	src, dst := m.states[t.Source], m.states[t.Dest]
	m.mu.RUnlock()
	if err := run(src.onExit); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = t.Dest
	m.mu.Unlock()
	if err := run(dst.onEnter); err != nil {
		return nil, err
	}
	if err := run(t.After); err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		return fmt.Sprintf("moved to state %s", t.Dest), nil
	}
	parts := make([]string, len(outputs))
	for i, o := range outputs {
		parts[i] = action.FormatOutput(o)
	}
	return strings.Join(parts, "\n"), nil
}

func passes(ctx context.Context, t *Transition) (bool, error) {
	for _, g := range t.Guards {
		ok, err := g(ctx)
		if err != nil {
			return false, fmt.Errorf("statemachine: guard on %q: %w", t.Trigger, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
