package statemachine

import (
	"context"
	"fmt"
	"strings"

	"github.com/wilhg/sherpa/pkg/action"
)

// transitionAction exposes a transition to the policy.
type transitionAction struct {
	m     *Machine
	t     Transition
	usage string
}

func (m *Machine) wrap(t *Transition) action.Action {
	m.mu.RLock()
	src, dst := m.states[t.Source], m.states[t.Dest]
	m.mu.RUnlock()
	return &transitionAction{m: m, t: *t, usage: usage(t, src, dst)}
}

// usage concatenates callback usages in a fixed order: source exit, before
// (including the attached action), destination enter, after. It ends with
// the move the transition makes.
func usage(t *Transition, src, dst *stateEntry) string {
	var parts []string
	add := func(cbs []Callback) {
		for _, cb := range cbs {
			if u := strings.TrimSpace(cb.Usage); u != "" {
				parts = append(parts, u)
			}
		}
	}
	add(src.onExit)
	add(t.Before)
	if t.Action != nil {
		if u := strings.TrimSpace(t.Action.Usage()); u != "" {
			parts = append(parts, u)
		}
	}
	add(dst.onEnter)
	add(t.After)
	parts = append(parts, fmt.Sprintf("Moves from %s to %s.", t.Source, t.Dest))
	return strings.Join(parts, " ")
}

func (a *transitionAction) Name() string      { return a.t.Trigger }
func (a *transitionAction) Kind() action.Kind { return action.KindTransition }
func (a *transitionAction) Usage() string     { return a.usage }

func (a *transitionAction) Arguments() []action.ArgumentSpec {
	if a.t.Action == nil {
		return nil
	}
	return a.t.Action.Arguments()
}

// InputSchema forwards a schema published by the attached action.
func (a *transitionAction) InputSchema() []byte {
	if s, ok := a.t.Action.(action.Schemed); ok {
		return s.InputSchema()
	}
	if a.t.Action == nil || len(a.t.Action.Arguments()) == 0 {
		return nil
	}
	b, err := action.SchemaBytes(a.t.Action)
	if err != nil {
		return nil
	}
	return b
}

func (a *transitionAction) Execute(ctx context.Context, args map[string]any) (any, error) {
	return a.m.Trigger(ctx, a.t.Trigger, args)
}
