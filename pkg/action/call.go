package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/wilhg/sherpa/pkg/errmodel"
)

// memoryFor picks the memory used for a call: the explicit one when given,
// otherwise whatever the action is bound to.
func memoryFor(a Action, mem Memory) Memory {
	if mem != nil {
		return mem
	}
	if b, ok := a.(Bound); ok {
		return b.Memory()
	}
	return nil
}

// Resolve builds the argument map an action executes with. Caller-sourced
// arguments come from input, belief-sourced ones from mem. Actions that declare
// no arguments receive a copy of input unchanged.
func Resolve(a Action, input map[string]any, mem Memory) (map[string]any, error) {
	specs := a.Arguments()
	if len(specs) == 0 {
		out := make(map[string]any, len(input))
		for k, v := range input {
			out[k] = v
		}
		return out, nil
	}
	mem = memoryFor(a, mem)
	out := make(map[string]any, len(specs))
	for _, s := range specs {
		if s.FromBelief() {
			if mem == nil {
				return nil, errmodel.Validation(errmodel.CodeMissingBeliefArgument,
					fmt.Sprintf("action %q reads %q from belief but no belief is bound", a.Name(), s.Key()),
					map[string]any{"action": a.Name(), "argument": s.Name})
			}
			v, ok := mem.Get(s.Key())
			if !ok {
				if s.Optional {
					continue
				}
				return nil, errmodel.Validation(errmodel.CodeMissingBeliefArgument,
					fmt.Sprintf("missing argument %q in belief", s.Key()),
					map[string]any{"action": a.Name(), "argument": s.Name})
			}
			out[s.Name] = v
			continue
		}
		v, ok := input[s.Name]
		if !ok || v == nil {
			if s.Optional {
				continue
			}
			return nil, errmodel.Validation(errmodel.CodeMissingArgument,
				fmt.Sprintf("missing argument %q", s.Name),
				map[string]any{"action": a.Name(), "argument": s.Name})
		}
		out[s.Name] = v
	}
	return out, nil
}

// Invoke resolves and validates arguments and executes the action. It does
// not touch the belief.
func Invoke(ctx context.Context, a Action, input map[string]any, mem Memory) (any, map[string]any, error) {
	if a == nil {
		return nil, nil, errmodel.Validation(errmodel.CodeInvalidInput, "action is nil", nil)
	}
	args, err := Resolve(a, input, mem)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateArguments(a, args); err != nil {
		return nil, args, err
	}
	out, err := a.Execute(ctx, args)
	if err != nil {
		var ce *errmodel.Error
		if errors.As(err, &ce) {
			return nil, args, err
		}
		return nil, args, errmodel.Tool(err.Error(), map[string]any{"action": a.Name()}, err)
	}
	return out, args, nil
}

// Call invokes the action and records the outcome in memory: the result is
// stored under the action's output key (its name unless set) and an
// action_output entry is appended for both results and failures.
// Cancellation is not recorded.
func Call(ctx context.Context, a Action, input map[string]any, mem Memory) (any, error) {
	out, args, err := Invoke(ctx, a, input, mem)
	m := memoryFor(a, mem)
	if err != nil {
		if m != nil && a != nil && ctx.Err() == nil {
			if args == nil {
				args = input
			}
			m.RecordOutput(a.Name(), args, errmodel.Observation(err, args))
		}
		return nil, err
	}
	if m != nil {
		key := a.Name()
		if b, ok := a.(Bound); ok && b.OutputKey() != "" {
			key = b.OutputKey()
		}
		m.Set(key, out)
		m.RecordOutput(a.Name(), args, Observation(a.Name(), out))
	}
	return out, nil
}

// Observation renders a successful call the way it is fed back to the model.
func Observation(name string, out any) string {
	return fmt.Sprintf("Command %s returned: %s", name, FormatOutput(out))
}
