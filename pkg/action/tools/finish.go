package tools

import (
	"context"

	"github.com/wilhg/sherpa/pkg/action"
)

// FinishName is the name of the sentinel action that ends a run.
const FinishName = "finish"

// Finish is the sentinel action. Selecting it ends the run-loop, which then
// synthesizes the answer; executing it does nothing.
type Finish struct {
	action.Base
}

// NewFinish returns the finish action.
func NewFinish(opts ...action.Option) *Finish {
	opts = append([]action.Option{action.WithKind(action.KindFinish)}, opts...)
	return &Finish{Base: action.NewBase(FinishName, "Finish the task and write the final answer", nil, opts...)}
}

func (*Finish) Execute(context.Context, map[string]any) (any, error) { return nil, nil }

// IsFinish reports whether a ends the run.
func IsFinish(a action.Action) bool {
	return a != nil && (a.Kind() == action.KindFinish || a.Name() == FinishName)
}
