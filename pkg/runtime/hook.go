package runtime

import (
	"slices"

	"github.com/wilhg/sherpa/pkg/policy"
)

// RepeatedActionHook detects the policy choosing the same action with the same
// arguments twice in a row. The run-loop then asks the model to reformulate
// the query argument and runs the action with it, or skips the action when no
// new query comes back.
type RepeatedActionHook struct {
	Enabled bool
	// Names limits the hook to these actions. Empty watches every action.
	Names []string
}

// DefaultRepeatedActionHook watches the search actions.
func DefaultRepeatedActionHook() RepeatedActionHook {
	return RepeatedActionHook{Enabled: true, Names: []string{"search", "context_search"}}
}

// Triggered reports whether cur repeats prev.
func (h RepeatedActionHook) Triggered(prev, cur policy.Output) bool {
	if !h.Enabled || !prev.Same(cur) {
		return false
	}
	return len(h.Names) == 0 || slices.Contains(h.Names, cur.Action.Name())
}
