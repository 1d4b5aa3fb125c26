package pool

import (
	"github.com/wilhg/sherpa/pkg/belief"
	"github.com/wilhg/sherpa/pkg/runtime"
)

// Capture builds the persistable view of a task agent.
func Capture(a *runtime.TaskAgent, agentType string, cfg map[string]any) Agent {
	return Agent{
		Name:        a.Name(),
		Description: a.Description(),
		AgentType:   agentType,
		Config:      cfg,
		Belief:      a.Belief().Snapshot(),
	}
}

// RestoreInto loads the stored belief into b. Attach the state machine
// before calling so the saved state is applied.
func (a Agent) RestoreInto(b *belief.Belief) error {
	return b.Restore(a.Belief)
}
