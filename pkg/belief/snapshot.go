package belief

import (
	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
)

// Snapshot is the serialisable part of a belief. Actions and the state
// machine itself are code and are rebuilt by the owner; only the current
// state name travels.
type Snapshot struct {
	Task      string                 `json:"task,omitempty"`
	Events    []Event                `json:"events,omitempty"`
	Values    map[string]any         `json:"values,omitempty"`
	Resources []vectorstore.Document `json:"resources,omitempty"`
	State     string                 `json:"state,omitempty"`
}

// Snapshot copies the belief's data.
func (b *Belief) Snapshot() Snapshot {
	b.mu.RLock()
	s := Snapshot{
		Task:      b.task,
		Events:    append([]Event(nil), b.events...),
		Resources: append([]vectorstore.Document(nil), b.resources...),
	}
	if len(b.values) > 0 {
		s.Values = make(map[string]any, len(b.values))
		for k, v := range b.values {
			s.Values[k] = v
		}
	}
	m := b.machine
	b.mu.RUnlock()
	if m != nil {
		s.State = m.Current().Name
	}
	return s
}

// Restore replaces the belief's data with s. The state is applied only when a
// state machine is attached.
func (b *Belief) Restore(s Snapshot) error {
	b.mu.Lock()
	b.task = s.Task
	b.events = append([]Event(nil), s.Events...)
	b.resources = append([]vectorstore.Document(nil), s.Resources...)
	b.values = make(map[string]any, len(s.Values))
	for k, v := range s.Values {
		b.values[k] = v
	}
	m := b.machine
	b.mu.Unlock()
	if m != nil && s.State != "" {
		return m.SetState(s.State)
	}
	return nil
}
