package action

import (
	"fmt"
	"sync"
)

// Registry keeps actions by name in registration order.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	order   []string
}

// NewRegistry returns a registry holding the given actions.
func NewRegistry(actions ...Action) (*Registry, error) {
	r := &Registry{actions: map[string]Action{}}
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an action. Names must be unique.
func (r *Registry) Register(a Action) error {
	if a == nil {
		return fmt.Errorf("action is nil")
	}
	name := a.Name()
	if name == "" {
		return fmt.Errorf("action name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actions == nil {
		r.actions = map[string]Action{}
	}
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	r.actions[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns an action by name.
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// List returns the actions in registration order.
func (r *Registry) List() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Action, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.actions[n])
	}
	return out
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
