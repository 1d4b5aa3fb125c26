// Package belief holds an agent's working memory: the event history, a
// key/value store that actions read from and write to, the retrieved
// resources available for citation, and the state machine or action list that
// decides what the agent may do next.
package belief

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
	"github.com/wilhg/sherpa/pkg/statemachine"
	"github.com/wilhg/sherpa/pkg/tokenizer"
)

// EventType classifies history entries.
type EventType string

const (
	EventTask         EventType = "task"
	EventAction       EventType = "action"
	EventActionOutput EventType = "action_output"
	EventResult       EventType = "result"
	EventFeedback     EventType = "feedback"
	EventUserInput    EventType = "user_input"
	EventObservation  EventType = "observation"
)

// Event is one immutable entry in the history.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Sender    string         `json:"sender,omitempty"`
	Content   string         `json:"content"`
	Args      map[string]any `json:"args,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Line renders the event the way it appears in prompts.
func (e Event) Line() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Content)
}

// Belief is owned by one agent. Methods are safe for concurrent use, but
// callers must not hold results across state machine transitions.
type Belief struct {
	mu        sync.RWMutex
	task      string
	events    []Event
	values    map[string]any
	resources []vectorstore.Document
	actions   []action.Action
	machine   *statemachine.Machine
	now       func() time.Time
}

// New returns an empty belief.
func New() *Belief {
	return &Belief{values: map[string]any{}, now: time.Now}
}

// CurrentTask returns the content of the latest task event.
func (b *Belief) CurrentTask() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.task
}

// SetCurrentTask records a new task and appends a task event.
func (b *Belief) SetCurrentTask(task string) {
	b.mu.Lock()
	b.task = task
	b.mu.Unlock()
	b.AddEvent(EventTask, "user", task, nil)
}

// AddEvent appends an event and returns it.
func (b *Belief) AddEvent(typ EventType, sender, content string, args map[string]any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Sender:    sender,
		Content:   content,
		Args:      args,
		Timestamp: b.now().UTC(),
	}
	b.events = append(b.events, ev)
	return ev
}

// Events returns a copy of the history.
func (b *Belief) Events() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.events...)
}

// Get reads a value stored by an action or the host application.
func (b *Belief) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Set stores a value.
func (b *Belief) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
}

// Values returns a shallow copy of the key/value store.
func (b *Belief) Values() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// RecordOutput appends an action_output event. It satisfies action.Memory.
func (b *Belief) RecordOutput(name string, args map[string]any, content string) {
	b.AddEvent(EventActionOutput, name, content, args)
}

// AddResources makes documents available for citation.
func (b *Belief) AddResources(docs ...vectorstore.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resources = append(b.resources, docs...)
}

// Resources returns the documents gathered so far, in insertion order.
func (b *Belief) Resources() []vectorstore.Document {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]vectorstore.Document(nil), b.resources...)
}

// SetActions replaces the flat action list used when no state machine is set.
// Actions embedding action.Base are bound to this belief.
func (b *Belief) SetActions(actions ...action.Action) {
	for _, a := range actions {
		bindMemory(a, b)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions = append([]action.Action(nil), actions...)
}

// SetStateMachine makes m the source of available actions.
func (b *Belief) SetStateMachine(m *statemachine.Machine) {
	if m != nil {
		m.Bind(b)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.machine = m
}

// StateMachine returns the attached state machine, or nil.
func (b *Belief) StateMachine() *statemachine.Machine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.machine
}

// State returns the current state when a state machine is attached.
func (b *Belief) State() (statemachine.State, bool) {
	m := b.StateMachine()
	if m == nil {
		return statemachine.State{}, false
	}
	return m.Current(), true
}

// Actions lists what the agent may do now. With a state machine these are the
// transitions whose guards pass in the current state; otherwise the flat list.
func (b *Belief) Actions(ctx context.Context) ([]action.Action, error) {
	b.mu.RLock()
	m := b.machine
	flat := append([]action.Action(nil), b.actions...)
	b.mu.RUnlock()
	if m == nil {
		return flat, nil
	}
	// guards may read the belief, so no lock is held here
	return m.Actions(ctx, false)
}

// Action returns the available action with the given name, or nil.
func (b *Belief) Action(ctx context.Context, name string) (action.Action, error) {
	actions, err := b.Actions(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	for _, a := range actions {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, nil
}

// Context renders the conversational history (tasks, user input, results and
// feedback) within maxTokens. The newest events are kept; older ones are
// dropped whole, so a larger budget never yields fewer events.
func (b *Belief) Context(count tokenizer.Counter, maxTokens int) string {
	return b.window(count, maxTokens, func(e Event) bool {
		switch e.Type {
		case EventTask, EventUserInput, EventResult, EventFeedback:
			return true
		}
		return false
	})
}

// InternalHistory renders the actions taken and their outputs within maxTokens.
func (b *Belief) InternalHistory(count tokenizer.Counter, maxTokens int) string {
	return b.window(count, maxTokens, func(e Event) bool {
		return e.Type == EventAction || e.Type == EventActionOutput || e.Type == EventObservation
	})
}

func (b *Belief) window(count tokenizer.Counter, maxTokens int, keep func(Event) bool) string {
	if count == nil {
		count = tokenizer.Runes
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var lines []string
	used := 0
	for i := len(b.events) - 1; i >= 0; i-- {
		e := b.events[i]
		if !keep(e) {
			continue
		}
		line := e.Line()
		n := count(line)
		if used+n > maxTokens {
			break
		}
		used += n
		lines = append(lines, line)
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

func bindMemory(a action.Action, m action.Memory) {
	if b, ok := a.(interface {
		Memory() action.Memory
		Bind(action.Memory)
	}); ok && b.Memory() == nil {
		b.Bind(m)
	}
}
