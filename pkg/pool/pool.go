// Package pool keeps agents across sessions. It writes each agent as one
// store record, serves lookups from a read-through cache, enforces per-user
// quotas and tracks user sessions.
//
// Failures of the durable store are logged and reported as "not found" or
// false so one bad record cannot break listings. Name conflicts and quota
// violations are returned as errors.
package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wilhg/sherpa/pkg/belief"
	"github.com/wilhg/sherpa/pkg/errmodel"
	"github.com/wilhg/sherpa/pkg/logging"
	"github.com/wilhg/sherpa/pkg/store"
)

const warmConcurrency = 8

// Agent is the persistable view of an agent.
type Agent struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	AgentType      string          `json:"agent_type"`
	Config         map[string]any  `json:"config"`
	Belief         belief.Snapshot `json:"belief"`
	SharedMemory   map[string]any  `json:"shared_memory"`
	ExecutionState map[string]any  `json:"execution_state"`
}

// Entry is an agent together with its pool metadata.
type Entry struct {
	ID        string
	UserID    string
	Tags      []string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Agent     Agent
}

// Stats summarizes the pool.
type Stats struct {
	Agents         int
	ActiveAgents   int
	Users          int
	ActiveSessions int
	Cached         int
}

// Pool is safe for concurrent use. Writers are serialized by one mutex; cached
// reads do not take it.
type Pool struct {
	st               store.Store
	logger           logging.Logger
	defaultMaxAgents int
	softDelete       bool
	now              func() time.Time

	mu sync.Mutex // serializes writes to st

	cacheMu sync.RWMutex
	byID    map[string]*Entry
	byName  map[string]string
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(p *Pool) { p.logger = logging.OrNoOp(l) } }

// WithDefaultMaxAgents sets the quota for users without preferences.
func WithDefaultMaxAgents(n int) Option { return func(p *Pool) { p.defaultMaxAgents = n } }

// WithSoftDelete sets the default used by Delete.
func WithSoftDelete(soft bool) Option { return func(p *Pool) { p.softDelete = soft } }

// New returns a pool over st and loads every active agent into the cache.
func New(ctx context.Context, st store.Store, opts ...Option) (*Pool, error) {
	if st == nil {
		return nil, errors.New("pool: store is nil")
	}
	p := &Pool{
		st:               st,
		logger:           logging.NoOpLogger{},
		defaultMaxAgents: 10,
		softDelete:       true,
		now:              time.Now,
		byID:             map[string]*Entry{},
		byName:           map[string]string{},
	}
	for _, o := range opts {
		o(p)
	}
	if err := p.warm(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) warm(ctx context.Context) error {
	recs, err := p.st.ListAgents(ctx, store.AgentFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("pool: load agents: %w", err)
	}
	entries := make([]*Entry, len(recs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for i, rec := range recs {
		g.Go(func() error {
			e, err := decode(rec)
			if err != nil {
				p.logger.Error("skipping undecodable agent", "agent_id", rec.AgentID, "error", err)
				return nil
			}
			entries[i] = e
			return nil
		})
	}
	_ = g.Wait()
	for _, e := range entries {
		if e != nil {
			p.cachePut(e)
		}
	}
	p.logger.Info("pool warmed", "agents", len(recs))
	return nil
}

// SaveAgent stores a under (userID, a.Name) and returns its id. An active
// agent with the same name is a duplicate_name error unless overwrite is set,
// in which case it is replaced and keeps its id.
func (p *Pool) SaveAgent(ctx context.Context, a Agent, userID string, tags []string, overwrite bool) (string, error) {
	ctx, span := otel.Tracer("pool").Start(ctx, "Pool.SaveAgent", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("agent.name", a.Name),
		attribute.Bool("overwrite", overwrite),
	))
	defer span.End()
	p.mu.Lock()
	defer p.mu.Unlock()
	id, err := p.saveLocked(ctx, a, userID, tags, overwrite)
	if err != nil {
		span.RecordError(err)
	}
	return id, err
}

// CreateAgentForUser saves a new agent unless the user already has as many
// active agents as their quota allows.
func (p *Pool) CreateAgentForUser(ctx context.Context, a Agent, userID string, tags []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	limit := p.maxAgentsLocked(ctx, userID)
	n, err := p.st.CountActiveAgents(ctx, userID)
	if err != nil {
		p.logger.Error("count agents", "user_id", userID, "error", err)
		return "", errmodel.Persistence("count_failed", "cannot count agents", map[string]any{"user_id": userID}, err)
	}
	if n >= limit {
		return "", errmodel.Validation(errmodel.CodeQuotaExceeded,
			fmt.Sprintf("user %s already has %d of %d agents", userID, n, limit),
			map[string]any{"user_id": userID, "max_agents": limit})
	}
	return p.saveLocked(ctx, a, userID, tags, false)
}

func (p *Pool) saveLocked(ctx context.Context, a Agent, userID string, tags []string, overwrite bool) (string, error) {
	if userID == "" || a.Name == "" {
		return "", errmodel.Validation(errmodel.CodeInvalidInput, "user id and agent name are required", nil)
	}
	now := p.now().UTC()
	rec, err := encode(Entry{ID: uuid.NewString(), UserID: userID, Tags: tags, Active: true, CreatedAt: now, UpdatedAt: now, Agent: a})
	if err != nil {
		return "", errmodel.Validation(errmodel.CodeInvalidInput, "agent cannot be encoded", map[string]any{"agent": a.Name})
	}
	stored, err := p.st.InsertAgent(ctx, rec, overwrite)
	if errors.Is(err, store.ErrDuplicate) {
		return "", errmodel.Validation(errmodel.CodeDuplicateName,
			fmt.Sprintf("agent %q already exists for user %s", a.Name, userID),
			map[string]any{"user_id": userID, "agent": a.Name})
	}
	if err != nil {
		p.logger.Error("save agent", "user_id", userID, "agent", a.Name, "error", err)
		return "", errmodel.Persistence("write_failed", "cannot save agent", map[string]any{"agent": a.Name}, err)
	}
	e, err := decode(stored)
	if err != nil {
		return "", errmodel.Persistence(errmodel.CodeCorruptRecord, "stored agent cannot be decoded", nil, err)
	}
	p.cachePut(e)
	return e.ID, nil
}

// GetAgent returns the agent with id, reading through the cache. Missing,
// inactive and unreadable agents yield false.
func (p *Pool) GetAgent(ctx context.Context, agentID string) (*Entry, bool) {
	if e, ok := p.cacheGet(agentID); ok {
		return e, true
	}
	rec, err := p.st.GetAgent(ctx, agentID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error("get agent", "agent_id", agentID, "error", err)
		}
		return nil, false
	}
	if !rec.Active {
		return nil, false
	}
	return p.fill(rec)
}

// GetAgentByName returns the user's active agent called name.
func (p *Pool) GetAgentByName(ctx context.Context, name, userID string) (*Entry, bool) {
	p.cacheMu.RLock()
	id, ok := p.byName[nameKey(userID, name)]
	p.cacheMu.RUnlock()
	if ok {
		if e, ok := p.cacheGet(id); ok {
			return e, true
		}
	}
	rec, err := p.st.GetAgentByName(ctx, userID, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error("get agent by name", "user_id", userID, "agent", name, "error", err)
		}
		return nil, false
	}
	return p.fill(rec)
}

func (p *Pool) fill(rec store.AgentRecord) (*Entry, bool) {
	e, err := decode(rec)
	if err != nil {
		p.logger.Error("agent record unreadable", "agent_id", rec.AgentID, "error", err)
		return nil, false
	}
	p.cachePut(e)
	return clone(e), true
}

// ListAgents lists agents matching every given filter. tags match when any
// of them is present.
func (p *Pool) ListAgents(ctx context.Context, userID, agentType string, tags []string, activeOnly bool) []*Entry {
	recs, err := p.st.ListAgents(ctx, store.AgentFilter{UserID: userID, AgentType: agentType, Tags: tags, ActiveOnly: activeOnly})
	if err != nil {
		p.logger.Error("list agents", "user_id", userID, "error", err)
		return nil
	}
	out := make([]*Entry, 0, len(recs))
	for _, rec := range recs {
		e, err := decode(rec)
		if err != nil {
			p.logger.Error("skipping unreadable agent", "agent_id", rec.AgentID, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

// UpdateAgent replaces the stored agent and keeps its metadata.
func (p *Pool) UpdateAgent(ctx context.Context, agentID string, a Agent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updateLocked(ctx, agentID, func(e *Entry) { e.Agent = a })
}

func (p *Pool) updateLocked(ctx context.Context, agentID string, mutate func(*Entry)) bool {
	rec, err := p.st.GetAgent(ctx, agentID)
	if err != nil {
		p.logger.Error("update agent: load", "agent_id", agentID, "error", err)
		return false
	}
	e, err := decode(rec)
	if err != nil {
		p.logger.Error("update agent: decode", "agent_id", agentID, "error", err)
		return false
	}
	oldName := e.Agent.Name
	mutate(e)
	e.UpdatedAt = p.now().UTC()
	next, err := encode(*e)
	if err != nil {
		p.logger.Error("update agent: encode", "agent_id", agentID, "error", err)
		return false
	}
	if err := p.st.UpdateAgent(ctx, next); err != nil {
		p.logger.Error("update agent", "agent_id", agentID, "error", err)
		return false
	}
	p.cacheDrop(agentID, e.UserID, oldName)
	if e.Active {
		p.cachePut(e)
	}
	return true
}

// DeleteAgent removes an agent. A soft delete marks it inactive and keeps the
// row; a hard delete removes it. Either way it leaves the cache.
func (p *Pool) DeleteAgent(ctx context.Context, agentID string, soft bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	var userID, name string
	if rec, err := p.st.GetAgent(ctx, agentID); err == nil {
		userID, name = rec.UserID, rec.Name
	}
	var err error
	if soft {
		err = p.st.SetAgentActive(ctx, agentID, false)
	} else {
		err = p.st.DeleteAgent(ctx, agentID)
	}
	p.cacheDrop(agentID, userID, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error("delete agent", "agent_id", agentID, "soft", soft, "error", err)
		}
		return false
	}
	return true
}

// Delete removes an agent using the pool's default delete mode.
func (p *Pool) Delete(ctx context.Context, agentID string) bool {
	return p.DeleteAgent(ctx, agentID, p.softDelete)
}

// Checkpoint returns a sink that writes belief snapshots into the stored
// agent. It satisfies runtime.SnapshotSink.
func (p *Pool) Checkpoint(agentID string) *Checkpoint {
	return &Checkpoint{pool: p, agentID: agentID}
}

// Checkpoint persists belief snapshots of one agent.
type Checkpoint struct {
	pool    *Pool
	agentID string
}

func (c *Checkpoint) SaveSnapshot(ctx context.Context, s belief.Snapshot) error {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	if !c.pool.updateLocked(ctx, c.agentID, func(e *Entry) { e.Agent.Belief = s }) {
		return errmodel.Persistence("write_failed", "cannot save belief snapshot", map[string]any{"agent_id": c.agentID}, nil)
	}
	return nil
}

// Stats counts agents, users and sessions.
func (p *Pool) Stats(ctx context.Context) Stats {
	var s Stats
	recs, err := p.st.ListAgents(ctx, store.AgentFilter{})
	if err != nil {
		p.logger.Error("stats", "error", err)
	}
	users := map[string]struct{}{}
	for _, r := range recs {
		s.Agents++
		if r.Active {
			s.ActiveAgents++
		}
		users[r.UserID] = struct{}{}
	}
	s.Users = len(users)
	if sessions, err := p.st.ListSessions(ctx, "", true); err == nil {
		s.ActiveSessions = len(sessions)
	} else {
		p.logger.Error("stats: sessions", "error", err)
	}
	p.cacheMu.RLock()
	s.Cached = len(p.byID)
	p.cacheMu.RUnlock()
	return s
}

func (p *Pool) cacheGet(id string) (*Entry, bool) {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	e, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	return clone(e), true
}

func (p *Pool) cachePut(e *Entry) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.byID[e.ID] = e
	p.byName[nameKey(e.UserID, e.Agent.Name)] = e.ID
}

func (p *Pool) cacheDrop(id, userID, name string) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	if e, ok := p.byID[id]; ok {
		delete(p.byName, nameKey(e.UserID, e.Agent.Name))
	}
	delete(p.byID, id)
	if name != "" && p.byName[nameKey(userID, name)] == id {
		delete(p.byName, nameKey(userID, name))
	}
}

func nameKey(userID, name string) string { return userID + "\x00" + name }

// clone copies the entry header so callers cannot reorder cached tags. The
// Agent maps are shared and must be treated as read-only.
func clone(e *Entry) *Entry {
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}

func encode(e Entry) (store.AgentRecord, error) {
	rec := store.AgentRecord{
		SchemaVersion: store.SchemaVersion,
		AgentID:       e.ID,
		UserID:        e.UserID,
		Name:          e.Agent.Name,
		Description:   e.Agent.Description,
		AgentType:     e.Agent.AgentType,
		Tags:          e.Tags,
		Active:        e.Active,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	var err error
	if rec.Config, err = object(e.Agent.Config); err != nil {
		return rec, err
	}
	if rec.Belief, err = json.Marshal(e.Agent.Belief); err != nil {
		return rec, err
	}
	if rec.SharedMemory, err = object(e.Agent.SharedMemory); err != nil {
		return rec, err
	}
	if rec.Execution, err = object(e.Agent.ExecutionState); err != nil {
		return rec, err
	}
	return rec, nil
}

func object(m map[string]any) (json.RawMessage, error) {
	if m == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(m)
}

func decode(rec store.AgentRecord) (*Entry, error) {
	if rec.SchemaVersion != store.SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", store.ErrCorrupt, rec.SchemaVersion)
	}
	e := &Entry{
		ID:        rec.AgentID,
		UserID:    rec.UserID,
		Tags:      rec.Tags,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Agent:     Agent{Name: rec.Name, Description: rec.Description, AgentType: rec.AgentType},
	}
	for _, blob := range []struct {
		name string
		raw  json.RawMessage
		dst  any
	}{
		{"agent_config", rec.Config, &e.Agent.Config},
		{"belief_state", rec.Belief, &e.Agent.Belief},
		{"shared_memory_state", rec.SharedMemory, &e.Agent.SharedMemory},
		{"execution_state", rec.Execution, &e.Agent.ExecutionState},
	} {
		if err := json.Unmarshal(blob.raw, blob.dst); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", store.ErrCorrupt, blob.name, err)
		}
	}
	return e, nil
}
