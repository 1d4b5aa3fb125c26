// Package store defines the durable records behind the persistent agent pool.
// Implementations must provide identical semantics across backends so a pool
// can move between SQLite and PostgreSQL without changes.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// SchemaVersion is the version written into every new AgentRecord.
const SchemaVersion = 1

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an active agent with the same user and name exists.
	ErrDuplicate = errors.New("store: duplicate agent name")
	// ErrCorrupt is returned when a stored row cannot be decoded.
	ErrCorrupt = errors.New("store: corrupt record")
)

// AgentRecord is one row of the agents table: metadata plus four JSON blobs.
type AgentRecord struct {
	SchemaVersion int             `json:"schema_version"`
	AgentID       string          `json:"agent_id"`
	UserID        string          `json:"user_id"`
	Name          string          `json:"agent_name"`
	Description   string          `json:"description"`
	AgentType     string          `json:"agent_type"`
	Tags          []string        `json:"tags"`
	Active        bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Config        json.RawMessage `json:"agent_config"`
	Belief        json.RawMessage `json:"belief_state"`
	SharedMemory  json.RawMessage `json:"shared_memory_state"`
	Execution     json.RawMessage `json:"execution_state"`
}

// HasAnyTag reports whether the record carries at least one of tags. An empty
// tags list matches every record.
func (r AgentRecord) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, want := range tags {
		for _, have := range r.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// AgentFilter narrows ListAgents. Set fields are ANDed; Tags match when any
// tag matches.
type AgentFilter struct {
	UserID     string
	AgentType  string
	Tags       []string
	ActiveOnly bool
}

// UserPreferences holds per-user pool settings.
type UserPreferences struct {
	UserID           string         `json:"user_id"`
	MaxAgents        int            `json:"max_agents"`
	DefaultAgentType string         `json:"default_agent_type,omitempty"`
	Settings         map[string]any `json:"settings,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Session tracks a user working with an agent.
type Session struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	AgentID      string    `json:"agent_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
	Active       bool      `json:"is_active"`
}

// AgentStore persists agent records. Every method is a single atomic write or
// read except InsertAgent, which may replace an existing record in one
// transaction.
type AgentStore interface {
	// InsertAgent writes rec. With replace set, an active record with the same
	// (UserID, Name) is overwritten in place and its AgentID is kept; the
	// returned record carries the stored id. Without replace such a record
	// yields ErrDuplicate.
	InsertAgent(ctx context.Context, rec AgentRecord, replace bool) (AgentRecord, error)
	UpdateAgent(ctx context.Context, rec AgentRecord) error
	GetAgent(ctx context.Context, agentID string) (AgentRecord, error)
	GetAgentByName(ctx context.Context, userID, name string) (AgentRecord, error)
	ListAgents(ctx context.Context, f AgentFilter) ([]AgentRecord, error)
	SetAgentActive(ctx context.Context, agentID string, active bool) error
	DeleteAgent(ctx context.Context, agentID string) error
	CountActiveAgents(ctx context.Context, userID string) (int, error)
}

// PreferenceStore persists UserPreferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (UserPreferences, error)
	PutPreferences(ctx context.Context, p UserPreferences) error
}

// SessionStore persists sessions.
type SessionStore interface {
	PutSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, sessionID string) (Session, error)
	ListSessions(ctx context.Context, userID string, activeOnly bool) ([]Session, error)
}

// Store aggregates everything the pool needs.
type Store interface {
	AgentStore
	PreferenceStore
	SessionStore
	Close() error
}
