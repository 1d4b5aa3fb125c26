package pool

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wilhg/sherpa/pkg/store"
)

// GetUserPreferences returns the stored preferences, or defaults when the user
// has none.
func (p *Pool) GetUserPreferences(ctx context.Context, userID string) store.UserPreferences {
	prefs, err := p.st.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error("get preferences", "user_id", userID, "error", err)
		}
		return store.UserPreferences{UserID: userID, MaxAgents: p.defaultMaxAgents}
	}
	return prefs
}

// SetUserPreferences stores prefs.
func (p *Pool) SetUserPreferences(ctx context.Context, prefs store.UserPreferences) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefs.UpdatedAt = p.now().UTC()
	if err := p.st.PutPreferences(ctx, prefs); err != nil {
		p.logger.Error("set preferences", "user_id", prefs.UserID, "error", err)
		return false
	}
	return true
}

func (p *Pool) maxAgentsLocked(ctx context.Context, userID string) int {
	prefs := p.GetUserPreferences(ctx, userID)
	if prefs.MaxAgents <= 0 {
		return p.defaultMaxAgents
	}
	return prefs.MaxAgents
}

// StartSession opens a session of userID with agentID.
func (p *Pool) StartSession(ctx context.Context, userID, agentID string) (store.Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now().UTC()
	s := store.Session{SessionID: uuid.NewString(), UserID: userID, AgentID: agentID, StartedAt: now, LastActiveAt: now, Active: true}
	if err := p.st.PutSession(ctx, s); err != nil {
		p.logger.Error("start session", "user_id", userID, "agent_id", agentID, "error", err)
		return store.Session{}, false
	}
	return s, true
}

// TouchSession records activity on an open session.
func (p *Pool) TouchSession(ctx context.Context, sessionID string) bool {
	return p.updateSession(ctx, sessionID, func(s *store.Session) { s.LastActiveAt = p.now().UTC() })
}

// EndSession closes a session.
func (p *Pool) EndSession(ctx context.Context, sessionID string) bool {
	return p.updateSession(ctx, sessionID, func(s *store.Session) {
		now := p.now().UTC()
		s.LastActiveAt, s.EndedAt, s.Active = now, now, false
	})
}

func (p *Pool) updateSession(ctx context.Context, sessionID string, mutate func(*store.Session)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, err := p.st.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error("load session", "session_id", sessionID, "error", err)
		}
		return false
	}
	if !s.Active {
		return false
	}
	mutate(&s)
	if err := p.st.PutSession(ctx, s); err != nil {
		p.logger.Error("save session", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

// ActiveSessions lists the open sessions of userID, or of everyone when
// userID is empty.
func (p *Pool) ActiveSessions(ctx context.Context, userID string) []store.Session {
	out, err := p.st.ListSessions(ctx, userID, true)
	if err != nil {
		p.logger.Error("list sessions", "user_id", userID, "error", err)
		return nil
	}
	return out
}
