package main

import (
	"sync"
	"time"
)

const maxSessions = 100

// SessionIdleTimeout is how long an empty or inactive session survives
// before the janitor reaps it. A var so tests can shorten it.
var SessionIdleTimeout = 5 * time.Minute

// Session represents a hosted match that players can join.
type Session struct {
	ID   string
	Name string
	Game *Game

	lastActive time.Time
}

// SessionManager handles creation and lookup of sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	db        *DB
	analytics *Analytics
}

// NewSessionManager creates a SessionManager and starts its janitor.
func NewSessionManager(db *DB, analytics *Analytics) *SessionManager {
	sm := &SessionManager{
		sessions:  make(map[string]*Session),
		db:        db,
		analytics: analytics,
	}
	go sm.janitor()
	return sm
}

// CreateSession creates a new hosted match. Returns nil if the cap is hit.
func (sm *SessionManager) CreateSession(name string, cfg MatchConfig) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil
	}

	id := GenerateUUID()
	game := NewGame(cfg, sm.db, sm.analytics, id)
	sess := &Session{
		ID:         id,
		Name:       name,
		Game:       game,
		lastActive: time.Now(),
	}
	sm.sessions[id] = sess
	go game.Run()
	if sm.analytics != nil {
		sm.analytics.Track(EvtSessionStart, 0, id, cfg.Variant.String())
		sm.analytics.SetActiveSessions(len(sm.sessions))
	}
	return sess
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// MarkActive refreshes a session's idle clock.
func (sm *SessionManager) MarkActive(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sess, ok := sm.sessions[id]; ok {
		sess.lastActive = time.Now()
	}
}

// RemoveConn detaches a connection's seats from a session and reaps the
// session once no humans remain.
func (sm *SessionManager) RemoveConn(sessionID, connID string) {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return
	}
	sess.Game.RemoveConn(connID)

	if sess.Game.HumanSeats() == 0 {
		sm.remove(sessionID)
	}
}

// ListSessions returns info about all active sessions.
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]SessionInfo, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		list = append(list, SessionInfo{
			ID:      sess.ID,
			Name:    sess.Name,
			Variant: uint8(sess.Game.Variant()),
			Players: sess.Game.SeatCount(),
			Seats:   sess.Game.cfg.Players,
		})
	}
	return list
}

// SessionCount returns the number of live sessions.
func (sm *SessionManager) SessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	sess, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	n := len(sm.sessions)
	sm.mu.Unlock()
	if !ok {
		return
	}
	sess.Game.Stop()
	if sm.analytics != nil {
		sm.analytics.Track(EvtSessionEnd, 0, id, "")
		sm.analytics.SetActiveSessions(n)
	}
}

// janitor reaps sessions idle past SessionIdleTimeout.
func (sm *SessionManager) janitor() {
	for {
		time.Sleep(SessionIdleTimeout / 4)

		var stale []string
		sm.mu.RLock()
		for id, sess := range sm.sessions {
			if sess.Game.HumanSeats() == 0 && time.Since(sess.lastActive) > SessionIdleTimeout {
				stale = append(stale, id)
			}
		}
		sm.mu.RUnlock()

		for _, id := range stale {
			sm.remove(id)
		}
	}
}
