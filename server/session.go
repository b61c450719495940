package main

const maxPlayers = 64

// SessionTable owns the per-player sessions keyed by player id
type SessionTable struct {
	sessions map[PlayerID]*PlayerSession
	nextID   PlayerID
}

// NewSessionTable creates an empty table
func NewSessionTable() *SessionTable {
	return &SessionTable{
		sessions: make(map[PlayerID]*PlayerSession),
		nextID:   1,
	}
}

// Create allocates a new id and default session. Returns nil if full.
func (t *SessionTable) Create(name string, charges int) *PlayerSession {
	if len(t.sessions) >= maxPlayers {
		return nil
	}
	id := t.nextID
	t.nextID++
	p := NewPlayerSession(id, name, charges)
	t.sessions[id] = p
	return p
}

// Get returns the session for id, or nil
func (t *SessionTable) Get(id PlayerID) *PlayerSession {
	return t.sessions[id]
}

// Remove deletes the session for id
func (t *SessionTable) Remove(id PlayerID) {
	delete(t.sessions, id)
}

// Len returns the number of sessions
func (t *SessionTable) Len() int {
	return len(t.sessions)
}

// Each calls fn for every session
func (t *SessionTable) Each(fn func(*PlayerSession)) {
	for _, p := range t.sessions {
		fn(p)
	}
}
