package net

import "sort"

// SessionStore tracks live sessions. Game loop only.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (st *SessionStore) Add(s *Session) {
	st.sessions[s.ID] = s
}

func (st *SessionStore) Remove(id uint64) {
	delete(st.sessions, id)
}

func (st *SessionStore) Get(id uint64) *Session {
	return st.sessions[id]
}

// Count returns the number of sessions that are still open.
func (st *SessionStore) Count() int {
	n := 0
	for _, s := range st.sessions {
		if !s.IsClosed() {
			n++
		}
	}
	return n
}

// ForEach visits open sessions in connection order.
func (st *SessionStore) ForEach(fn func(*Session)) {
	ids := make([]uint64, 0, len(st.sessions))
	for id, s := range st.sessions {
		if !s.IsClosed() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn(st.sessions[id])
	}
}

// Raw exposes the underlying map, closed sessions included.
func (st *SessionStore) Raw() map[uint64]*Session {
	return st.sessions
}
