package world

import (
	"fmt"
)

// Phase is the lifecycle position of the session state machine.
type Phase int

const (
	PhaseNoSession Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseNoSession:
		return "NoSession"
	case PhaseActive:
		return "Active"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// Session is the active roster and its turn counter.
type Session struct {
	Characters []*SessionCharacter
	Turn       int
}

// Find returns the roster entry with exactly this name.
func (s *Session) Find(name string) (*SessionCharacter, error) {
	for _, c := range s.Characters {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, Errorf(ErrCharacterNotFound, "Character '%s' not found", name)
}

// Names returns roster names in roster order.
func (s *Session) Names() []string {
	out := make([]string, len(s.Characters))
	for i, c := range s.Characters {
		out[i] = c.Name
	}
	return out
}

// TurnResult reports what a turn advance did.
type TurnResult struct {
	Turn    int
	Expired map[string][]string // character name → expired buff names
}

// State holds the single authoritative session, or none.
// Accessed only from the game loop goroutine.
type State struct {
	session *Session
}

func NewState() *State {
	return &State{}
}

// Phase reports the current lifecycle phase.
func (st *State) Phase() Phase {
	if st.session == nil {
		return PhaseNoSession
	}
	return PhaseActive
}

// Active returns the running session or ErrNoActiveSession.
func (st *State) Active() (*Session, error) {
	if st.session == nil {
		return nil, Errorf(ErrNoActiveSession, "There is not currently a session active")
	}
	return st.session, nil
}

// Start replaces whatever session exists with a new one over chars.
// replaced reports whether an Active session was discarded.
func (st *State) Start(chars []*SessionCharacter) (s *Session, replaced bool) {
	replaced = st.session != nil
	st.session = &Session{Characters: chars}
	return st.session, replaced
}

// End discards the session. ended is false when none was active.
func (st *State) End() (ended bool) {
	ended = st.session != nil
	st.session = nil
	return ended
}

// AdvanceTurn runs one turn over every roster character in order.
func (st *State) AdvanceTurn() (*Session, TurnResult, error) {
	s, err := st.Active()
	if err != nil {
		return nil, TurnResult{}, err
	}
	s.Turn++
	res := TurnResult{Turn: s.Turn, Expired: make(map[string][]string)}
	for _, c := range s.Characters {
		if expired := c.advanceTurn(); len(expired) > 0 {
			res.Expired[c.Name] = expired
		}
	}
	return s, res, nil
}
