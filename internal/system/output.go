package system

import (
	"time"

	coresys "github.com/gmconsole/server/internal/core/system"
	"github.com/gmconsole/server/internal/net"
)

// OutputSystem hands every open session's buffered frames to its writer
// goroutine once per tick. Phase 1 (Output).
type OutputSystem struct {
	store *net.SessionStore
}

func NewOutputSystem(store *net.SessionStore) *OutputSystem {
	return &OutputSystem{store: store}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
