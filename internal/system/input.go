package system

import (
	"time"

	coresys "github.com/gmconsole/server/internal/core/system"
	"github.com/gmconsole/server/internal/handler"
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"go.uber.org/zap"
)

// SessionSource hands newly upgraded connections to the game loop.
type SessionSource interface {
	NewSessions() <-chan *net.Session
}

// InputSystem accepts new sessions, drains every session's inbound queue
// and dispatches each frame through the registry. It is the only place
// handlers run, so all state mutation happens on the game loop. Phase 0.
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	maxPerTick int
	deps       *handler.Deps
	log        *zap.Logger
}

func NewInputSystem(
	source SessionSource,
	registry *packet.Registry,
	store *net.SessionStore,
	maxPerTick int,
	deps *handler.Deps,
	log *zap.Logger,
) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 1
	}
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		maxPerTick: maxPerTick,
		deps:       deps,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	var gone []*net.Session
	for _, sess := range s.store.Raw() {
		if sess.IsClosed() {
			// A command sent just before the socket dropped still runs.
			// Close already moved the state to Disconnecting; console
			// commands carry their own token, so viewer rights suffice.
			s.drain(sess, packet.StateViewer)
			sess.FlushOutput()
			gone = append(gone, sess)
			continue
		}
		s.drain(sess, sess.State())
	}

	// Remove first so the viewer count sent by HandleDisconnect is current.
	for _, sess := range gone {
		s.store.Remove(sess.ID)
	}
	for _, sess := range gone {
		handler.HandleDisconnect(sess, s.deps)
	}

	// 提前 flush：本 tick 產生的訊息立即交給 writeLoop，
	// OutputSystem 在 Phase 1 會再 flush 一次。
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// drain dispatches up to maxPerTick queued frames from one session.
func (s *InputSystem) drain(sess *net.Session, state packet.SessionState) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, state, data); err != nil {
				s.log.Debug("訊息分派錯誤",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

// SessionCount returns the number of tracked sessions, closed ones included.
func (s *InputSystem) SessionCount() int {
	return len(s.store.Raw())
}
