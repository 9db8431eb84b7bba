package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the connection's current phase.
type SessionState int

const (
	StateViewer        SessionState = iota // connected, read-only
	StateDM                                // DM token issued on this connection
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateViewer:
		return "Viewer"
	case StateDM:
		return "DM"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Open lists the states in which a live connection may send anything.
var Open = []SessionState{StateViewer, StateDM}

// HandlerFunc is the callback signature for message handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, msg *Message)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

type route struct {
	category string
	typ      string
}

// Registry maps (category, type) pairs to handlers with state-based access
// control. A category-wide handler catches every type not registered
// explicitly.
type Registry struct {
	handlers   map[route]*handlerEntry
	categories map[string]*handlerEntry
	log        *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers:   make(map[route]*handlerEntry),
		categories: make(map[string]*handlerEntry),
		log:        log,
	}
}

func newEntry(states []SessionState, fn HandlerFunc) *handlerEntry {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	return &handlerEntry{fn: fn, allowedStates: allowed}
}

// Register maps a (category, type) pair to a handler, restricted to the
// given session states.
func (reg *Registry) Register(category, typ string, states []SessionState, fn HandlerFunc) {
	reg.handlers[route{category, typ}] = newEntry(states, fn)
}

// RegisterCategory installs the fallback handler for a whole category.
func (reg *Registry) RegisterCategory(category string, states []SessionState, fn HandlerFunc) {
	reg.categories[category] = newEntry(states, fn)
}

func (reg *Registry) lookup(m *Message) *handlerEntry {
	if e, ok := reg.handlers[route{m.Category, m.Type}]; ok {
		return e
	}
	return reg.categories[m.Category]
}

// Dispatch decodes the envelope, validates the session state and calls the
// handler. Unknown routes are ignored.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	msg, err := Decode(data)
	if err != nil {
		return err
	}
	reg.log.Debug("收到訊息",
		zap.String("category", msg.Category),
		zap.String("type", msg.Type),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry := reg.lookup(msg)
	if entry == nil {
		reg.log.Debug("未知訊息類型", zap.String("category", msg.Category), zap.String("type", msg.Type))
		return nil
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("訊息在此狀態下不允許",
			zap.String("category", msg.Category),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("%s.%s not allowed in state %s", msg.Category, msg.Type, state)
	}

	return reg.safeCall(entry.fn, sess, msg)
}

// safeCall executes a handler with panic recovery so one bad message
// cannot crash the game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, msg *Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("category", msg.Category),
				zap.String("type", msg.Type),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s.%s: %v", msg.Category, msg.Type, rec)
		}
	}()
	fn(sess, msg)
	return nil
}
