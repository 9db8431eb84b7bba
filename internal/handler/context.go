package handler

import (
	"github.com/gmconsole/server/internal/config"
	"github.com/gmconsole/server/internal/data"
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/persist"
	"github.com/gmconsole/server/internal/world"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	Config     *config.Config
	Log        *zap.Logger
	World      *world.State
	Characters *data.CharacterTable
	Classes    *data.ClassTable
	Rules      world.Rules // nil: maxima come from the sheet's hp/mp
	Limits     world.Limits
	Sessions   *net.SessionStore
	Journal    *persist.Journal // nil disables the command journal
	DM         *DMAuth
	StartTime  int64 // unix ms; older clients are told to refresh

	commands *Dispatcher
}

// RegisterAll registers all message handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	if deps.commands == nil {
		deps.commands = NewDispatcher(deps)
	}

	// System
	reg.Register(packet.CategorySystem, "connect", packet.Open,
		func(sess any, m *packet.Message) {
			HandleConnect(sess.(*net.Session), m, deps)
		},
	)
	reg.Register(packet.CategorySystem, "dm", packet.Open,
		func(sess any, m *packet.Message) {
			HandleDMToken(sess.(*net.Session), m, deps)
		},
	)

	// Character sheets
	reg.Register(packet.CategoryCharacter, "chardata", packet.Open,
		func(sess any, m *packet.Message) {
			HandleCharacterData(sess.(*net.Session), deps)
		},
	)

	// Session queries
	reg.Register(packet.CategorySession, "ping", packet.Open,
		func(sess any, m *packet.Message) {
			HandleSessionPing(sess.(*net.Session), deps)
		},
	)
	reg.Register(packet.CategorySession, "charnames", packet.Open,
		func(sess any, m *packet.Message) {
			HandleCharNames(sess.(*net.Session), deps)
		},
	)
	reg.Register(packet.CategorySession, "chardata", packet.Open,
		func(sess any, m *packet.Message) {
			HandleSessionCharData(sess.(*net.Session), deps)
		},
	)
	reg.Register(packet.CategorySession, "start", packet.Open,
		func(sess any, m *packet.Message) {
			HandleSessionStart(sess.(*net.Session), m, deps)
		},
	)

	// Console: every type is either the passphrase or a DM command, so the
	// whole category goes to one handler. Viewers must reach it to unlock.
	reg.RegisterCategory(packet.CategoryConsole, packet.Open,
		func(sess any, m *packet.Message) {
			HandleConsole(sess.(*net.Session), m, deps)
		},
	)
}
