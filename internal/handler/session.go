package handler

import (
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/world"
	"go.uber.org/zap"
)

type charNamesPayload struct {
	CharNames []string `json:"charNames"`
}

type sessionStartMessage struct {
	Chars []string `json:"chars"`
	DM    string   `json:"dm"`
}

func roster(s *world.Session) []*world.SessionCharacter {
	if s.Characters == nil {
		return []*world.SessionCharacter{}
	}
	return s.Characters
}

// HandleSessionPing answers session.ping with the running roster, or
// session.nosession when idle.
func HandleSessionPing(sess *net.Session, deps *Deps) {
	s, err := deps.World.Active()
	if err != nil {
		sendMessage(sess, packet.CategorySession, "nosession", nil, deps)
		return
	}
	sendMessage(sess, packet.CategorySession, "start", charsPayload{Chars: roster(s)}, deps)
}

// HandleCharNames sends the names of every loaded sheet.
func HandleCharNames(sess *net.Session, deps *Deps) {
	sendMessage(sess, packet.CategorySession, "charnames", charNamesPayload{CharNames: deps.Characters.Names()}, deps)
}

// HandleSessionCharData sends the live session characters.
func HandleSessionCharData(sess *net.Session, deps *Deps) {
	s, err := deps.World.Active()
	if err != nil {
		sendMessage(sess, packet.CategorySession, "nosession", nil, deps)
		return
	}
	sendMessage(sess, packet.CategorySession, "chardata", charsPayload{Chars: roster(s)}, deps)
}

// HandleSessionStart processes session.start {chars, dm} from the session
// picker. It is "session new" with the picked names and needs the DM token.
func HandleSessionStart(sess *net.Session, m *packet.Message, deps *Deps) {
	var body sessionStartMessage
	if err := m.Bind(&body); err != nil {
		deps.Log.Debug("session.start 訊息格式錯誤", zap.Uint64("session", sess.ID), zap.Error(err))
		return
	}
	if err := deps.DM.Authorize(body.DM); err != nil {
		rejectDM(sess, err, deps)
		return
	}
	args := append([]string{"new"}, body.Chars...)
	runCommand(sess, "session", args, joinArgs(args), deps)
}
