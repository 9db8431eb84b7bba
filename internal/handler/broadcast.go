package handler

import (
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/world"
	"go.uber.org/zap"
)

type consoleLog struct {
	Str string `json:"str"`
}

type charsPayload struct {
	Chars any `json:"chars"`
}

type charPayload struct {
	Char *world.SessionCharacter `json:"char"`
}

type viewersPayload struct {
	Count int `json:"count"`
}

func encode(category, typ string, payload any, deps *Deps) ([]byte, bool) {
	frame, err := packet.Encode(category, typ, payload)
	if err != nil {
		deps.Log.Error("訊息編碼失敗", zap.String("category", category), zap.String("type", typ), zap.Error(err))
		return nil, false
	}
	return frame, true
}

// sendMessage queues one frame for a single connection.
func sendMessage(sess *net.Session, category, typ string, payload any, deps *Deps) {
	if frame, ok := encode(category, typ, payload, deps); ok {
		sess.Send(frame)
	}
}

// broadcast queues one frame for every open connection. The frame is
// encoded once and shared.
func broadcast(category, typ string, payload any, deps *Deps) {
	frame, ok := encode(category, typ, payload, deps)
	if !ok {
		return
	}
	deps.Sessions.ForEach(func(s *net.Session) {
		s.Send(frame)
	})
}

func sendConsoleLog(sess *net.Session, text string, deps *Deps) {
	sendMessage(sess, packet.CategoryConsole, "log", consoleLog{Str: text}, deps)
}

// broadcastChar pushes one updated character to every viewer.
func broadcastChar(c *world.SessionCharacter, deps *Deps) {
	broadcast(packet.CategorySession, "char", charPayload{Char: c}, deps)
}

// broadcastViewers pushes the open connection count.
func broadcastViewers(deps *Deps) {
	broadcast(packet.CategorySystem, "viewers", viewersPayload{Count: deps.Sessions.Count()}, deps)
}
