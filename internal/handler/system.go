package handler

import (
	"fmt"

	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"go.uber.org/zap"
)

type connectMessage struct {
	Status      string   `json:"status"`
	StartTime   int64    `json:"startTime"`             // unix ms the page was loaded
	ConnectTime *float64 `json:"connectTime,omitempty"` // ms spent reconnecting
}

// HandleConnect processes system.connect. A page loaded before this server
// process started is told to refresh; everyone else is confirmed and the
// viewer count goes out to all.
func HandleConnect(sess *net.Session, m *packet.Message, deps *Deps) {
	var body connectMessage
	if err := m.Bind(&body); err != nil {
		deps.Log.Debug("connect 訊息格式錯誤", zap.Uint64("session", sess.ID), zap.Error(err))
		return
	}

	if body.StartTime < deps.StartTime {
		deps.Log.Info(fmt.Sprintf("過期的客戶端連線，要求重新整理  session=%d", sess.ID))
		sendMessage(sess, packet.CategorySystem, "refresh", nil, deps)
		return
	}

	switch body.Status {
	case "reconnecting":
		var after float64
		if body.ConnectTime != nil {
			after = *body.ConnectTime
		}
		deps.Log.Info(fmt.Sprintf("客戶端重新連線  session=%d  耗時=%.0fms", sess.ID, after))
	case "refreshing":
		deps.Log.Info(fmt.Sprintf("重新整理的客戶端已連線  session=%d", sess.ID))
	default:
		deps.Log.Info(fmt.Sprintf("新連線建立  session=%d  ip=%s", sess.ID, sess.IP))
	}

	sendMessage(sess, packet.CategorySystem, "confirm", nil, deps)
	broadcastViewers(deps)
}

// HandleDisconnect runs after a closed connection has left the store.
func HandleDisconnect(sess *net.Session, deps *Deps) {
	deps.Log.Info(fmt.Sprintf("觀眾離線  session=%d  ip=%s  在線=%d", sess.ID, sess.IP, deps.Sessions.Count()))
	broadcastViewers(deps)
}
