package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/world"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// DMAuth holds the shared DM passphrase and the token derived from it.
type DMAuth struct {
	passphrase []byte
	token      string
}

// NewDMAuth derives the DM token: the hex BLAKE2b-256 digest of the
// passphrase. The token is stable for the life of the passphrase.
func NewDMAuth(passphrase string) *DMAuth {
	sum := blake2b.Sum256([]byte(passphrase))
	return &DMAuth{
		passphrase: []byte(passphrase),
		token:      hex.EncodeToString(sum[:]),
	}
}

// Token returns the token handed to unlocked clients.
func (a *DMAuth) Token() string {
	return a.token
}

// IsPassphrase reports whether s is the raw passphrase.
func (a *DMAuth) IsPassphrase(s string) bool {
	return len(a.passphrase) > 0 && subtle.ConstantTimeCompare([]byte(s), a.passphrase) == 1
}

// Authorize returns an ErrUnauthorized error unless token is the DM token.
func (a *DMAuth) Authorize(token string) error {
	if a.Check(token) {
		return nil
	}
	return world.Errorf(ErrUnauthorized, "You do not have DM permissions!")
}

// Check reports whether token matches the DM token.
func (a *DMAuth) Check(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}

type dmPayload struct {
	Token string `json:"token"`
}

// unlockDM promotes the connection and hands it the token.
func unlockDM(sess *net.Session, deps *Deps) {
	sess.SetState(packet.StateDM)
	sendMessage(sess, packet.CategorySystem, "dm", dmPayload{Token: deps.DM.Token()}, deps)
	sendConsoleLog(sess, "DM mode unlocked", deps)
	deps.Log.Info(fmt.Sprintf("DM 模式已解鎖  session=%d  ip=%s", sess.ID, sess.IP))
}

// rejectDM tells the connection it is not the DM.
func rejectDM(sess *net.Session, err error, deps *Deps) {
	sendConsoleLog(sess, world.Message(err), deps)
	sendMessage(sess, packet.CategorySystem, "nodm", nil, deps)
	deps.Log.Warn("DM 權限不足", zap.Uint64("session", sess.ID), zap.String("ip", sess.IP))
}

// HandleDMToken processes system.dm {token}: a client re-presenting a
// stored token after reconnecting.
func HandleDMToken(sess *net.Session, m *packet.Message, deps *Deps) {
	var body dmPayload
	if err := m.Bind(&body); err != nil || !deps.DM.Check(body.Token) {
		deps.Log.Debug("DM token 不符", zap.Uint64("session", sess.ID))
		sendMessage(sess, packet.CategorySystem, "nodm", nil, deps)
		return
	}
	unlockDM(sess, deps)
}
