package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/gmconsole/server/internal/console"
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/persist"
	"github.com/gmconsole/server/internal/world"
	"go.uber.org/zap"
)

type consoleMessage struct {
	Type string `json:"type"`
	Args string `json:"args"`
	DM   string `json:"dm"`
}

// HandleConsole processes every console.* message. The type is either the
// DM passphrase, which unlocks the connection, or a command name whose raw
// arguments travel in args and whose authority travels in dm.
func HandleConsole(sess *net.Session, m *packet.Message, deps *Deps) {
	var body consoleMessage
	if err := m.Bind(&body); err != nil {
		deps.Log.Debug("console 訊息格式錯誤", zap.Uint64("session", sess.ID), zap.Error(err))
		return
	}

	if deps.DM.IsPassphrase(body.Type) {
		unlockDM(sess, deps)
		return
	}
	if err := deps.DM.Authorize(body.DM); err != nil {
		rejectDM(sess, err, deps)
		return
	}
	if sess.State() == packet.StateViewer {
		sess.SetState(packet.StateDM)
	}

	name, raw := body.Type, body.Args
	if strings.ContainsFunc(name, unicode.IsSpace) {
		var rest string
		name, rest = console.SplitCommand(name)
		// The tail of raw is kept as sent: an escaped trailing space is
		// part of the last argument.
		raw = strings.TrimLeftFunc(raw, unicode.IsSpace)
		switch {
		case raw == "":
			raw = rest
		case rest != "":
			raw = rest + " " + raw
		}
	}

	args, err := console.Tokenize(raw)
	if err != nil {
		deps.Log.Info("指令解析失敗", zap.String("command", name), zap.Error(err))
		reportFailure(sess, name, raw, err, deps)
		return
	}
	runCommand(sess, name, args, raw, deps)
}

// runCommand is the recovery boundary for DM commands: any failure becomes
// a single console.log to the issuer and leaves viewers untouched.
func runCommand(sess *net.Session, name string, args []string, raw string, deps *Deps) {
	err := deps.commands.Run(sess, name, args)
	if err != nil {
		reportFailure(sess, name, raw, err, deps)
		return
	}
	deps.Log.Info(fmt.Sprintf("DM 指令  %s %s", name, raw), zap.Uint64("session", sess.ID))
	deps.Journal.Record(persist.JournalEntry{
		SessionID: sess.ID,
		IssuerIP:  sess.IP,
		Command:   name,
		Args:      raw,
		OK:        true,
	})
}

func reportFailure(sess *net.Session, name, raw string, err error, deps *Deps) {
	msg := failureText(err)
	deps.Log.Debug("DM 指令失敗", zap.String("command", name), zap.String("reason", msg))
	sendConsoleLog(sess, msg, deps)
	deps.Journal.Record(persist.JournalEntry{
		SessionID: sess.ID,
		IssuerIP:  sess.IP,
		Command:   name,
		Args:      raw,
		OK:        false,
		Message:   msg,
	})
}

func failureText(err error) string {
	if errors.Is(err, console.ErrUnterminatedQuote) {
		return "Invalid command: unclosed quote"
	}
	return world.Message(err)
}

// joinArgs renders args as a quoted command line for the logs.
func joinArgs(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsFunc(a, func(r rune) bool {
			return unicode.IsSpace(r) || r == '"' || r == '\'' || r == '\\'
		}) {
			parts[i] = strconv.Quote(a)
			continue
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
