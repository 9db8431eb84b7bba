package handler

import (
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
)

// HandleCharacterData sends every loaded character sheet.
func HandleCharacterData(sess *net.Session, deps *Deps) {
	sendMessage(sess, packet.CategoryCharacter, "chardata", charsPayload{Chars: deps.Characters.All()}, deps)
}
