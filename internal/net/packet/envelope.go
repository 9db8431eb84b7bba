package packet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Categories routed by the registry.
const (
	CategorySystem    = "system"
	CategoryCharacter = "character"
	CategorySession   = "session"
	CategoryConsole   = "console"
)

// Message is a decoded inbound envelope: {category, type, ...payload}.
// Payload fields stay raw until a handler binds them.
type Message struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	raw      []byte
}

// Decode parses the envelope head of an inbound frame.
func Decode(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if m.Category == "" {
		return nil, errors.New("decode envelope: missing category")
	}
	m.raw = data
	return m, nil
}

// Bind decodes the whole envelope into v. Unknown fields are ignored.
func (m *Message) Bind(v any) error {
	if err := json.Unmarshal(m.raw, v); err != nil {
		return fmt.Errorf("bind %s.%s: %w", m.Category, m.Type, err)
	}
	return nil
}

// Raw returns the original frame.
func (m *Message) Raw() []byte {
	return m.raw
}

// Encode builds an outbound frame. payload must encode to a JSON object (or
// be nil); its fields are merged next to category and type.
func Encode(category, typ string, payload any) ([]byte, error) {
	head, err := json.Marshal(struct {
		Category string `json:"category"`
		Type     string `json:"type"`
	}{category, typ})
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s: %w", category, typ, err)
	}
	if payload == nil {
		return head, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s.%s payload: %w", category, typ, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s.%s: payload is not an object", category, typ)
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// MustEncode is Encode for payloads that are known to marshal.
func MustEncode(category, typ string, payload any) []byte {
	b, err := Encode(category, typ, payload)
	if err != nil {
		panic(err)
	}
	return b
}
