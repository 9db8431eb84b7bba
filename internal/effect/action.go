package effect

import (
	"fmt"
	"strings"
)

// Kind names a trigger slot on a buff or gem.
type Kind int

const (
	KindApply    Kind = iota // fires once when the effect is added
	KindClear                // fires once when the effect is removed, before unapply
	KindTurn                 // fires on every turn advance
	KindIncoming             // fires when the holder is targeted
	KindOutgoing             // fires when the holder acts
)

var kindNames = [...]string{
	KindApply:    "apply",
	KindClear:    "clear",
	KindTurn:     "turn",
	KindIncoming: "in",
	KindOutgoing: "out",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText lets Kind serve as a JSON object key.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown trigger kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown trigger %q", b)
	}
	*k = parsed
	return nil
}

// ParseKind resolves a trigger name. The long forms "incoming" and
// "outgoing" are accepted alongside "in" and "out".
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "apply":
		return KindApply, true
	case "clear":
		return KindClear, true
	case "turn":
		return KindTurn, true
	case "in", "incoming":
		return KindIncoming, true
	case "out", "outgoing":
		return KindOutgoing, true
	}
	return 0, false
}

// Action is a single additive stat mutation.
type Action struct {
	Stat  string `json:"stat"`
	Delta int    `json:"delta"`
}

// Actions is an ordered action list.
type Actions []Action

// Negate returns the additive inverse of the list.
func (a Actions) Negate() Actions {
	if a == nil {
		return nil
	}
	out := make(Actions, len(a))
	for i, act := range a {
		out[i] = Action{Stat: act.Stat, Delta: -act.Delta}
	}
	return out
}

func (a Actions) String() string {
	parts := make([]string, len(a))
	for i, act := range a {
		parts[i] = fmt.Sprintf("%s%+d", act.Stat, act.Delta)
	}
	return strings.Join(parts, ",")
}
