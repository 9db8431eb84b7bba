package effect

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidEffect is returned for a malformed trigger:expression argument.
var ErrInvalidEffect = errors.New("invalid effect")

// Definition is the parsed behavior of a buff or gem: one action list per
// trigger slot plus the generated inverse of the apply list.
type Definition struct {
	Triggers map[Kind]Actions `json:"triggers,omitempty"`
	Unapply  Actions          `json:"unapply,omitempty"`
}

// termPattern matches a single stat<op><number> term such as atk+5 or hp-2.
var termPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)([+-])([0-9]+)$`)

// Parse builds a Definition from trigger:expression arguments, e.g.
//
//	apply:atk+5,def-1 turn:hp-2 clear:mp+3
//
// A trigger given twice keeps its last expression. Parsing never touches a
// character; callers apply the result with Activate.
func Parse(args []string) (*Definition, error) {
	def := &Definition{Triggers: make(map[Kind]Actions)}
	for _, arg := range args {
		parts := strings.Split(arg, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: '%s' is not trigger:expression", ErrInvalidEffect, arg)
		}
		kind, ok := ParseKind(parts[0])
		if !ok {
			return nil, fmt.Errorf("%w: unknown trigger '%s'", ErrInvalidEffect, parts[0])
		}
		actions, err := ParseExpression(parts[1])
		if err != nil {
			return nil, err
		}
		def.Triggers[kind] = actions
	}
	def.Unapply = def.Triggers[KindApply].Negate()
	return def, nil
}

// ParseExpression parses a comma-separated list of stat<op><number> terms.
func ParseExpression(expr string) (Actions, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidEffect)
	}
	terms := strings.Split(expr, ",")
	actions := make(Actions, 0, len(terms))
	for _, term := range terms {
		m := termPattern.FindStringSubmatch(strings.TrimSpace(term))
		if m == nil {
			return nil, fmt.Errorf("%w: bad term '%s'", ErrInvalidEffect, term)
		}
		n, err := strconv.Atoi(m[2] + m[3])
		if err != nil {
			return nil, fmt.Errorf("%w: bad number in '%s'", ErrInvalidEffect, term)
		}
		actions = append(actions, Action{Stat: m[1], Delta: n})
	}
	return actions, nil
}

// Has reports whether the trigger slot is populated.
func (d *Definition) Has(k Kind) bool {
	if d == nil {
		return false
	}
	return len(d.Triggers[k]) > 0
}

// Fire runs the actions of a single trigger slot.
func (d *Definition) Fire(t Target, k Kind) {
	if d == nil {
		return
	}
	Apply(t, d.Triggers[k])
}

// Activate runs the apply trigger.
func (d *Definition) Activate(t Target) {
	d.Fire(t, KindApply)
}

// Remove runs the clear trigger and then the generated unapply list.
func (d *Definition) Remove(t Target) {
	if d == nil {
		return
	}
	Apply(t, d.Triggers[KindClear])
	Apply(t, d.Unapply)
}

// Describe renders the definition back into trigger:expression form.
func (d *Definition) Describe() string {
	if d == nil {
		return ""
	}
	var parts []string
	for k := KindApply; k <= KindOutgoing; k++ {
		if acts := d.Triggers[k]; len(acts) > 0 {
			parts = append(parts, k.String()+":"+acts.String())
		}
	}
	return strings.Join(parts, " ")
}
