package effect

// Target is anything effect actions can be applied to.
type Target interface {
	// AddNative adds delta to a stat the target exposes as its own field and
	// reports whether the stat exists.
	AddNative(stat string, delta int) bool
	// AddTemp accumulates delta into the side bucket for unknown stats.
	AddTemp(stat string, delta int)
}

// synonyms maps shorthand stat names onto native field names.
var synonyms = map[string]string{
	"hp": "currentHP",
	"mp": "currentMP",
}

// CanonicalStat resolves shorthand stat names.
func CanonicalStat(stat string) string {
	if s, ok := synonyms[stat]; ok {
		return s
	}
	return stat
}

// Apply runs every action against t in order. Native stats are mutated in
// place; anything else lands in the target's temp bucket. No clamping and no
// stat validation happen here, so Apply(t, a) followed by Apply(t, a.Negate())
// always leaves t unchanged.
func Apply(t Target, actions Actions) {
	for _, act := range actions {
		stat := CanonicalStat(act.Stat)
		if !t.AddNative(stat, act.Delta) {
			t.AddTemp(stat, act.Delta)
		}
	}
}
