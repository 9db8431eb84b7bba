package world

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gmconsole/server/internal/data"
)

type fieldKind int

const (
	fieldNumber fieldKind = iota
	fieldString
	fieldClass
)

// field is a typed accessor for one settable path on a SessionCharacter.
type field struct {
	kind fieldKind
	get  func(c *SessionCharacter) int
	set  func(c *SessionCharacter, v int)
	str  func(c *SessionCharacter) *string

	nonNegative bool // the data setter floors the value at 0
}

func intField(p func(c *SessionCharacter) *int) field {
	return field{
		kind: fieldNumber,
		get:  func(c *SessionCharacter) int { return *p(c) },
		set:  func(c *SessionCharacter, v int) { *p(c) = v },
	}
}

func maxField(p func(c *SessionCharacter) *int) field {
	f := intField(p)
	f.nonNegative = true
	return f
}

func strField(p func(c *SessionCharacter) *string) field {
	return field{kind: fieldString, str: p}
}

func bucketField(bucket func(c *SessionCharacter) map[string]int, key string) field {
	return field{
		kind: fieldNumber,
		get:  func(c *SessionCharacter) int { return bucket(c)[key] },
		set:  func(c *SessionCharacter, v int) { bucket(c)[key] = v },
	}
}

// fields is the registry of top-level settable paths.
var fields = map[string]field{
	"name":          strField(func(c *SessionCharacter) *string { return &c.Name }),
	"pronouns":      strField(func(c *SessionCharacter) *string { return &c.Pronouns }),
	"currentHP":     intField(func(c *SessionCharacter) *int { return &c.CurrentHP }),
	"maxHP":         maxField(func(c *SessionCharacter) *int { return &c.MaxHP }),
	"currentMP":     intField(func(c *SessionCharacter) *int { return &c.CurrentMP }),
	"maxMP":         maxField(func(c *SessionCharacter) *int { return &c.MaxMP }),
	"hpPotions":     intField(func(c *SessionCharacter) *int { return &c.HPPotions }),
	"mpPotions":     intField(func(c *SessionCharacter) *int { return &c.MPPotions }),
	"equippedClass": {kind: fieldClass},
}

// buckets are the map-valued fields whose existing keys are settable as
// "<bucket>.<key>".
var buckets = map[string]func(c *SessionCharacter) map[string]int{
	"stats":     func(c *SessionCharacter) map[string]int { return c.Stats },
	"tempStats": func(c *SessionCharacter) map[string]int { return c.TempStats },
}

// FieldNames lists the static settable paths, sorted.
func FieldNames() []string {
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolveField walks a dotted path. The first segment that does not exist
// is named in the error.
func (c *SessionCharacter) resolveField(path string) (field, error) {
	segs := strings.Split(path, ".")
	unknown := func(seg string) (field, error) {
		return field{}, Errorf(ErrUnknownField, "Unknown key: '%s' from '%s'", seg, path)
	}

	head := segs[0]
	if bucket, ok := buckets[head]; ok {
		if len(segs) == 1 {
			// whole maps are not assignable
			return unknown(head)
		}
		key := segs[1]
		if _, ok := bucket(c)[key]; !ok {
			return unknown(key)
		}
		if len(segs) > 2 {
			return unknown(segs[2])
		}
		return bucketField(bucket, key), nil
	}

	f, ok := fields[head]
	if !ok {
		return unknown(head)
	}
	if len(segs) > 1 {
		return unknown(segs[1])
	}
	return f, nil
}

// ClassLookup resolves a class by name.
type ClassLookup interface {
	Get(name string) *data.JobClass
}

// SetField assigns raw to the field at path.
//
// Numeric fields: a raw value whose first character is '+' or '-' is a
// delta added to the current value; anything else replaces it. String
// fields take raw verbatim. equippedClass takes "null" or a class name.
// The character is normalized afterwards. Nothing changes on error.
func (c *SessionCharacter) SetField(path, raw string, classes ClassLookup) error {
	f, err := c.resolveField(path)
	if err != nil {
		return err
	}

	switch f.kind {
	case fieldNumber:
		n, err := ParseNumber(raw)
		if err != nil {
			return err
		}
		if raw[0] == '+' || raw[0] == '-' {
			n += f.get(c)
		}
		if f.nonNegative && n < 0 {
			n = 0
		}
		f.set(c, n)
	case fieldString:
		*f.str(c) = raw
	case fieldClass:
		class, err := c.lookupClass(raw, classes)
		if err != nil {
			return err
		}
		c.EquippedClass = class
	}

	c.Normalize()
	return nil
}

func (c *SessionCharacter) lookupClass(name string, classes ClassLookup) (*data.JobClass, error) {
	if name == "null" {
		return nil, nil
	}
	if c.SpecialtyClass != nil && name == c.SpecialtyClass.Name {
		return nil, Errorf(ErrDuplicateClassEquip, "Cannot equip the same class twice")
	}
	class := classes.Get(name)
	if class == nil {
		return nil, Errorf(ErrUnknownClass, "Class '%s' does not exist", name)
	}
	return class, nil
}

// ParseNumber parses an integer argument. Integral decimal forms such as
// "5.0" or "1e2" are accepted; fractions, NaN and infinities are not.
// Magnitudes beyond MaxInt32 saturate, so a relative delta can never wrap.
func ParseNumber(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil || errors.Is(err, strconv.ErrRange) {
		return saturate(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, Errorf(ErrInvalidNumber, "'%s' is not a valid number!", raw)
	}
	return saturate(int(max(min(f, math.MaxInt32), -math.MaxInt32))), nil
}

func saturate(n int) int {
	return max(min(n, math.MaxInt32), -math.MaxInt32)
}
