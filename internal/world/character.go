package world

import (
	"sort"
	"strings"

	"github.com/gmconsole/server/internal/data"
	"github.com/gmconsole/server/internal/effect"
)

// Limits caps per-character resources for a session.
type Limits struct {
	MaxHPPotions int
	MaxMPPotions int
	GemSlots     int
}

// Rules derives session maxima from a sheet's base stats.
type Rules interface {
	CalcMaxHP(stats map[string]int) (int, bool)
	CalcMaxMP(stats map[string]int) (int, bool)
}

// Buff is a timed effect keyed by name.
type Buff struct {
	Name           string             `json:"name"`
	Icon           string             `json:"icon"`
	TurnsRemaining int                `json:"turnsRemaining"`
	Effect         *effect.Definition `json:"effect"`
}

// Gem is a slotted effect that lasts until removed.
type Gem struct {
	Name   string             `json:"name"`
	Color  string             `json:"color"`
	Effect *effect.Definition `json:"effect"`
}

// SessionCharacter is the live, mutable instance of a Character inside a
// session. Only the game loop touches it.
type SessionCharacter struct {
	Name           string           `json:"name"`
	Pronouns       string           `json:"pronouns"`
	SpecialtyClass *data.JobClass   `json:"specialtyClass"`
	Classes        []string         `json:"classes"`
	Stats          map[string]int   `json:"stats"`
	CurrentHP      int              `json:"currentHP"`
	MaxHP          int              `json:"maxHP"`
	CurrentMP      int              `json:"currentMP"`
	MaxMP          int              `json:"maxMP"`
	HPPotions      int              `json:"hpPotions"`
	MPPotions      int              `json:"mpPotions"`
	MaxHPPotions   int              `json:"maxHPPotions"`
	MaxMPPotions   int              `json:"maxMPPotions"`
	Buffs          map[string]*Buff `json:"buffs"`
	Gems           []*Gem           `json:"gems"`
	TempStats      map[string]int   `json:"tempStats"`
	EquippedClass  *data.JobClass   `json:"equippedClass"`
}

// NewSessionCharacter derives a fresh session instance from a sheet: full
// HP/MP, full potion stock, empty gem slots. rules may be nil, in which case
// the sheet's hp/mp stats are the maxima.
func NewSessionCharacter(c *data.Character, rules Rules, lim Limits) *SessionCharacter {
	stats := make(map[string]int, len(c.Stats))
	for k, v := range c.Stats {
		stats[k] = v
	}
	maxHP, maxMP := stats["hp"], stats["mp"]
	if rules != nil {
		if v, ok := rules.CalcMaxHP(stats); ok {
			maxHP = v
		}
		if v, ok := rules.CalcMaxMP(stats); ok {
			maxMP = v
		}
	}
	maxHP = max(maxHP, 0)
	maxMP = max(maxMP, 0)

	classes := make([]string, len(c.Classes))
	copy(classes, c.Classes)

	return &SessionCharacter{
		Name:           c.Name,
		Pronouns:       c.Pronouns,
		SpecialtyClass: c.SpecialtyClass,
		Classes:        classes,
		Stats:          stats,
		CurrentHP:      maxHP,
		MaxHP:          maxHP,
		CurrentMP:      maxMP,
		MaxMP:          maxMP,
		HPPotions:      lim.MaxHPPotions,
		MPPotions:      lim.MaxMPPotions,
		MaxHPPotions:   lim.MaxHPPotions,
		MaxMPPotions:   lim.MaxMPPotions,
		Buffs:          make(map[string]*Buff),
		Gems:           make([]*Gem, max(lim.GemSlots, 0)),
		TempStats:      make(map[string]int),
	}
}

// AddNative implements effect.Target. Top-level numeric fields and base
// stats count as native.
func (c *SessionCharacter) AddNative(stat string, delta int) bool {
	if f, ok := fields[stat]; ok && f.kind == fieldNumber {
		f.set(c, f.get(c)+delta)
		return true
	}
	if _, ok := c.Stats[stat]; ok {
		c.Stats[stat] += delta
		return true
	}
	return false
}

// AddTemp implements effect.Target. Entries that net out to zero are dropped.
func (c *SessionCharacter) AddTemp(stat string, delta int) {
	if c.TempStats == nil {
		c.TempStats = make(map[string]int)
	}
	c.TempStats[stat] += delta
	if c.TempStats[stat] == 0 {
		delete(c.TempStats, stat)
	}
}

// Normalize clamps current HP/MP into [0, max] and potion stock into
// [0, cap]. Called after every handler mutation.
func (c *SessionCharacter) Normalize() {
	c.CurrentHP = clamp(c.CurrentHP, 0, c.MaxHP)
	c.CurrentMP = clamp(c.CurrentMP, 0, c.MaxMP)
	c.HPPotions = clamp(c.HPPotions, 0, c.MaxHPPotions)
	c.MPPotions = clamp(c.MPPotions, 0, c.MaxMPPotions)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}

// BuffNames returns buff names in sorted order.
func (c *SessionCharacter) BuffNames() []string {
	names := make([]string, 0, len(c.Buffs))
	for n := range c.Buffs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddBuff activates b and stores it under its name. A buff already holding
// that name is removed first, firing its clear and unapply actions.
func (c *SessionCharacter) AddBuff(b *Buff) (replaced bool) {
	if old, ok := c.Buffs[b.Name]; ok {
		old.Effect.Remove(c)
		replaced = true
	}
	b.Effect.Activate(c)
	c.Buffs[b.Name] = b
	c.Normalize()
	return replaced
}

// RemoveBuff clears a buff by name.
func (c *SessionCharacter) RemoveBuff(name string) error {
	b, ok := c.Buffs[name]
	if !ok {
		return Errorf(ErrUnknownField, "%s has no buff named '%s'", c.Name, name)
	}
	b.Effect.Remove(c)
	delete(c.Buffs, name)
	c.Normalize()
	return nil
}

// CheckGemSlot validates a slot index against the character's gem slots.
func (c *SessionCharacter) CheckGemSlot(slot int) error {
	if slot < 0 || slot >= len(c.Gems) {
		return Errorf(ErrInvalidNumber, "'%d' is not a valid gem slot (0-%d)", slot, len(c.Gems)-1)
	}
	return nil
}

// SetGem activates g in slot. An occupied slot is cleared first.
func (c *SessionCharacter) SetGem(slot int, g *Gem) (replaced bool, err error) {
	if err := c.CheckGemSlot(slot); err != nil {
		return false, err
	}
	if old := c.Gems[slot]; old != nil {
		old.Effect.Remove(c)
		replaced = true
	}
	g.Effect.Activate(c)
	c.Gems[slot] = g
	c.Normalize()
	return replaced, nil
}

// RemoveGem clears a gem slot.
func (c *SessionCharacter) RemoveGem(slot int) error {
	if err := c.CheckGemSlot(slot); err != nil {
		return err
	}
	old := c.Gems[slot]
	if old == nil {
		return Errorf(ErrUnknownField, "%s has no gem in slot %d", c.Name, slot)
	}
	old.Effect.Remove(c)
	c.Gems[slot] = nil
	c.Normalize()
	return nil
}

// FireAll runs one trigger slot on every buff (name order) then every gem
// (slot order).
func (c *SessionCharacter) FireAll(kind effect.Kind) {
	for _, name := range c.BuffNames() {
		c.Buffs[name].Effect.Fire(c, kind)
	}
	for _, g := range c.Gems {
		if g != nil {
			g.Effect.Fire(c, kind)
		}
	}
	c.Normalize()
}

// advanceTurn fires turn triggers, counts buffs down and expires those that
// reach zero (clear, then unapply, then delete).
func (c *SessionCharacter) advanceTurn() (expired []string) {
	for _, name := range c.BuffNames() {
		b := c.Buffs[name]
		b.Effect.Fire(c, effect.KindTurn)
		b.TurnsRemaining--
		if b.TurnsRemaining <= 0 {
			b.Effect.Remove(c)
			delete(c.Buffs, name)
			expired = append(expired, name)
		}
	}
	for _, g := range c.Gems {
		if g != nil {
			g.Effect.Fire(c, effect.KindTurn)
		}
	}
	c.Normalize()
	return expired
}

// --- Potions ---

// Resource selects the HP or MP pool.
type Resource int

const (
	ResourceHP Resource = iota
	ResourceMP
)

func (r Resource) String() string {
	if r == ResourceMP {
		return "MP"
	}
	return "HP"
}

// ParseResource accepts "hp" or "mp" in any case.
func ParseResource(s string) (Resource, error) {
	switch strings.ToLower(s) {
	case "hp":
		return ResourceHP, nil
	case "mp":
		return ResourceMP, nil
	}
	return 0, Errorf(ErrUnknownResource, "Unknown potions type: '%s'", s)
}

func (c *SessionCharacter) potionPool(r Resource) (stock *int, limit int) {
	if r == ResourceMP {
		return &c.MPPotions, c.MaxMPPotions
	}
	return &c.HPPotions, c.MaxHPPotions
}

// GainPotions adds up to n potions, capped at the maximum, and returns how
// many were actually added.
func (c *SessionCharacter) GainPotions(r Resource, n int) int {
	stock, limit := c.potionPool(r)
	before := *stock
	*stock = clamp(before+n, 0, limit)
	return max(*stock-before, 0)
}

// UsePotion consumes one potion to fully restore the pool.
func (c *SessionCharacter) UsePotion(r Resource) error {
	stock, _ := c.potionPool(r)
	if *stock < 1 {
		return Errorf(ErrNoPotionsRemaining, "%s has no more %s potions!", c.Name, r)
	}
	*stock--
	if r == ResourceMP {
		c.CurrentMP = c.MaxMP
	} else {
		c.CurrentHP = c.MaxHP
	}
	c.Normalize()
	return nil
}
