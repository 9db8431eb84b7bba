package handler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gmconsole/server/internal/effect"
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/world"
	"github.com/rodaine/table"
	"go.uber.org/zap"
)

// command is one entry of the DM command table.
type command struct {
	usage        string
	minArgs      int
	needsSession bool
	run          func(sess *net.Session, args []string) error
}

// Dispatcher maps DM command names to handlers. Game loop only.
type Dispatcher struct {
	deps     *Deps
	commands map[string]command
}

func NewDispatcher(deps *Deps) *Dispatcher {
	d := &Dispatcher{deps: deps}
	d.commands = map[string]command{
		"damage": {
			usage:        "Damage command missing args: damage <character> <amount>",
			minArgs:      2,
			needsSession: true,
			run:          d.damage,
		},
		"heal": {
			usage:        "Heal command missing args: heal <character> <amount>",
			minArgs:      2,
			needsSession: true,
			run:          d.heal,
		},
		"class": {
			usage:        "Class command missing args: class <character> <class|null>",
			minArgs:      2,
			needsSession: true,
			run:          d.class,
		},
		"session": {
			usage:   "Session command missing args: session <new|end|turn> [characters...]",
			minArgs: 1,
			run:     d.session,
		},
		"data": {
			usage:        "Data command missing args: data <character> <data> <value>",
			minArgs:      3,
			needsSession: true,
			run:          d.data,
		},
		"buff": {
			usage:        "Buff command missing args: buff <player> <name> <icon> <turns> [effects...]",
			minArgs:      4,
			needsSession: true,
			run:          d.buff,
		},
		"unbuff": {
			usage:        "Unbuff command missing args: unbuff <player> <name>",
			minArgs:      2,
			needsSession: true,
			run:          d.unbuff,
		},
		"gem": {
			usage:        "Gem command missing args: gem <player> <slot> <name> <color> [effects...]",
			minArgs:      4,
			needsSession: true,
			run:          d.gem,
		},
		"ungem": {
			usage:        "Ungem command missing args: ungem <player> <slot>",
			minArgs:      2,
			needsSession: true,
			run:          d.ungem,
		},
		"potion": {
			usage:        "Potion command missing args: potion <player> <resource> [restore]",
			minArgs:      2,
			needsSession: true,
			run:          d.potion,
		},
		"trigger": {
			usage:        "Trigger command missing args: trigger <player> <in|out>",
			minArgs:      2,
			needsSession: true,
			run:          d.trigger,
		},
		"roster": {
			needsSession: true,
			run:          d.roster,
		},
		"help": {
			run: d.help,
		},
	}
	return d
}

// Run looks up name and executes it. Preconditions are checked before the
// handler sees the arguments, and handlers validate everything before they
// mutate, so a returned error means nothing changed.
func (d *Dispatcher) Run(sess *net.Session, name string, args []string) error {
	cmd, ok := d.commands[name]
	if !ok {
		return world.Errorf(ErrCommandNotFound, "Command '%s' not found", name)
	}
	if cmd.needsSession {
		if _, err := d.deps.World.Active(); err != nil {
			return err
		}
	}
	if len(args) < cmd.minArgs {
		return world.Errorf(ErrUsage, "%s", cmd.usage)
	}
	return cmd.run(sess, args)
}

// Names lists the registered commands, sorted.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.commands))
	for n := range d.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// target resolves a roster character in the active session.
func (d *Dispatcher) target(name string) (*world.SessionCharacter, error) {
	s, err := d.deps.World.Active()
	if err != nil {
		return nil, err
	}
	return s.Find(name)
}

func (d *Dispatcher) reply(sess *net.Session, format string, args ...any) {
	sendConsoleLog(sess, fmt.Sprintf(format, args...), d.deps)
}

// --- Sugar over data ---

func (d *Dispatcher) damage(sess *net.Session, args []string) error {
	return d.Run(sess, "data", []string{args[0], "currentHP", "-" + args[1]})
}

func (d *Dispatcher) heal(sess *net.Session, args []string) error {
	return d.Run(sess, "data", []string{args[0], "currentHP", "+" + args[1]})
}

func (d *Dispatcher) class(sess *net.Session, args []string) error {
	return d.Run(sess, "data", []string{args[0], "equippedClass", args[1]})
}

// --- Session lifecycle ---

func (d *Dispatcher) session(sess *net.Session, args []string) error {
	switch args[0] {
	case "new":
		return d.sessionNew(sess, args[1:])
	case "end":
		return d.sessionEnd(sess)
	case "turn":
		return d.sessionTurn(sess)
	default:
		return world.Errorf(ErrUsage, "%s", d.commands["session"].usage)
	}
}

func (d *Dispatcher) sessionNew(sess *net.Session, names []string) error {
	picked := d.deps.Characters.Select(names)
	chars := make([]*world.SessionCharacter, 0, len(picked))
	for _, c := range picked {
		chars = append(chars, world.NewSessionCharacter(c, d.deps.Rules, d.deps.Limits))
	}

	s, replaced := d.deps.World.Start(chars)
	if replaced {
		d.deps.Log.Info("取代進行中的場次")
	}
	d.deps.Log.Info(fmt.Sprintf("場次開始  角色=%s", strings.Join(s.Names(), ",")))

	broadcast(packet.CategorySession, "start", charsPayload{Chars: roster(s)}, d.deps)
	d.reply(sess, "Started new session with %d characters.", len(chars))
	return nil
}

func (d *Dispatcher) sessionEnd(sess *net.Session) error {
	if d.deps.World.End() {
		d.deps.Log.Info("場次結束")
	}
	broadcast(packet.CategorySession, "end", nil, d.deps)
	d.reply(sess, "Ended the current session.")
	return nil
}

func (d *Dispatcher) sessionTurn(sess *net.Session) error {
	s, res, err := d.deps.World.AdvanceTurn()
	if err != nil {
		return err
	}
	for name, expired := range res.Expired {
		d.deps.Log.Debug("增益到期", zap.String("char", name), zap.Strings("buffs", expired))
	}

	broadcast(packet.CategorySession, "turn", charsPayload{Chars: roster(s)}, d.deps)
	d.reply(sess, "Advanced turn %d.", res.Turn)
	return nil
}

// --- Generic setter ---

func (d *Dispatcher) data(sess *net.Session, args []string) error {
	c, err := d.target(args[0])
	if err != nil {
		return err
	}
	if err := c.SetField(args[1], args[2], d.deps.Classes); err != nil {
		return err
	}
	broadcastChar(c, d.deps)
	return nil
}

// --- Buffs and gems ---

func (d *Dispatcher) buff(sess *net.Session, args []string) error {
	c, err := d.target(args[0])
	if err != nil {
		return err
	}
	name, icon := args[1], args[2]
	turns, err := world.ParseNumber(args[3])
	if err != nil {
		return err
	}
	if turns < 1 {
		return world.Errorf(world.ErrInvalidNumber, "Buff turns must be >0")
	}
	def, err := effect.Parse(args[4:])
	if err != nil {
		return err
	}

	replaced := c.AddBuff(&world.Buff{Name: name, Icon: icon, TurnsRemaining: turns, Effect: def})
	if replaced {
		d.reply(sess, "%s's buff '%s' was replaced (%d turns)", c.Name, name, turns)
	} else {
		d.reply(sess, "%s gained buff '%s' (%d turns)", c.Name, name, turns)
	}
	broadcastChar(c, d.deps)
	return nil
}

func (d *Dispatcher) unbuff(sess *net.Session, args []string) error {
	c, err := d.target(args[0])
	if err != nil {
		return err
	}
	if err := c.RemoveBuff(args[1]); err != nil {
		return err
	}
	d.reply(sess, "%s lost buff '%s'", c.Name, args[1])
	broadcastChar(c, d.deps)
	return nil
}

func (d *Dispatcher) gemSlot(c *world.SessionCharacter, raw string) (int, error) {
	slot, err := world.ParseNumber(raw)
	if err != nil {
		return 0, err
	}
	return slot, c.CheckGemSlot(slot)
}

func (d *Dispatcher) gem(sess *net.Session, args []string) error {
	c, err := d.target(args[0])
	if err != nil {
		return err
	}
	slot, err := d.gemSlot(c, args[1])
	if err != nil {
		return err
	}
	name, color := args[2], args[3]
	def, err := effect.Parse(args[4:])
	if err != nil {
		return err
	}

	if _, err := c.SetGem(slot, &world.Gem{Name: name, Color: color, Effect: def}); err != nil {
		return err
	}
	d.reply(sess, "%s socketed gem '%s' in slot %d", c.Name, name, slot)
	broadcastChar(c, d.deps)
	return nil
}

func (d *Dispatcher) ungem(sess *net.Session, args []string) error {
	c, err := d.target(args[0])
	if err != nil {
		return err
	}
	slot, err := d.gemSlot(c, args[1])
	if err != nil {
		return err
	}
	if err := c.RemoveGem(slot); err != nil {
		return err
	}
	d.reply(sess, "%s cleared gem slot %d", c.Name, slot)
	broadcastChar(c, d.deps)
	return nil
}

// trigger fires the incoming or outgoing actions of every effect on a
// character, e.g. when it is hit or attacks.
func (d *Dispatcher) trigger(sess *net.Session, args []string) error {
	c, err := d.target(args[0])
	if err != nil {
		return err
	}
	kind, ok := effect.ParseKind(args[1])
	if !ok || (kind != effect.KindIncoming && kind != effect.KindOutgoing) {
		return world.Errorf(ErrUsage, "%s", d.commands["trigger"].usage)
	}
	c.FireAll(kind)
	d.reply(sess, "Fired %s triggers on %s", kind, c.Name)
	broadcastChar(c, d.deps)
	return nil
}

// --- Potions ---

func (d *Dispatcher) potion(sess *net.Session, args []string) error {
	c, err := d.target(args[0])
	if err != nil {
		return err
	}

	if len(args) > 2 {
		n, err := world.ParseNumber(args[2])
		if err != nil || n < 1 {
			return world.Errorf(world.ErrInvalidNumber, "Potion restore count must be >0")
		}
		r, err := world.ParseResource(args[1])
		if err != nil {
			return err
		}
		gained := c.GainPotions(r, n)
		d.reply(sess, "%s has gained +%d %s potions!", c.Name, gained, r)
		broadcastChar(c, d.deps)
		return nil
	}

	r, err := world.ParseResource(args[1])
	if err != nil {
		return err
	}
	if err := c.UsePotion(r); err != nil {
		return err
	}
	d.reply(sess, "%s has used a %s potion", c.Name, r)
	broadcastChar(c, d.deps)
	return nil
}

// --- Read-only ---

func (d *Dispatcher) roster(sess *net.Session, _ []string) error {
	s, err := d.deps.World.Active()
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Turn %d\n", s.Turn)
	t := table.New("Name", "HP", "MP", "Potions", "Buffs", "Gems").WithWriter(&b)
	for _, c := range s.Characters {
		buffs := make([]string, 0, len(c.Buffs))
		for _, n := range c.BuffNames() {
			buffs = append(buffs, n+"("+strconv.Itoa(c.Buffs[n].TurnsRemaining)+")")
		}
		gems := 0
		for _, g := range c.Gems {
			if g != nil {
				gems++
			}
		}
		t.AddRow(
			c.Name,
			fmt.Sprintf("%d/%d", c.CurrentHP, c.MaxHP),
			fmt.Sprintf("%d/%d", c.CurrentMP, c.MaxMP),
			fmt.Sprintf("%d HP, %d MP", c.HPPotions, c.MPPotions),
			strings.Join(buffs, " "),
			fmt.Sprintf("%d/%d", gems, len(c.Gems)),
		)
	}
	t.Print()

	sendConsoleLog(sess, strings.TrimRight(b.String(), "\n"), d.deps)
	return nil
}

func (d *Dispatcher) help(sess *net.Session, _ []string) error {
	d.reply(sess, "Commands: %s", strings.Join(d.Names(), ", "))
	return nil
}
