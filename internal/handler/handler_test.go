package handler

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gmconsole/server/internal/data"
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/world"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

const passphrase = "swordfish"

type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("closed") }
func (fakeConn) WriteMessage(int, []byte) error { return nil }
func (fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (fakeConn) SetReadDeadline(time.Time) error { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (fakeConn) Close() error { return nil }

// frame is a decoded outbound message.
type frame map[string]any

func (f frame) route() string {
	return f["category"].(string) + "." + f["type"].(string)
}

type harness struct {
	t    *testing.T
	deps *Deps
	reg  *packet.Registry
}

type client struct {
	h    *harness
	sess *net.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rogue := &data.JobClass{Name: "Rogue"}
	classes := data.NewClassTable(rogue, &data.JobClass{Name: "Bard"}, &data.JobClass{Name: "Wizard"})
	chars := data.NewCharacterTable([]*data.Character{
		{Name: "Bob", SpecialtyClass: classes.Get("Wizard"), Stats: map[string]int{"hp": 30, "mp": 40, "int": 15}},
		{Name: "Alice", SpecialtyClass: rogue, Stats: map[string]int{"hp": 50, "mp": 20, "str": 8}},
		{Name: "Sir Reginald", Stats: map[string]int{"hp": 60, "mp": 0}},
	})
	deps := &Deps{
		Log:        zap.NewNop(),
		World:      world.NewState(),
		Characters: chars,
		Classes:    classes,
		Limits:     world.Limits{MaxHPPotions: 3, MaxMPPotions: 3, GemSlots: 2},
		Sessions:   net.NewSessionStore(),
		DM:         NewDMAuth(passphrase),
		StartTime:  1000,
	}
	reg := packet.NewRegistry(zap.NewNop())
	RegisterAll(reg, deps)
	return &harness{t: t, deps: deps, reg: reg}
}

var nextID uint64

func (h *harness) connect() *client {
	nextID++
	s := net.NewSession(fakeConn{}, nextID, "127.0.0.1", net.SessionOptions{InQueueSize: 4, OutQueueSize: 64}, zap.NewNop())
	h.deps.Sessions.Add(s)
	return &client{h: h, sess: s}
}

// dm connects a client and unlocks it with the passphrase.
func (h *harness) dm() *client {
	c := h.connect()
	c.send(frame{"category": "console", "type": passphrase})
	c.frames()
	return c
}

func (c *client) send(f frame) {
	c.h.t.Helper()
	b, err := json.Marshal(f)
	if err != nil {
		c.h.t.Fatal(err)
	}
	if err := c.h.reg.Dispatch(c.sess, c.sess.State(), b); err != nil {
		c.h.t.Fatalf("Dispatch(%s): %v", b, err)
	}
}

// command sends a DM console command with the token.
func (c *client) command(name, args string) {
	c.h.t.Helper()
	c.send(frame{"category": "console", "type": name, "args": args, "dm": c.h.deps.DM.Token()})
}

// frames flushes and decodes everything queued for this client.
func (c *client) frames() []frame {
	c.h.t.Helper()
	c.sess.FlushOutput()
	var out []frame
	for {
		select {
		case b := <-c.sess.OutQueue:
			var f frame
			if err := json.Unmarshal(b, &f); err != nil {
				c.h.t.Fatalf("bad frame %s: %v", b, err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func routes(fs []frame) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.route()
	}
	return out
}

func logs(fs []frame) []string {
	var out []string
	for _, f := range fs {
		if f.route() == "console.log" {
			out = append(out, f["str"].(string))
		}
	}
	return out
}

func (h *harness) char(name string) *world.SessionCharacter {
	h.t.Helper()
	s, err := h.deps.World.Active()
	if err != nil {
		h.t.Fatalf("no session: %v", err)
	}
	c, err := s.Find(name)
	if err != nil {
		h.t.Fatal(err)
	}
	return c
}

func TestDMAuth(t *testing.T) {
	a := NewDMAuth("pw")
	b := NewDMAuth("pw")
	if a.Token() != b.Token() || len(a.Token()) != 64 {
		t.Errorf("token not stable: %q vs %q", a.Token(), b.Token())
	}
	if a.Token() == NewDMAuth("other").Token() {
		t.Error("different passphrases share a token")
	}
	if !a.IsPassphrase("pw") || a.IsPassphrase("pW") || a.IsPassphrase("") {
		t.Error("IsPassphrase")
	}
	if a.Check("") || a.Check("pw") || !a.Check(a.Token()) {
		t.Error("Check")
	}
	if err := a.Authorize("nope"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authorize = %v", err)
	}
}

func TestConsoleUnlockAndReject(t *testing.T) {
	h := newHarness(t)

	anon := h.connect()
	anon.send(frame{"category": "console", "type": "session", "args": "new Alice"})
	got := anon.frames()
	if diff := cmp.Diff([]string{"console.log", "system.nodm"}, routes(got)); diff != "" {
		t.Errorf("unauthorized routes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"You do not have DM permissions!"}, logs(got)); diff != "" {
		t.Errorf("unauthorized text (-want +got):\n%s", diff)
	}
	if h.deps.World.Phase() != world.PhaseNoSession {
		t.Error("unauthorized command changed state")
	}

	anon.send(frame{"category": "console", "type": passphrase})
	got = anon.frames()
	if diff := cmp.Diff([]string{"system.dm", "console.log"}, routes(got)); diff != "" {
		t.Errorf("unlock routes (-want +got):\n%s", diff)
	}
	if got[0]["token"] != h.deps.DM.Token() || got[1]["str"] != "DM mode unlocked" {
		t.Errorf("unlock frames = %v", got)
	}
	if anon.sess.State() != packet.StateDM {
		t.Errorf("state = %s", anon.sess.State())
	}
}

func TestSystemDMToken(t *testing.T) {
	h := newHarness(t)
	c := h.connect()

	c.send(frame{"category": "system", "type": "dm", "token": "bad"})
	if diff := cmp.Diff([]string{"system.nodm"}, routes(c.frames())); diff != "" {
		t.Errorf("bad token (-want +got):\n%s", diff)
	}

	c.send(frame{"category": "system", "type": "dm", "token": h.deps.DM.Token()})
	got := c.frames()
	if diff := cmp.Diff([]string{"system.dm", "console.log"}, routes(got)); diff != "" {
		t.Errorf("good token (-want +got):\n%s", diff)
	}
}

func TestConnect(t *testing.T) {
	h := newHarness(t)
	other := h.connect()
	c := h.connect()

	c.send(frame{"category": "system", "type": "connect", "status": "new", "startTime": 999})
	if diff := cmp.Diff([]string{"system.refresh"}, routes(c.frames())); diff != "" {
		t.Errorf("stale client (-want +got):\n%s", diff)
	}
	if len(other.frames()) != 0 {
		t.Error("stale client should not broadcast")
	}

	c.send(frame{"category": "system", "type": "connect", "status": "reconnecting", "startTime": 2000, "connectTime": 350.5})
	got := c.frames()
	if diff := cmp.Diff([]string{"system.confirm", "system.viewers"}, routes(got)); diff != "" {
		t.Errorf("connect (-want +got):\n%s", diff)
	}
	if got[1]["count"] != float64(2) {
		t.Errorf("viewers = %v", got[1]["count"])
	}
	if diff := cmp.Diff([]string{"system.viewers"}, routes(other.frames())); diff != "" {
		t.Errorf("other viewer (-want +got):\n%s", diff)
	}

	c.sess.Close()
	h.deps.Sessions.Remove(c.sess.ID)
	HandleDisconnect(c.sess, h.deps)
	got = other.frames()
	if len(got) != 1 || got[0]["count"] != float64(1) {
		t.Errorf("after disconnect = %v", got)
	}
}

func TestQueriesWithoutSession(t *testing.T) {
	h := newHarness(t)
	c := h.connect()

	c.send(frame{"category": "session", "type": "ping"})
	c.send(frame{"category": "session", "type": "chardata"})
	c.send(frame{"category": "session", "type": "charnames"})
	c.send(frame{"category": "character", "type": "chardata"})
	got := c.frames()

	want := []string{"session.nosession", "session.nosession", "session.charnames", "character.chardata"}
	if diff := cmp.Diff(want, routes(got)); diff != "" {
		t.Fatalf("routes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"Alice", "Bob", "Sir Reginald"}, got[2]["charNames"]); diff != "" {
		t.Errorf("charNames (-want +got):\n%s", diff)
	}
	if n := len(got[3]["chars"].([]any)); n != 3 {
		t.Errorf("chardata has %d chars", n)
	}
}

func TestUnknownRouteIgnored(t *testing.T) {
	h := newHarness(t)
	c := h.connect()
	c.send(frame{"category": "session", "type": "nonsense"})
	c.send(frame{"category": "weather", "type": "rain"})
	if got := c.frames(); len(got) != 0 {
		t.Errorf("unexpected frames %v", got)
	}
}

func TestCommandsNeedSession(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()

	for _, cmd := range []string{"damage Alice 5", "data Alice currentHP 1", "buff Alice x i 1", "gem Alice 0 g red", "potion Alice hp", "session turn", "roster"} {
		name, args, _ := strings.Cut(cmd, " ")
		dm.command(name, args)
		got := dm.frames()
		if diff := cmp.Diff([]string{"There is not currently a session active"}, logs(got)); diff != "" {
			t.Errorf("%s (-want +got):\n%s", cmd, diff)
		}
	}

	dm.command("session", "end")
	if diff := cmp.Diff([]string{"session.end", "console.log"}, routes(dm.frames())); diff != "" {
		t.Errorf("session end while idle (-want +got):\n%s", diff)
	}
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	dm.command("session", `new Alice Bob`)
	dm.frames()

	tests := []struct {
		name, args string
		want       string
	}{
		{"fly", "", "Command 'fly' not found"},
		{"data", "Alice currentHP", "Data command missing args: data <character> <data> <value>"},
		{"data", "Carol currentHP 5", "Character 'Carol' not found"},
		{"data", "Alice speed 5", "Unknown key: 'speed' from 'speed'"},
		{"data", "Alice stats.luck 5", "Unknown key: 'luck' from 'stats.luck'"},
		{"data", "Alice currentHP lots", "'lots' is not a valid number!"},
		{"class", "Alice Rogue", "Cannot equip the same class twice"},
		{"class", "Alice Necromancer", "Class 'Necromancer' does not exist"},
		{"damage", `"Alice" -5`, "'--5' is not a valid number!"},
		{"potion", "Alice elixir", "Unknown potions type: 'elixir'"},
		{"potion", "Alice hp 0", "Potion restore count must be >0"},
		{"potion", "Alice hp many", "Potion restore count must be >0"},
		{"potion", "Alice", "Potion command missing args: potion <player> <resource> [restore]"},
		{"buff", "Alice Poison icon", "Buff command missing args: buff <player> <name> <icon> <turns> [effects...]"},
		{"buff", "Alice Poison icon 0", "Buff turns must be >0"},
		{"buff", "Alice Poison icon 2 turn:hp*2", "invalid effect: bad term 'hp*2'"},
		{"gem", "Alice 9 Ruby red", "'9' is not a valid gem slot (0-1)"},
		{"ungem", "Alice 0", "Alice has no gem in slot 0"},
		{"unbuff", "Alice Haste", "Alice has no buff named 'Haste'"},
		{"trigger", "Alice turn", "Trigger command missing args: trigger <player> <in|out>"},
		{"session", "restart", "Session command missing args: session <new|end|turn> [characters...]"},
		{"data", `Alice name "Ali`, "Invalid command: unclosed quote"},
	}

	before, _ := json.Marshal(h.char("Alice"))
	for _, tt := range tests {
		t.Run(tt.name+" "+tt.args, func(t *testing.T) {
			viewer := h.connect()
			dm.command(tt.name, tt.args)
			got := dm.frames()
			if diff := cmp.Diff([]string{"console.log"}, routes(got)); diff != "" {
				t.Errorf("routes (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{tt.want}, logs(got)); diff != "" {
				t.Errorf("message (-want +got):\n%s", diff)
			}
			if extra := viewer.frames(); len(extra) != 0 {
				t.Errorf("failure reached a viewer: %v", extra)
			}
		})
	}
	after, _ := json.Marshal(h.char("Alice"))
	if string(before) != string(after) {
		t.Errorf("failed commands mutated Alice:\n%s\n%s", before, after)
	}
}

func TestSessionStartMessage(t *testing.T) {
	h := newHarness(t)
	viewer := h.connect()

	viewer.send(frame{"category": "session", "type": "start", "chars": []string{"Alice"}})
	if diff := cmp.Diff([]string{"console.log", "system.nodm"}, routes(viewer.frames())); diff != "" {
		t.Errorf("tokenless start (-want +got):\n%s", diff)
	}

	viewer.send(frame{"category": "session", "type": "start", "chars": []string{"Alice", "Nobody"}, "dm": h.deps.DM.Token()})
	got := viewer.frames()
	if diff := cmp.Diff([]string{"session.start", "console.log"}, routes(got)); diff != "" {
		t.Errorf("start (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Started new session with 1 characters."}, logs(got)); diff != "" {
		t.Errorf("start text (-want +got):\n%s", diff)
	}
}

func TestEndToEndPoison(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	viewer := h.connect()

	dm.command("session", `new "Alice" "Bob"`)
	got := viewer.frames()
	if diff := cmp.Diff([]string{"session.start"}, routes(got)); diff != "" {
		t.Fatalf("session new broadcast (-want +got):\n%s", diff)
	}
	chars := got[0]["chars"].([]any)
	if len(chars) != 2 {
		t.Fatalf("roster size = %d", len(chars))
	}
	if diff := cmp.Diff([]string{"Started new session with 2 characters."}, logs(dm.frames())); diff != "" {
		t.Errorf("dm text (-want +got):\n%s", diff)
	}

	dm.command("damage", `"Alice" 10`)
	got = viewer.frames()
	if diff := cmp.Diff([]string{"session.char"}, routes(got)); diff != "" {
		t.Fatalf("damage broadcast (-want +got):\n%s", diff)
	}
	char := got[0]["char"].(map[string]any)
	if char["name"] != "Alice" || char["currentHP"] != float64(40) {
		t.Errorf("damaged char = %v/%v", char["name"], char["currentHP"])
	}
	if h.char("Bob").CurrentHP != 30 {
		t.Error("Bob was touched")
	}

	dm.command("buff", `"Alice" "Poison" icon1 3 turn:hp-2`)
	viewer.frames()
	for turn, wantHP := range []int{38, 36, 34} {
		dm.command("session", "turn")
		got = viewer.frames()
		if diff := cmp.Diff([]string{"session.turn"}, routes(got)); diff != "" {
			t.Fatalf("turn %d broadcast (-want +got):\n%s", turn+1, diff)
		}
		alice := h.char("Alice")
		if alice.CurrentHP != wantHP {
			t.Errorf("turn %d: HP = %d, want %d", turn+1, alice.CurrentHP, wantHP)
		}
		_, present := alice.Buffs["Poison"]
		if wantPresent := turn < 2; present != wantPresent {
			t.Errorf("turn %d: buff present = %v", turn+1, present)
		}
	}
	if diff := cmp.Diff([]string{"Advanced turn 3."}, logs(dm.frames())[3:]); diff != "" {
		t.Errorf("turn text (-want +got):\n%s", diff)
	}
}

func TestClamping(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	dm.command("session", "new Alice")

	dm.command("data", "Alice currentHP -9999")
	if hp := h.char("Alice").CurrentHP; hp != 0 {
		t.Errorf("HP = %d, want 0", hp)
	}
	dm.command("heal", "Alice 9999")
	if hp := h.char("Alice").CurrentHP; hp != 50 {
		t.Errorf("HP = %d, want 50", hp)
	}
	dm.command("data", "Alice currentHP 5")
	dm.command("heal", "Alice 9223372036854775807")
	if hp := h.char("Alice").CurrentHP; hp != 50 {
		t.Errorf("HP after oversized heal = %d, want 50", hp)
	}
	dm.command("data", "Alice maxHP -9999")
	if a := h.char("Alice"); a.MaxHP != 0 || a.CurrentHP != 0 {
		t.Errorf("hp %d/%d after negative maxHP, want 0/0", a.CurrentHP, a.MaxHP)
	}
	dm.command("data", "Alice maxHP 50")
	dm.command("data", "Alice currentHP 12")
	if hp := h.char("Alice").CurrentHP; hp != 12 {
		t.Errorf("absolute HP = %d", hp)
	}
	dm.command("data", "Alice stats.str +2")
	dm.command("data", "Alice pronouns they/them")
	dm.command("class", "Alice Bard")
	a := h.char("Alice")
	if a.Stats["str"] != 10 || a.Pronouns != "they/them" || a.EquippedClass == nil || a.EquippedClass.Name != "Bard" {
		t.Errorf("data setters: str=%d pronouns=%q class=%v", a.Stats["str"], a.Pronouns, a.EquippedClass)
	}
	dm.command("class", "Alice null")
	if h.char("Alice").EquippedClass != nil {
		t.Error("class null should unequip")
	}
}

func TestPotions(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	dm.command("session", "new Alice")
	dm.frames()

	dm.command("damage", "Alice 30")
	for i := 0; i < 3; i++ {
		dm.command("potion", "Alice HP")
	}
	dm.command("damage", "Alice 30")
	dm.command("potion", "Alice hp")
	got := logs(dm.frames())
	want := []string{
		"Alice has used a HP potion",
		"Alice has used a HP potion",
		"Alice has used a HP potion",
		"Alice has no more HP potions!",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("potion use (-want +got):\n%s", diff)
	}
	if hp := h.char("Alice").CurrentHP; hp != 20 {
		t.Errorf("empty stock changed HP: %d", hp)
	}

	dm.command("potion", "Alice hp 5")
	dm.command("potion", "Alice mp 1")
	got = logs(dm.frames())
	want = []string{"Alice has gained +3 HP potions!", "Alice has gained +0 MP potions!"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("potion gain (-want +got):\n%s", diff)
	}
	if c := h.char("Alice"); c.HPPotions != 3 || c.MPPotions != 3 {
		t.Errorf("stock = %d/%d", c.HPPotions, c.MPPotions)
	}
}

func TestGemsAndTriggers(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	dm.command("session", "new Bob")

	dm.command("gem", "Bob 1 Ruby red apply:int+3,luck+1 in:hp-4 out:mp-5")
	b := h.char("Bob")
	if b.Stats["int"] != 18 || b.TempStats["luck"] != 1 {
		t.Errorf("gem apply: int=%d luck=%d", b.Stats["int"], b.TempStats["luck"])
	}

	dm.command("trigger", "Bob in")
	dm.command("trigger", "Bob out")
	if b.CurrentHP != 26 || b.CurrentMP != 35 {
		t.Errorf("triggers: HP=%d MP=%d", b.CurrentHP, b.CurrentMP)
	}

	dm.command("ungem", "Bob 1")
	if b.Stats["int"] != 15 || len(b.TempStats) != 0 || b.Gems[1] != nil {
		t.Errorf("ungem: int=%d temp=%v gem=%v", b.Stats["int"], b.TempStats, b.Gems[1])
	}

	dm.command("buff", "Bob Haste h 5 apply:speed+2")
	dm.command("unbuff", "Bob Haste")
	if len(b.Buffs) != 0 || len(b.TempStats) != 0 {
		t.Errorf("unbuff left buffs=%v temp=%v", b.Buffs, b.TempStats)
	}
}

func TestRosterAndHelp(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	dm.command("session", `new Alice "Sir Reginald"`)
	dm.frames()

	dm.command("roster", "")
	got := logs(dm.frames())
	if len(got) != 1 || !strings.Contains(got[0], "Sir Reginald") || !strings.Contains(got[0], "50/50") {
		t.Errorf("roster = %q", got)
	}

	dm.command("help", "")
	got = logs(dm.frames())
	if len(got) != 1 || !strings.Contains(got[0], "potion") {
		t.Errorf("help = %q", got)
	}
}

func TestWholeLineInType(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	dm.send(frame{"category": "console", "type": `session new "Sir Reginald"`, "dm": h.deps.DM.Token()})
	if diff := cmp.Diff([]string{"Started new session with 1 characters."}, logs(dm.frames())); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestWholeLineKeepsEscapedTrailingSpace(t *testing.T) {
	h := newHarness(t)
	dm := h.dm()
	dm.command("session", "new Alice")
	a := h.char("Alice")

	dm.send(frame{"category": "console", "type": `data Alice pronouns`, "args": `she\ `, "dm": h.deps.DM.Token()})
	if a.Pronouns != "she " {
		t.Errorf("pronouns = %q, want %q", a.Pronouns, "she ")
	}
	dm.send(frame{"category": "console", "type": `data Alice pronouns they\ `, "dm": h.deps.DM.Token()})
	if a.Pronouns != "they " {
		t.Errorf("pronouns = %q, want %q", a.Pronouns, "they ")
	}
}

func TestJoinArgs(t *testing.T) {
	got := joinArgs([]string{"new", "Sir Reginald", "", `a"b`})
	if want := `new "Sir Reginald" "" "a\"b"`; got != want {
		t.Errorf("joinArgs = %s, want %s", got, want)
	}
}
