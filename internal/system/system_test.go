package system

import (
	"errors"
	"testing"
	"time"

	coresys "github.com/gmconsole/server/internal/core/system"
	"github.com/gmconsole/server/internal/data"
	"github.com/gmconsole/server/internal/handler"
	"github.com/gmconsole/server/internal/net"
	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gmconsole/server/internal/world"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("closed") }
func (fakeConn) WriteMessage(int, []byte) error { return nil }
func (fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (fakeConn) SetReadDeadline(time.Time) error { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (fakeConn) Close() error { return nil }

type chanSource chan *net.Session

func (c chanSource) NewSessions() <-chan *net.Session { return c }

type loop struct {
	t      *testing.T
	source chanSource
	store  *net.SessionStore
	deps   *handler.Deps
	runner *coresys.Runner
}

func newLoop(t *testing.T) *loop {
	t.Helper()
	store := net.NewSessionStore()
	deps := &handler.Deps{
		Log:        zap.NewNop(),
		World:      world.NewState(),
		Characters: data.NewCharacterTable([]*data.Character{{Name: "Alice", Stats: map[string]int{"hp": 50, "mp": 20}}}),
		Classes:    data.NewClassTable(),
		Limits:     world.Limits{MaxHPPotions: 3, MaxMPPotions: 3, GemSlots: 2},
		Sessions:   store,
		DM:         handler.NewDMAuth("swordfish"),
		StartTime:  1000,
	}
	reg := packet.NewRegistry(zap.NewNop())
	handler.RegisterAll(reg, deps)

	l := &loop{t: t, source: make(chanSource, 8), store: store, deps: deps, runner: coresys.NewRunner()}
	l.runner.Register(NewOutputSystem(store))
	l.runner.Register(NewInputSystem(l.source, reg, store, 2, deps, zap.NewNop()))
	return l
}

func (l *loop) connect(id uint64) *net.Session {
	s := net.NewSession(fakeConn{}, id, "127.0.0.1", net.SessionOptions{InQueueSize: 8, OutQueueSize: 64}, zap.NewNop())
	l.source <- s
	return s
}

func (l *loop) push(s *net.Session, msg map[string]any) {
	l.t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		l.t.Fatal(err)
	}
	s.InQueue <- b
}

// received drains OutQueue and returns "category.type" for each frame.
func (l *loop) received(s *net.Session) []string {
	l.t.Helper()
	var out []string
	for {
		select {
		case b := <-s.OutQueue:
			var f map[string]any
			if err := json.Unmarshal(b, &f); err != nil {
				l.t.Fatalf("bad frame %s: %v", b, err)
			}
			out = append(out, f["category"].(string)+"."+f["type"].(string))
		default:
			return out
		}
	}
}

func TestInputAcceptsAndDispatches(t *testing.T) {
	l := newLoop(t)
	a := l.connect(1)
	l.push(a, map[string]any{"category": "system", "type": "connect", "status": "new", "startTime": 2000})
	l.push(a, map[string]any{"category": "session", "type": "ping"})

	l.runner.Tick(time.Millisecond)

	if got := l.store.Get(1); got != a {
		t.Fatalf("session 1 not accepted")
	}
	want := []string{"system.confirm", "system.viewers", "session.nosession"}
	if diff := cmp.Diff(want, l.received(a)); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}
}

func TestInputRespectsPerTickLimit(t *testing.T) {
	l := newLoop(t)
	a := l.connect(1)
	for i := 0; i < 3; i++ {
		l.push(a, map[string]any{"category": "session", "type": "ping"})
	}

	l.runner.Tick(time.Millisecond)
	if got := len(l.received(a)); got != 2 {
		t.Errorf("first tick sent %d frames, want 2", got)
	}
	l.runner.Tick(time.Millisecond)
	if got := len(l.received(a)); got != 1 {
		t.Errorf("second tick sent %d frames, want 1", got)
	}
}

func TestInputRemovesClosedSessions(t *testing.T) {
	l := newLoop(t)
	a, b := l.connect(1), l.connect(2)
	l.runner.Tick(time.Millisecond)

	// b's last command still runs after its socket drops.
	l.push(b, map[string]any{"category": "console", "type": "session", "args": `new Alice`, "dm": l.deps.DM.Token()})
	b.Close()
	l.runner.Tick(time.Millisecond)

	if l.store.Get(2) != nil {
		t.Errorf("closed session still tracked")
	}
	if _, err := l.deps.World.Active(); err != nil {
		t.Errorf("queued command from closed session did not run: %v", err)
	}
	want := []string{"session.start", "system.viewers"}
	if diff := cmp.Diff(want, l.received(a)); diff != "" {
		t.Errorf("frames to remaining viewer (-want +got):\n%s", diff)
	}
}

func TestOutputFlushesBufferedFrames(t *testing.T) {
	store := net.NewSessionStore()
	s := net.NewSession(fakeConn{}, 1, "127.0.0.1", net.SessionOptions{OutQueueSize: 4}, zap.NewNop())
	store.Add(s)
	s.Send(packet.MustEncode(packet.CategorySession, "end", nil))

	out := NewOutputSystem(store)
	if out.Phase() != coresys.PhaseOutput {
		t.Errorf("Phase = %v, want output", out.Phase())
	}
	out.Update(0)
	if s.Pending() != 0 || len(s.OutQueue) != 1 {
		t.Errorf("pending=%d queued=%d, want 0 and 1", s.Pending(), len(s.OutQueue))
	}
}
