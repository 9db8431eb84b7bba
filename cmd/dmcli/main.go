// dmcli is a terminal DM console for a running gmconsole server.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gmconsole/server/internal/console"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rodaine/table"
	"golang.org/x/term"
)

type environment struct {
	Addr       string `env:"GMCONSOLE_ADDR" envDefault:"localhost:3000"`
	Passphrase string `env:"DM_PASSWORD"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dmcli: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envCfg, err := env.ParseAs[environment]()
	if err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	addr := flag.String("addr", envCfg.Addr, "server host:port")
	path := flag.String("path", "/ws", "websocket path")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: *path}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	out, lines, restore, err := openTerminal()
	if err != nil {
		return err
	}
	defer restore()

	c := &client{conn: conn, out: out, restore: restore}
	if err := c.send(map[string]any{
		"category":  "system",
		"type":      "connect",
		"status":    "new",
		"startTime": time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	go c.readLoop()

	pass := envCfg.Passphrase
	if pass == "" {
		if pass, err = lines.password("passphrase: "); err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
	}
	if err := c.send(map[string]any{"category": "console", "type": pass}); err != nil {
		return err
	}

	for {
		line, err := lines.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		msg, ok := c.commandFrame(line)
		if !ok {
			fmt.Fprintln(c.out, "not unlocked yet; waiting for the DM token")
			continue
		}
		if err := c.send(msg); err != nil {
			return err
		}
	}
}

// lineSource reads commands either from a raw-mode terminal or from a pipe.
type lineSource struct {
	term    *term.Terminal
	scanner *bufio.Scanner
}

func (l *lineSource) next() (string, error) {
	if l.term != nil {
		return l.term.ReadLine()
	}
	if l.scanner.Scan() {
		return l.scanner.Text(), nil
	}
	if err := l.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (l *lineSource) password(prompt string) (string, error) {
	if l.term != nil {
		return l.term.ReadPassword(prompt)
	}
	return l.next()
}

// openTerminal puts stdin in raw mode when it is a terminal. The returned
// writer is safe to use while a line is being edited.
func openTerminal() (io.Writer, *lineSource, func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return os.Stdout, &lineSource{scanner: bufio.NewScanner(os.Stdin)}, func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("raw terminal: %w", err)
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "dm> ")
	return t, &lineSource{term: t}, func() { term.Restore(fd, state) }, nil
}

type client struct {
	conn    *websocket.Conn
	out     io.Writer
	restore func()

	mu    sync.Mutex
	token string
}

func (c *client) send(msg map[string]any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// commandFrame turns a typed line into a console message carrying the
// token. ok is false until the server has unlocked this connection.
func (c *client) commandFrame(line string) (msg map[string]any, ok bool) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return nil, false
	}
	name, args := console.SplitCommand(line)
	return map[string]any{
		"category": "console",
		"type":     name,
		"args":     args,
		"dm":       token,
	}, true
}

func (c *client) readLoop() {
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(c.out, "connection closed: %v\n", err)
			c.restore()
			os.Exit(0)
		}
		c.handle(b)
	}
}

type inbound struct {
	Category string          `json:"category"`
	Type     string          `json:"type"`
	Str      string          `json:"str"`
	Token    string          `json:"token"`
	Count    int             `json:"count"`
	Chars    []rosterEntry   `json:"chars"`
	Char     *rosterEntry    `json:"char"`
}

type rosterEntry struct {
	Name      string                     `json:"name"`
	CurrentHP int                        `json:"currentHP"`
	MaxHP     int                        `json:"maxHP"`
	CurrentMP int                        `json:"currentMP"`
	MaxMP     int                        `json:"maxMP"`
	HPPotions int                        `json:"hpPotions"`
	MPPotions int                        `json:"mpPotions"`
	Buffs     map[string]json.RawMessage `json:"buffs"`
}

func (c *client) handle(b []byte) {
	var m inbound
	if err := json.Unmarshal(b, &m); err != nil {
		fmt.Fprintf(c.out, "bad frame: %v\n", err)
		return
	}
	switch m.Category + "." + m.Type {
	case "console.log":
		fmt.Fprintln(c.out, m.Str)
	case "system.dm":
		c.setToken(m.Token)
	case "system.nodm":
		fmt.Fprintln(c.out, "DM permission denied")
	case "system.refresh":
		fmt.Fprintln(c.out, "server restarted; reconnect")
	case "system.viewers":
		fmt.Fprintf(c.out, "viewers: %d\n", m.Count)
	case "session.start", "session.turn", "session.chardata":
		io.WriteString(c.out, renderRoster(m.Chars))
	case "session.char":
		if m.Char != nil {
			io.WriteString(c.out, renderRoster([]rosterEntry{*m.Char}))
		}
	case "session.end":
		fmt.Fprintln(c.out, "session ended")
	case "session.nosession":
		fmt.Fprintln(c.out, "no active session")
	}
}

// renderRoster formats characters as a fixed-width table.
func renderRoster(chars []rosterEntry) string {
	var b strings.Builder
	t := table.New("Name", "HP", "MP", "Potions", "Buffs").WithWriter(&b)
	for _, c := range chars {
		t.AddRow(
			c.Name,
			fmt.Sprintf("%d/%d", c.CurrentHP, c.MaxHP),
			fmt.Sprintf("%d/%d", c.CurrentMP, c.MaxMP),
			fmt.Sprintf("%d hp / %d mp", c.HPPotions, c.MPPotions),
			len(c.Buffs),
		)
	}
	t.Print()
	return b.String()
}
