package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options configures the HTTP/WebSocket listener.
type Options struct {
	BindAddress    string
	WSPath         string
	StaticDir      string // "" disables static serving
	MaxMessageSize int64
	Session        SessionOptions
}

// Server accepts WebSocket upgrades and creates Sessions.
// New sessions are handed to the game loop over a channel.
type Server struct {
	listener net.Listener
	httpSrv  *http.Server
	upgrader websocket.Upgrader
	opts     Options
	nextID   atomic.Uint64
	newConns chan *Session
	log      *zap.Logger
	access   *zap.Logger
	closeCh  chan struct{}
}

// NewServer binds the listener. access receives one line per page request
// and upgrade; it may be nil.
func NewServer(opts Options, log, access *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", opts.BindAddress)
	if err != nil {
		return nil, err
	}
	if opts.WSPath == "" {
		opts.WSPath = "/ws"
	}
	if access == nil {
		access = zap.NewNop()
	}
	s := &Server{
		listener: ln,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		opts:     opts,
		newConns: make(chan *Session, 64),
		log:      log,
		access:   access,
		closeCh:  make(chan struct{}),
	}
	s.httpSrv = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.WSPath, s.handleWS)
	if s.opts.StaticDir != "" {
		files := http.FileServer(http.Dir(s.opts.StaticDir))
		mux.Handle("/", s.logPages(files))
	}
	return mux
}

// logPages writes page requests (paths without a file extension) to the
// access log.
func (s *Server) logPages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ".") {
			s.logAccess(r)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logAccess(r *http.Request) {
	s.access.Info(fmt.Sprintf("[%s] %s : %s",
		time.Now().UTC().Format(time.RFC3339), ClientIP(r), r.URL.RequestURI()))
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.closeCh:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket 升級失敗", zap.Error(err))
		return
	}
	s.logAccess(r)

	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	if rt := s.opts.Session.ReadTimeout; rt > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(rt))
		})
	}

	id := s.nextID.Add(1)
	sess := NewSession(conn, id, ClientIP(r), s.opts.Session, s.log)
	sess.Start()

	s.log.Info(fmt.Sprintf("觀眾連線  session=%d  ip=%s", id, sess.IP))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("連線佇列已滿，拒絕新連線")
		sess.Close()
	}
}

// AcceptLoop runs in its own goroutine and serves HTTP until Shutdown.
func (s *Server) AcceptLoop() {
	if err := s.httpSrv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		select {
		case <-s.closeCh:
		default:
			s.log.Error("HTTP 服務中止", zap.Error(err))
		}
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.closeCh)
	return s.httpSrv.Shutdown(ctx)
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
