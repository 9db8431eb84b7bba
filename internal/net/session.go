package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gmconsole/server/internal/net/packet"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is the subset of *websocket.Conn a Session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// SessionOptions sizes queues and timeouts for one connection.
type SessionOptions struct {
	InQueueSize  int
	OutQueueSize int
	MsgPerSec    int           // 0 = unlimited
	ReadTimeout  time.Duration // 0 = no deadline
	WriteTimeout time.Duration
}

// Session represents a single viewer connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	IP          string
	ConnectedAt time.Time

	outBuf [][]byte // buffered frames, flushed by OutputSystem (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second message rate limiter (readLoop goroutine only, no lock needed)
	msgPerSec  int
	msgCount   int
	msgResetAt int64

	readTimeout  time.Duration
	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn Conn, id uint64, ip string, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		IP:           ip,
		ConnectedAt:  time.Now(),
		closeCh:      make(chan struct{}),
		msgPerSec:    opts.MsgPerSec,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateViewer))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Log returns the session-scoped logger.
func (s *Session) Log() *zap.Logger {
	return s.log
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a frame for sending. The frame is not written until
// FlushOutput is called by the game loop.
// Called only from the game loop goroutine, so outBuf needs no lock.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// Pending reports how many frames are buffered but not yet flushed.
func (s *Session) Pending() int {
	return len(s.outBuf)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

func (s *Session) extendReadDeadline() {
	if s.readTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

// readLoop runs in its own goroutine. It reads frames from the websocket
// and pushes them onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	s.extendReadDeadline()
	for {
		mt, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}
		s.extendReadDeadline()
		if mt != websocket.TextMessage {
			continue
		}

		if s.msgPerSec > 0 {
			now := time.Now().Unix()
			if now != s.msgResetAt {
				s.msgCount = 0
				s.msgResetAt = now
			}
			s.msgCount++
			if s.msgCount > s.msgPerSec {
				s.log.Warn("訊息速率超限，斷開連線", zap.Int("mps", s.msgCount))
				return
			}
		}

		// Block until InQueue has space or session closes. Commands are
		// never dropped.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It writes frames from OutQueue and
// keeps the connection alive with pings.
func (s *Session) writeLoop() {
	defer s.Close()

	var pingC <-chan time.Time
	if s.readTimeout > 0 {
		ticker := time.NewTicker(s.readTimeout * 9 / 10)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-pingC:
			deadline := time.Now().Add(s.writeTimeoutOrDefault())
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !s.closed.Load() {
					s.log.Debug("ping 失敗", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeTimeoutOrDefault() time.Duration {
	if s.writeTimeout > 0 {
		return s.writeTimeout
	}
	return 10 * time.Second
}

// writeOne writes a single text frame. Returns true on success.
func (s *Session) writeOne(data []byte) bool {
	s.log.Debug("TX", zap.Int("len", len(data)))

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeoutOrDefault()))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
