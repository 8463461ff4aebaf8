package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

var (
	ErrClosed = errors.New("session closed")
)

// quitWriteTimeout bounds the farewell write in Close; a server that no
// longer reads must not hold up shutdown.
const quitWriteTimeout = 250 * time.Millisecond

// Metrics receives transport counters. Implementations must be safe for
// concurrent use; a nil Metrics is allowed.
type Metrics interface {
	BytesIn(n int)
	BytesOut(n int)
	MessageFlushed(reason string)
}

// Observer sees the cumulative unflushed buffer after every append while the
// session is not yet logged in. Returning true switches framing to the
// logged-in rules.
type Observer interface {
	Observe(buffer string) bool
}

// Handler receives framed messages in arrival order on a single goroutine.
// OnDisconnect fires once when the server ends the connection; it does not
// fire after Close.
type Handler struct {
	OnMessage    func(text string, reason FlushReason)
	OnDisconnect func(err error)
}

type Options struct {
	Framing       FramingConfig
	ReadBuffer    int
	WriteTimeout  time.Duration
	FlushInterval time.Duration // timeout checker period, must stay below PreLoginTimeout
	QuitCommand   string        // sent by Close while the connection is still up
	QueueSize     int
	Metrics       Metrics
}

// DefaultOptions returns the options used when the config leaves fields empty.
func DefaultOptions() Options {
	return Options{
		Framing:       DefaultFraming(),
		ReadBuffer:    4096,
		WriteTimeout:  10 * time.Second,
		FlushInterval: 25 * time.Millisecond,
		QuitCommand:   "quit",
		QueueSize:     256,
	}
}

type message struct {
	text   string
	reason FlushReason
}

// Session is one connection to the game server. The read loop and the
// timeout checker share mu; socket writes are serialized by writeMu.
// Messages are handed to the Handler by a dispatch goroutine so neither
// loop blocks on consumer work.
type Session struct {
	conn net.Conn
	opts Options

	state atomic.Int32 // SessionState stored as int32

	mu       sync.Mutex // protects everything below until writeMu
	fr       *framer
	tn       telnetParser
	held     string // partial ANSI sequence from the previous chunk
	fallback bool   // decoder fell back to UTF-8 at least once

	writeMu sync.Mutex

	handler  Handler
	observer Observer
	inQueue  chan message // dispatch goroutine reads messages from here

	closeCh    chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	remoteGone atomic.Bool

	Addr string
	log  *zap.Logger
}

// Dial connects to addr and returns an unstarted Session.
func Dial(ctx context.Context, addr string, opts Options, log *zap.Logger) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewSession(conn, opts, log), nil
}

// NewSession wraps an established connection. Zero option fields take
// their defaults.
func NewSession(conn net.Conn, opts Options, log *zap.Logger) *Session {
	def := DefaultOptions()
	if opts.Framing.LoggedInTimeout <= 0 {
		opts.Framing.LoggedInTimeout = def.Framing.LoggedInTimeout
	}
	if opts.Framing.PreLoginTimeout <= 0 {
		opts.Framing.PreLoginTimeout = def.Framing.PreLoginTimeout
	}
	if opts.Framing.MaxBuffer <= 0 {
		opts.Framing.MaxBuffer = def.Framing.MaxBuffer
	}
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = def.ReadBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = def.FlushInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	addr := conn.RemoteAddr().String()
	s := &Session{
		conn:    conn,
		opts:    opts,
		fr:      newFramer(opts.Framing),
		inQueue: make(chan message, opts.QueueSize),
		closeCh: make(chan struct{}),
		Addr:    addr,
		log:     log.With(zap.String("addr", addr)),
	}
	s.state.Store(int32(StatePreLogin))
	return s
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// SetLoggedIn switches framing to the logged-in prompt and timeout rules.
func (s *Session) SetLoggedIn() {
	s.mu.Lock()
	s.fr.SetLoggedIn(true)
	s.mu.Unlock()
	s.state.CompareAndSwap(int32(StatePreLogin), int32(StateLoggedIn))
}

// Start launches the reader, the timeout checker and the dispatcher.
// obs may be nil when no login handling is wanted.
func (s *Session) Start(h Handler, obs Observer) {
	s.handler = h
	s.observer = obs
	go s.readLoop()
	go s.timeoutLoop()
	go s.dispatchLoop()
}

// Send writes one command line. CRLF is appended.
func (s *Session) Send(cmd string) error {
	return s.SendRaw(encodeCommand(cmd + "\r\n"))
}

// SendRaw writes b unchanged.
func (s *Session) SendRaw(b []byte) error {
	return s.write(b, s.opts.WriteTimeout)
}

func (s *Session) write(b []byte, timeout time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	n, err := s.conn.Write(b)
	if m := s.opts.Metrics; m != nil && n > 0 {
		m.BytesOut(n)
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close sends the quit command if the server is still there, then shuts
// the session down. Safe to call more than once; no Handler callback runs
// after it returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.opts.QuitCommand != "" && !s.remoteGone.Load() {
			if err := s.write(encodeCommand(s.opts.QuitCommand+"\r\n"), quitWriteTimeout); err != nil {
				s.log.Debug("離線指令發送失敗", zap.Error(err))
			}
		}
		s.closed.Store(true)
		s.state.Store(int32(StateDisconnected))
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

// readLoop runs in its own goroutine. It strips telnet commands, decodes
// the text and feeds the framer.
func (s *Session) readLoop() {
	buf := make([]byte, s.opts.ReadBuffer)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.handleChunk(buf[:n])
		}
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.log.Info("伺服器中斷連線", zap.Error(err))
			s.remoteGone.Store(true)
			s.Close()
			if s.handler.OnDisconnect != nil {
				s.handler.OnDisconnect(err)
			}
			return
		}
	}
}

func (s *Session) handleChunk(chunk []byte) {
	if m := s.opts.Metrics; m != nil {
		m.BytesIn(len(chunk))
	}

	s.mu.Lock()
	clean, reply := s.tn.Feed(chunk)
	text, fellBack := cp437ToUTF8(clean)
	if fellBack && !s.fallback {
		s.fallback = true
		s.log.Warn("CP437 解碼失敗，改用 UTF-8")
	}
	text, s.held = splitPartialANSI(s.held + text)
	s.fr.Append(text, time.Now())
	loggedIn := s.fr.LoggedIn()
	buffer := s.fr.Buffer()
	s.mu.Unlock()

	if len(reply) > 0 {
		if err := s.SendRaw(reply); err != nil {
			s.log.Debug("telnet 協商回覆失敗", zap.Error(err))
		}
	}

	// The observer may send credentials, so it runs outside mu.
	if !loggedIn && text != "" && s.observer != nil && s.observer.Observe(buffer) {
		s.SetLoggedIn()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg, reason, ok := s.fr.TakeComplete()
	if !ok {
		return
	}
	if reason == FlushOverflow {
		s.log.Warn("緩衝區超過上限，強制送出", zap.Int("len", len(msg)))
	}
	s.deliverLocked(msg, reason)
}

// timeoutLoop flushes the buffer when the server stops sending without a prompt.
func (s *Session) timeoutLoop() {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.mu.Lock()
			if msg, ok := s.fr.TakeExpired(now); ok {
				s.deliverLocked(msg, FlushTimeout)
			}
			s.mu.Unlock()
		case <-s.closeCh:
			return
		}
	}
}

// deliverLocked queues a flushed message. The caller holds mu, so messages
// are queued in the order they were taken from the buffer. It blocks until
// the dispatcher has room or the session closes.
func (s *Session) deliverLocked(text string, reason FlushReason) {
	if m := s.opts.Metrics; m != nil {
		m.MessageFlushed(reason.String())
	}
	select {
	case s.inQueue <- message{text: text, reason: reason}:
	case <-s.closeCh:
	}
}

func (s *Session) dispatchLoop() {
	for {
		select {
		case msg := <-s.inQueue:
			if s.closed.Load() {
				return
			}
			if s.handler.OnMessage != nil {
				s.handler.OnMessage(msg.text, msg.reason)
			}
		case <-s.closeCh:
			return
		}
	}
}

// encodeCommand converts an outgoing line to CP437 and escapes IAC.
func encodeCommand(line string) []byte {
	raw, err := charmap.CodePage437.NewEncoder().Bytes([]byte(line))
	if err != nil {
		raw = []byte(line)
	}
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b == telnetIAC {
			out = append(out, telnetIAC)
		}
		out = append(out, b)
	}
	return out
}
