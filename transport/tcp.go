package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("Transport is not connected")
	ErrClosed       = errors.New("Transport has been closed")
)

// Handler receives the events of a single session. All three methods are
// called from the same goroutine, one at a time, in the order the events
// happened. OnDisconnected is the last call a session makes.
type Handler interface {
	// OnConnected is called once the TCP connection is established.
	OnConnected()

	// OnData is called with each chunk of bytes read from the connection. p
	// is not reused by the transport.
	OnData(p []byte)

	// OnDisconnected is called if connecting fails or once an established
	// connection is lost. A session that is closed, by Close or by a newer
	// Connect, before it notices the loss never calls it.
	OnDisconnected(err error)
}

// TCP is a client transport that runs one session at a time.
type TCP struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	session *session
}

func NewTCP(options Options) *TCP {
	options.setDefaults()

	return &TCP{
		opts: options,
		log:  options.Log,
	}
}

// Connect starts connecting to addr in the background and reports what
// happens to h. Any previous session is closed first.
func (t *TCP) Connect(addr string, h Handler) {
	t.mu.Lock()
	if t.session != nil {
		t.session.close()
	}

	s := newSession(addr, h, t.opts, t.log.With(zap.String("addr", addr)))
	t.session = s
	t.mu.Unlock()

	go s.run()
}

// Send queues data to be written to the current session. Writes happen in
// the order Send is called. It is safe to call from any goroutine.
func (t *TCP) Send(data []byte) error {
	t.mu.Lock()
	s := t.session
	t.mu.Unlock()

	if s == nil {
		return ErrNotConnected
	}

	return s.send(data)
}

// Close tears down the current session. It does not wait for the session's
// goroutines to exit, so it may be called from inside a Handler.
func (t *TCP) Close() error {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.mu.Unlock()

	if s == nil {
		return nil
	}

	return s.close()
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	addr string
	h    Handler
	opts Options

	// closed is claimed by whichever of close and a lost connection gets
	// there first
	closed atomic.Bool

	connMu sync.Mutex
	conn   net.Conn

	writeQueue chan []byte

	log *zap.Logger
}

func newSession(addr string, h Handler, opts Options, log *zap.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())

	return &session{
		ctx:        ctx,
		cancel:     cancel,
		addr:       addr,
		h:          h,
		opts:       opts,
		writeQueue: make(chan []byte, opts.WriteQueueSize),
		log:        log,
	}
}

// run is the session's event loop, every Handler call happens here.
func (s *session) run() {
	dialer := net.Dialer{Timeout: s.opts.DialTimeout}

	conn, err := dialer.DialContext(s.ctx, "tcp", s.addr)
	if err != nil {
		if s.claimClose() {
			s.cancel()
			s.h.OnDisconnected(fmt.Errorf("Failed to connect to %s: %w", s.addr, err))
		}
		return
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	if !s.isRunning() {
		// Closed while we were dialing
		conn.Close()
		return
	}

	reads := make(chan []byte)
	readErr := make(chan error, 1)

	go s.readLoop(conn, reads, readErr)
	go s.writeLoop(conn)

	s.h.OnConnected()

	for {
		select {
		case <-s.ctx.Done():
			return

		case data := <-reads:
			s.h.OnData(data)

		case err := <-readErr:
			if !s.claimClose() {
				return
			}

			s.shutdown()
			s.h.OnDisconnected(err)
			return
		}
	}
}

func (s *session) readLoop(conn net.Conn, reads chan<- []byte, readErr chan<- error) {
	log := s.log.Named("readLoop")

	defer log.Debug("Read loop exited")

	for {
		buf := make([]byte, s.opts.ReadBufferSize)

		n, err := conn.Read(buf)
		if n > 0 {
			if s.opts.Trace {
				log.Debug("READ", zap.Binary("data", buf[:n]))
			}

			select {
			case reads <- buf[:n]:
			case <-s.ctx.Done():
				return
			}
		}

		if err != nil {
			readErr <- err
			return
		}
	}
}

func (s *session) writeLoop(conn net.Conn) {
	log := s.log.Named("writeLoop")

	defer log.Debug("Write loop exited")

	for {
		select {
		case <-s.ctx.Done():
			return

		case data := <-s.writeQueue:
			if s.opts.Trace {
				log.Debug("WRITE", zap.Binary("data", data))
			}

			if _, err := conn.Write(data); err != nil {
				log.Error("Failed to write from write queue", zap.Error(err))

				// The read loop will notice the connection is gone and
				// report it
				conn.Close()
				return
			}
		}
	}
}

func (s *session) send(data []byte) error {
	if !s.isRunning() {
		return ErrClosed
	}

	select {
	case s.writeQueue <- data:
		return nil

	case <-s.ctx.Done():
		return ErrClosed
	}
}

// claimClose returns true for the first caller only.
func (s *session) claimClose() bool {
	return s.closed.CompareAndSwap(false, true)
}

func (s *session) close() error {
	s.claimClose()
	return s.shutdown()
}

// shutdown stops the loops and closes the socket.
func (s *session) shutdown() error {
	s.cancel()

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil

	if errors.Is(err, net.ErrClosed) {
		// The write loop got there first
		return nil
	}

	return err
}

// isRunning returns true if close has not been called
func (s *session) isRunning() bool {
	select {
	case <-s.ctx.Done():
		return false

	default:
		return true
	}
}
