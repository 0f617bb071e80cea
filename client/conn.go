package client

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/transport"
)

var (
	ErrNotConnected   = errors.New("Connection is not connected to nsqd")
	ErrIdentifyFailed = errors.New("nsqd did not accept IDENTIFY")
	ErrNoTransport    = errors.New("A transport is required")
)

// Conn is a consumer's connection to a single nsqd.
//
// Each call to ConnectToNSQD starts a new session with its own read buffer.
// The transport reports to that session, so events from an earlier session
// never reach a later one. State, Addr, ConnectToNSQD, Close and the command
// methods may be called from any goroutine.
type Conn struct {
	// mu serialises state changes with starting and tearing down the
	// transport session
	mu      sync.Mutex
	state   stateValue
	current atomic.Pointer[session]

	identifyBody []byte
	transport    Transport
	maxFrameSize int

	handler    Handler
	onError    ErrorHandler
	onResponse ResponseHandler
	observer   Observer

	log *zap.Logger
}

func New(options Options) (*Conn, error) {
	options.setDefaults()

	if options.Transport == nil {
		return nil, ErrNoTransport
	}

	body, err := options.Identify.Marshal()
	if err != nil {
		return nil, fmt.Errorf("Failed to serialise IDENTIFY options: %w", err)
	}

	return &Conn{
		identifyBody: body,
		transport:    options.Transport,
		maxFrameSize: options.MaxFrameSize,
		handler:      options.Handler,
		onError:      options.OnError,
		onResponse:   options.OnResponse,
		observer:     options.Observer,
		log:          options.Log,
	}, nil
}

func (c *Conn) State() State {
	return c.state.Load()
}

// Addr is the nsqd of the most recent session, empty before the first
// ConnectToNSQD.
func (c *Conn) Addr() string {
	if s := c.current.Load(); s != nil {
		return s.addr
	}

	return ""
}

// ConnectToNSQD starts connecting to the nsqd at addr. It only does anything
// while disconnected, the outcome is visible through State and the
// callbacks.
func (c *Conn) ConnectToNSQD(addr string) {
	s := newSession(c, addr)

	c.mu.Lock()
	from := c.state.Load()
	if err := c.state.transition(from, StateConnecting); err != nil {
		c.mu.Unlock()
		c.log.Warn("Ignoring connect request", zap.String("to", addr), zap.Error(err))
		return
	}

	c.current.Store(s)
	c.mu.Unlock()

	s.log.Info("Connecting to nsqd")
	c.stateChanged(s, from, StateConnecting)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != s || c.state.Load() != StateConnecting {
		// Closed before the transport was asked to dial
		return
	}

	c.transport.Connect(addr, s)
}

// Close drops the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	s := c.current.Load()
	from := c.state.Load()

	if s == nil || c.state.transition(from, StateDisconnected) != nil {
		// Never connected, or something else disconnected us first
		c.mu.Unlock()
		return nil
	}

	err := c.transport.Close()
	c.mu.Unlock()

	s.log.Info("Closed connection")
	c.stateChanged(s, from, StateDisconnected)

	return err
}

// OnConnected passes the event to the current session. Transports are given
// the session itself by ConnectToNSQD, these exist to drive a Conn by hand.
func (c *Conn) OnConnected() {
	if s := c.current.Load(); s != nil {
		s.OnConnected()
	}
}

// OnData passes p to the current session.
func (c *Conn) OnData(p []byte) {
	if s := c.current.Load(); s != nil {
		s.OnData(p)
	}
}

// OnDisconnected passes the event to the current session.
func (c *Conn) OnDisconnected(err error) {
	if s := c.current.Load(); s != nil {
		s.OnDisconnected(err)
	}
}

// advance moves s's connection forward. It fails if s has been replaced by
// a newer session.
func (c *Conn) advance(s *session, to State) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != s {
		return StateDisconnected, errSessionReplaced
	}

	from := c.state.Load()
	return from, c.state.transition(from, to)
}

// disconnect moves s's connection to disconnected, closing the transport
// first if asked. ok is false if s was already disconnected or replaced.
// Observers are not told, the caller does that once it has finished
// tearing down.
func (c *Conn) disconnect(s *session, closeTransport bool) (from State, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != s {
		return StateDisconnected, false
	}

	from = c.state.Load()
	if err := c.state.transition(from, StateDisconnected); err != nil {
		return from, false
	}

	if closeTransport {
		if err := c.transport.Close(); err != nil {
			s.log.Warn("Transport did not close cleanly", zap.Error(err))
		}
	}

	return from, true
}

func (c *Conn) stateChanged(s *session, from State, to State) {
	s.log.Debug("State changed", zap.Stringer("from", from), zap.Stringer("to", to))
	c.observer.StateChanged(s.addr, from, to)
}

func (c *Conn) reportError(s *session, err error) {
	c.observer.ErrorReceived(s.addr, err)

	if c.onError != nil {
		c.onError(err)
	}
}

// Finish tells nsqd the message with id was handled. nsqd doesn't reply, so
// neither does Finish. Failures are logged.
func (c *Conn) Finish(id protocol.MessageID) {
	c.sendAck(protocol.Finish(id))
}

// Requeue asks nsqd to redeliver the message with id after delay. Like
// Finish there is no reply.
func (c *Conn) Requeue(id protocol.MessageID, delay time.Duration) {
	c.sendAck(protocol.Requeue(id, delay))
}

func (c *Conn) sendAck(cmd *protocol.Command) {
	if err := c.SendCommand(cmd); err != nil {
		c.log.Warn("Failed to send", zap.String("addr", c.Addr()), zap.Stringer("command", cmd), zap.Error(err))
	}
}

// Touch resets nsqd's timeout for an in-flight message.
func (c *Conn) Touch(id protocol.MessageID) error {
	return c.SendCommand(protocol.Touch(id))
}

func (c *Conn) Subscribe(topic string, channel string) error {
	return c.SendCommand(protocol.Subscribe(topic, channel))
}

// Ready tells nsqd how many messages it may have in flight to us. Nothing
// is delivered until this is called with a count above zero.
func (c *Conn) Ready(count int) error {
	return c.SendCommand(protocol.Ready(count))
}

func (c *Conn) Publish(topic string, body []byte) error {
	return c.SendCommand(protocol.Publish(topic, body))
}

func (c *Conn) MultiPublish(topic string, bodies [][]byte) error {
	return c.SendCommand(protocol.MultiPublish(topic, bodies))
}

// StartClose asks nsqd to stop sending messages. It replies CLOSE_WAIT.
func (c *Conn) StartClose() error {
	return c.SendCommand(protocol.StartClose())
}

// SendCommand writes cmd to nsqd. Only valid once connected.
func (c *Conn) SendCommand(cmd *protocol.Command) error {
	if state := c.State(); state != StateConnected {
		return fmt.Errorf("Failed to send %s while %s: %w", cmd.Name, state, ErrNotConnected)
	}

	return c.transport.Send(cmd.Bytes())
}

var _ transport.Handler = (*Conn)(nil)
