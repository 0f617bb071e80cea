package client

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/luma/evnsq/protocol"
	"github.com/luma/evnsq/transport"
)

var errSessionReplaced = errors.New("Session has been replaced by a newer one")

// session is one attempt at talking to nsqd. The transport calls it from a
// single goroutine, so its buffer needs no locking. Once a newer session
// starts this one goes quiet.
type session struct {
	conn *Conn
	addr string
	buf  *protocol.Buffer
	log  *zap.Logger
}

func newSession(c *Conn, addr string) *session {
	return &session{
		conn: c,
		addr: addr,
		buf:  protocol.NewBuffer(c.maxFrameSize),
		log:  c.log.With(zap.String("addr", addr)),
	}
}

// live returns true while s is the connection's current session and has
// not been torn down.
func (s *session) live() bool {
	return s.conn.current.Load() == s && s.conn.State() != StateDisconnected
}

// OnConnected starts the handshake.
func (s *session) OnConnected() {
	c := s.conn

	if !s.live() || c.State() != StateConnecting {
		s.log.Warn("Ignoring unexpected connection", zap.Stringer("state", c.State()))
		return
	}

	s.buf.Reset()

	if err := c.transport.Send(protocol.MagicV2); err != nil {
		s.abandon(fmt.Errorf("Failed to send magic: %w", err))
		return
	}

	if err := c.transport.Send(protocol.Identify(c.identifyBody).Bytes()); err != nil {
		s.abandon(fmt.Errorf("Failed to send IDENTIFY: %w", err))
		return
	}

	from, err := c.advance(s, StateIdentifying)
	if err != nil {
		s.log.Error("Failed to start identifying", zap.Error(err))
		return
	}

	c.stateChanged(s, from, StateIdentifying)
	s.log.Debug("Sent IDENTIFY", zap.ByteString("options", c.identifyBody))
}

// OnData decodes and handles every complete frame in p and whatever was left
// over from previous calls.
func (s *session) OnData(p []byte) {
	if !s.live() {
		s.log.Debug("Dropping data received after disconnecting", zap.Int("bytes", len(p)))
		return
	}

	_, _ = s.buf.Write(p)

	for {
		frame, n, err := s.buf.Next()
		if errors.Is(err, protocol.ErrNeedMore) {
			return
		}

		if err != nil {
			// Without a trustworthy size there's no way to find the next frame
			s.abandon(fmt.Errorf("Failed to decode frame: %w", err))
			return
		}

		s.handleFrame(frame)
		s.buf.Consume(n)

		if !s.live() {
			// Torn down while handling the frame, the rest of the buffer
			// belongs to a dead session
			s.buf.Reset()
			return
		}
	}
}

// OnDisconnected is called when connecting fails or the connection is lost.
func (s *session) OnDisconnected(err error) {
	from, ok := s.conn.disconnect(s, false)
	if !ok {
		s.log.Debug("Already disconnected", zap.Error(err))
		return
	}

	if from == StateConnecting {
		s.log.Error("Failed to connect to nsqd", zap.Error(err))
	} else {
		s.log.Error("Connection was closed by nsqd",
			zap.Stringer("state", from),
			zap.Error(err))
	}

	s.buf.Reset()
	s.conn.stateChanged(s, from, StateDisconnected)
}

func (s *session) handleFrame(frame protocol.Frame) {
	switch state := s.conn.State(); state {
	case StateIdentifying:
		s.handleIdentifyResponse(frame)

	case StateConnected:
		s.dispatch(frame)

	default:
		s.log.Debug("Ignoring frame",
			zap.Stringer("state", state),
			zap.Stringer("frameType", frame.Type))
	}
}

func (s *session) handleIdentifyResponse(frame protocol.Frame) {
	if frame.IsOK() {
		from, err := s.conn.advance(s, StateConnected)
		if err != nil {
			s.log.Error("Failed to finish identifying", zap.Error(err))
			return
		}

		s.log.Info("Connected to nsqd")
		s.conn.stateChanged(s, from, StateConnected)
		return
	}

	if frame.Type == protocol.FrameTypeError {
		s.abandon(fmt.Errorf("%w: %w", ErrIdentifyFailed, protocol.NewServerError(frame.Body)))
		return
	}

	s.abandon(fmt.Errorf("%w: unexpected %s frame %q", ErrIdentifyFailed, frame.Type, frame.Body))
}

// abandon gives up on the session. The transport is closed and the buffer
// dropped before anyone is told, so an observer that reconnects straight
// away starts from a clean slate.
func (s *session) abandon(err error) {
	s.log.Error("Abandoning connection", zap.Error(err))

	from, ok := s.conn.disconnect(s, true)
	s.buf.Reset()

	s.conn.reportError(s, err)

	if ok {
		s.conn.stateChanged(s, from, StateDisconnected)
	}
}

// send writes cmd unless s has been replaced, so a late frame from an old
// session can't be acked on a new one.
func (s *session) send(cmd *protocol.Command) error {
	if s.conn.current.Load() != s {
		return fmt.Errorf("Failed to send %s: %w", cmd.Name, errSessionReplaced)
	}

	return s.conn.SendCommand(cmd)
}

func (s *session) sendAck(cmd *protocol.Command) {
	if err := s.send(cmd); err != nil {
		s.log.Warn("Failed to send", zap.Stringer("command", cmd), zap.Error(err))
	}
}

var _ transport.Handler = (*session)(nil)
