package client

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/luma/evnsq/protocol"
)

// dispatch routes a frame received while connected.
func (s *session) dispatch(frame protocol.Frame) {
	c := s.conn

	switch frame.Type {
	case protocol.FrameTypeResponse:
		if frame.IsHeartbeat() {
			s.log.Debug("Received heartbeat")
			c.observer.HeartbeatReceived(s.addr)

			// nsqd drops us after two unanswered heartbeats
			if err := s.send(protocol.Nop()); err != nil {
				s.log.Error("Failed to answer heartbeat", zap.Error(err))
			}
			return
		}

		s.handleResponse(frame.Body)

	case protocol.FrameTypeMessage:
		msg, err := protocol.DecodeMessage(frame.Body)
		if err != nil {
			s.log.Error("Failed to decode message", zap.Error(err))
			c.reportError(s, err)
			return
		}

		outcome := s.handleMessage(msg)
		if outcome == OutcomeSuccess {
			s.sendAck(protocol.Finish(msg.ID))
		} else {
			s.sendAck(protocol.Requeue(msg.ID, 0))
		}

		c.observer.MessageHandled(s.addr, msg, outcome)

	case protocol.FrameTypeError:
		serr := protocol.NewServerError(frame.Body)
		s.log.Error("Received error from nsqd",
			zap.String("code", serr.Code()),
			zap.Error(serr))

		c.reportError(s, serr)

	default:
		s.log.Warn("Skipping frame of unknown type",
			zap.Stringer("frameType", frame.Type),
			zap.Int("bytes", len(frame.Body)))

		c.reportError(s, fmt.Errorf("Failed to dispatch %s frame: %w", frame.Type, protocol.ErrUnknownFrameType))
	}
}

func (s *session) handleResponse(body []byte) {
	c := s.conn

	if bytes.Equal(body, protocol.ResponseCloseWait) {
		s.log.Info("nsqd acknowledged close, no more messages will be sent")
	} else {
		s.log.Debug("Received response", zap.ByteString("body", body))
	}

	if c.onResponse != nil {
		resp := make([]byte, len(body))
		copy(resp, body)
		c.onResponse(resp)
	}
}

// handleMessage runs the handler, a panicking or missing handler requeues
// the message.
func (s *session) handleMessage(msg *protocol.Message) (outcome Outcome) {
	c := s.conn

	if c.handler == nil {
		s.log.Warn("No handler registered, requeueing", zap.String("id", msg.ID.Hex()))
		return OutcomeRequeue
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Handler panicked, requeueing",
				zap.String("id", msg.ID.Hex()),
				zap.Any("panic", r))
			outcome = OutcomeRequeue
		}
	}()

	return c.handler.HandleMessage(msg)
}
