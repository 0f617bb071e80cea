package client

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrInvalidTransition = errors.New("Invalid connection state transition")

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdentifying
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdentifying:
		return "identifying"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// transitions lists every state change a connection may make. Progress is
// strictly forward, the only way back is to drop to disconnected.
var transitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateIdentifying, StateDisconnected},
	StateIdentifying:  {StateConnected, StateDisconnected},
	StateConnected:    {StateDisconnected},
}

// CanTransitionTo returns true if moving from s to next is allowed.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// stateValue can be read from any goroutine. Conn only transitions it while
// holding its mutex, CompareAndSwap catches anything that slips past.
type stateValue struct {
	v atomic.Int32
}

func (s *stateValue) Load() State {
	return State(s.v.Load())
}

func (s *stateValue) transition(from State, to State) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("Failed to move from %s to %s: %w", from, to, ErrInvalidTransition)
	}

	if !s.v.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("Failed to move from %s to %s, state is now %s: %w",
			from, to, s.Load(), ErrInvalidTransition)
	}

	return nil
}
