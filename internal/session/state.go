package session

import "time"

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

func (s *Session) State() State { return s.state }

// Terminal reports whether the session accepts no further mutation.
func (s *Session) Terminal() bool {
	return s.state == StateCompleted || s.state == StateCancelled
}

// Start moves waiting -> active. Only the host may start the assignment.
func (s *Session) Start(callerID string, now time.Time) error {
	caller, ok := s.players[callerID]
	if !ok || !caller.Perms.ChangeAssignment {
		return ErrNoPermission
	}
	if s.state != StateWaiting {
		return transitionErr(s.state, StateActive)
	}
	s.state = StateActive
	s.StartedAt = now
	return nil
}

// Pause moves active -> paused (explicit host pause, or the disconnect
// policy acting on the caller's behalf).
func (s *Session) Pause() error {
	if s.state != StateActive {
		return transitionErr(s.state, StatePaused)
	}
	s.state = StatePaused
	return nil
}

// Resume moves paused -> active.
func (s *Session) Resume() error {
	if s.state != StatePaused {
		return transitionErr(s.state, StateActive)
	}
	s.state = StateActive
	return nil
}

// Complete is reachable only from active, and only the completion evaluator
// calls it. Terminal.
func (s *Session) Complete(now time.Time) error {
	if s.state != StateActive {
		return transitionErr(s.state, StateCompleted)
	}
	s.state = StateCompleted
	s.EndedAt = now
	return nil
}

// Cancel is terminal and reachable from any non-terminal state.
func (s *Session) Cancel(now time.Time) error {
	if s.Terminal() {
		return ErrTerminal
	}
	s.state = StateCancelled
	s.EndedAt = now
	return nil
}
