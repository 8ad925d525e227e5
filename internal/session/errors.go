package session

import (
	"errors"
	"fmt"
)

var (
	ErrSessionFull    = errors.New("session full")
	ErrNoPermission   = errors.New("no permission")
	ErrPlayerNotFound = errors.New("player not found")
	ErrTerminal       = errors.New("session is terminal")
)

// BadTransitionError reports an attempted state change the machine forbids.
type BadTransitionError struct {
	From, To State
}

func (e *BadTransitionError) Error() string {
	return fmt.Sprintf("bad transition %s -> %s", e.From, e.To)
}

func transitionErr(from, to State) error {
	return &BadTransitionError{From: from, To: to}
}
