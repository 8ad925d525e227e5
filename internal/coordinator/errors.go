package coordinator

import "errors"

var (
	ErrNoSession     = errors.New("no session")
	ErrNotConnected  = errors.New("not connected")
	ErrInSession     = errors.New("already in a session")
	ErrNoAssignment  = errors.New("no active assignment")
	ErrChatDisabled  = errors.New("chat is disabled for this session")
	ErrNoCompetition = errors.New("no competitive level in progress")
)
