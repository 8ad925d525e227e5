package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Session membership.
	ErrSessionFull     = "E_SESSION_FULL"
	ErrSessionUnknown  = "E_SESSION_UNKNOWN"
	ErrSessionTerminal = "E_SESSION_TERMINAL"

	// Command layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrNoSession    = "E_NO_SESSION"
	ErrConflict     = "E_CONFLICT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrSessionFull:     {},
	ErrSessionUnknown:  {},
	ErrSessionTerminal: {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrNoSession:       {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
