package coordinator

import (
	"fmt"

	"groundcrew/internal/protocol"
)

// Conflict policy names accepted in session settings.
const (
	PolicyLastWins     = "lastWins"
	PolicyHostPriority = "hostPriority"
	PolicyVote         = "vote"
)

// ConflictPolicy reconciles two edits to the same terrain cell. It returns
// true when the incoming edit should replace the one already observed.
type ConflictPolicy interface {
	IncomingWins(existing, incoming protocol.TerrainEdit, hostID string) bool
}

// NewConflictPolicy resolves a policy name from session settings. The vote
// policy is named by the protocol but not yet specified; asking for it is an
// error rather than a silent fallback.
func NewConflictPolicy(name string) (ConflictPolicy, error) {
	switch name {
	case "", PolicyLastWins:
		return lastWins{}, nil
	case PolicyHostPriority:
		return hostPriority{}, nil
	case PolicyVote:
		return nil, fmt.Errorf("conflict policy %q is not implemented", name)
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", name)
	}
}

// lastWins: the most recent edit at a cell wins; equal timestamps favor the
// incoming edit, matching last-write-observed-wins channel semantics.
type lastWins struct{}

func (lastWins) IncomingWins(existing, incoming protocol.TerrainEdit, hostID string) bool {
	return incoming.AtUnixMs >= existing.AtUnixMs
}

// hostPriority: like lastWins, except the host's edit wins ties.
type hostPriority struct{}

func (hostPriority) IncomingWins(existing, incoming protocol.TerrainEdit, hostID string) bool {
	if incoming.AtUnixMs == existing.AtUnixMs {
		return incoming.PlayerID == hostID
	}
	return incoming.AtUnixMs > existing.AtUnixMs
}
