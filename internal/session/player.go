package session

import "time"

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleSpectator   Role = "spectator"
	RolePending     Role = "pending"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusIdle         Status = "idle"
	StatusDisconnected Status = "disconnected"
	StatusBusy         Status = "busy"
)

type Cursor struct {
	X       int
	Y       int
	Visible bool
	Tool    string
}

// Permissions is the capability set a role grants. Assigned on join and on
// role change, never edited piecemeal.
type Permissions struct {
	ModifyTerrain    bool
	Invite           bool
	Kick             bool
	ChangeAssignment bool
	ResetTerrain     bool
	ManageSession    bool
}

func PermissionsForRole(r Role) Permissions {
	switch r {
	case RoleHost:
		return Permissions{
			ModifyTerrain:    true,
			Invite:           true,
			Kick:             true,
			ChangeAssignment: true,
			ResetTerrain:     true,
			ManageSession:    true,
		}
	case RoleParticipant:
		return Permissions{ModifyTerrain: true, Invite: true}
	default:
		// Spectators and pending players act on nothing.
		return Permissions{}
	}
}

// Stats accumulates per-player work over the session lifetime. Values only
// ever grow.
type Stats struct {
	VolumeMoved       float64
	ToolUsage         map[string]int
	SessionMinutes    float64
	ContributionShare float64
}

type Player struct {
	ID           string
	Name         string
	Role         Role
	JoinedAt     time.Time
	LastActiveAt time.Time
	Cursor       Cursor
	Status       Status
	Perms        Permissions
	Stats        Stats
}

func NewPlayer(id, name string, role Role, now time.Time) *Player {
	if id == "" {
		id = NewID()
	}
	return &Player{
		ID:           id,
		Name:         name,
		Role:         role,
		JoinedAt:     now,
		LastActiveAt: now,
		Status:       StatusActive,
		Perms:        PermissionsForRole(role),
		Stats:        Stats{ToolUsage: make(map[string]int)},
	}
}
