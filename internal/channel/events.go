package channel

import "groundcrew/internal/protocol"

// Event is the closed set of typed domain events the adapter can deliver to
// the coordinator loop.
type Event interface{ isEvent() }

type Connected struct {
	ClientID string
}

type Disconnected struct{}

type SessionCreated struct {
	Session protocol.SessionInfo
}

type SessionJoined struct {
	Session protocol.SessionInfo
}

type SessionUpdated struct {
	Session protocol.SessionInfo
}

type PlayerJoined struct {
	Player protocol.PlayerInfo
}

type PlayerLeft struct {
	PlayerID string
}

type PlayerUpdated struct {
	Player protocol.PlayerInfo
}

type CursorMoved struct {
	PlayerID string
	Cursor   protocol.CursorInfo
}

type TerrainModified struct {
	Edit protocol.TerrainEdit
}

type TerrainReset struct {
	PlayerID   string
	PlayerName string
}

type ChatReceived struct {
	Message protocol.ChatMsg
}

type ObjectiveUpdated struct {
	Objective protocol.ObjectiveInfo
}

type ObjectiveCompleted struct {
	Objective protocol.ObjectiveInfo
	PlayerID  string
}

type SettingsChanged struct {
	Settings protocol.SettingsInfo
}

type ErrorReceived struct {
	Message string
	Code    string
}

type PermissionDenied struct {
	Action string
	Reason string
}

func (Connected) isEvent()          {}
func (Disconnected) isEvent()       {}
func (SessionCreated) isEvent()     {}
func (SessionJoined) isEvent()      {}
func (SessionUpdated) isEvent()     {}
func (PlayerJoined) isEvent()       {}
func (PlayerLeft) isEvent()         {}
func (PlayerUpdated) isEvent()      {}
func (CursorMoved) isEvent()        {}
func (TerrainModified) isEvent()    {}
func (TerrainReset) isEvent()       {}
func (ChatReceived) isEvent()       {}
func (ObjectiveUpdated) isEvent()   {}
func (ObjectiveCompleted) isEvent() {}
func (SettingsChanged) isEvent()    {}
func (ErrorReceived) isEvent()      {}
func (PermissionDenied) isEvent()   {}
