package protocol

// hello (client -> relay)
type HelloMsg struct {
	PlayerName string `json:"player_name"`
	MaxQueue   int    `json:"max_queue,omitempty"`
}

// welcome (relay -> client): the channel-assigned identity used for echo
// suppression from then on.
type WelcomeMsg struct {
	ClientID string `json:"client_id"`
}

type CreateSessionMsg struct {
	Name       string       `json:"name"`
	MaxPlayers int          `json:"max_players"`
	IsPublic   bool         `json:"is_public"`
	Settings   SettingsInfo `json:"settings"`
}

type JoinSessionMsg struct {
	SessionID  string `json:"session_id"`
	PlayerName string `json:"player_name"`
}

type SettingsInfo struct {
	AllowSpectators   bool   `json:"allow_spectators"`
	ChatEnabled       bool   `json:"chat_enabled"`
	ConflictPolicy    string `json:"conflict_policy"`
	PauseOnDisconnect bool   `json:"pause_on_disconnect"`
}

type SessionInfo struct {
	SessionID  string       `json:"session_id"`
	Name       string       `json:"name"`
	HostID     string       `json:"host_id"`
	MaxPlayers int          `json:"max_players"`
	IsPublic   bool         `json:"is_public"`
	State      string       `json:"state"`
	Settings   SettingsInfo `json:"settings"`
	Players    []PlayerInfo `json:"players,omitempty"`
}

type PlayerInfo struct {
	PlayerID string     `json:"player_id"`
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	Status   string     `json:"status"`
	JoinedAt int64      `json:"joined_at_unix_ms"`
	Cursor   CursorInfo `json:"cursor"`
}

type CursorInfo struct {
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Visible bool   `json:"visible"`
	Tool    string `json:"tool,omitempty"`
}

type CursorMovedMsg struct {
	PlayerID string     `json:"player_id"`
	Cursor   CursorInfo `json:"cursor"`
}

// TerrainEdit is the unit of the shared edit stream. Height deltas are signed:
// cut is negative, fill positive.
type TerrainEdit struct {
	PlayerID    string  `json:"player_id"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	HeightDelta float64 `json:"height_delta"`
	Tool        string  `json:"tool"`
	AtUnixMs    int64   `json:"at_unix_ms"`
	SessionID   string  `json:"session_id"`
}

type TerrainResetMsg struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

type ChatMsg struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Text       string `json:"text"`
	AtUnixMs   int64  `json:"at_unix_ms"`
}

type ObjectiveInfo struct {
	ObjectiveID string             `json:"objective_id"`
	Kind        string             `json:"kind"`
	Description string             `json:"description"`
	TargetType  string             `json:"target_type"`
	Params      map[string]float64 `json:"params,omitempty"`
	Tolerance   float64            `json:"tolerance,omitempty"`
	Progress    map[string]float64 `json:"progress,omitempty"`
	Completed   bool               `json:"completed"`
	CompletedBy string             `json:"completed_by,omitempty"`
}

type ObjectiveDoneMsg struct {
	Objective ObjectiveInfo `json:"objective"`
	PlayerID  string        `json:"player_id,omitempty"`
}

type ErrorMsg struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type PermissionDeniedMsg struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}
