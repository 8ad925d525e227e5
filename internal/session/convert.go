package session

import (
	"time"

	"groundcrew/internal/protocol"
)

// Wire conversions. The relay and the coordinator both mirror sessions
// through protocol.SessionInfo, so the mapping lives here once.

func (s *Session) ToInfo() protocol.SessionInfo {
	info := protocol.SessionInfo{
		SessionID:  s.ID,
		Name:       s.Name,
		HostID:     s.HostID,
		MaxPlayers: s.MaxPlayers,
		IsPublic:   s.Public,
		State:      string(s.state),
		Settings:   SettingsToInfo(s.Settings),
	}
	for _, p := range s.Players() {
		info.Players = append(info.Players, PlayerToInfo(*p))
	}
	return info
}

// FromInfo builds a local mirror of a session owned elsewhere, preserving the
// authoritative session id.
func FromInfo(info protocol.SessionInfo, chatMax int, now time.Time) *Session {
	if chatMax <= 0 {
		chatMax = 256
	}
	s := &Session{
		ID:         info.SessionID,
		Name:       info.Name,
		HostID:     info.HostID,
		MaxPlayers: info.MaxPlayers,
		Public:     info.IsPublic,
		Settings:   SettingsFromInfo(info.Settings),
		players:    make(map[string]*Player),
		spectators: make(map[string]struct{}),
		state:      State(info.State),
		CreatedAt:  now,
		LiveScores: make(map[string]float64),
		chatMax:    chatMax,
	}
	if s.state == "" {
		s.state = StateWaiting
	}
	for _, pi := range info.Players {
		p := PlayerFromInfo(pi)
		s.players[p.ID] = &p
	}
	return s
}

func PlayerToInfo(p Player) protocol.PlayerInfo {
	return protocol.PlayerInfo{
		PlayerID: p.ID,
		Name:     p.Name,
		Role:     string(p.Role),
		Status:   string(p.Status),
		JoinedAt: p.JoinedAt.UnixMilli(),
		Cursor: protocol.CursorInfo{
			X:       p.Cursor.X,
			Y:       p.Cursor.Y,
			Visible: p.Cursor.Visible,
			Tool:    p.Cursor.Tool,
		},
	}
}

func PlayerFromInfo(pi protocol.PlayerInfo) Player {
	role := Role(pi.Role)
	if role == "" {
		role = RoleParticipant
	}
	status := Status(pi.Status)
	if status == "" {
		status = StatusActive
	}
	return Player{
		ID:           pi.PlayerID,
		Name:         pi.Name,
		Role:         role,
		JoinedAt:     time.UnixMilli(pi.JoinedAt),
		LastActiveAt: time.UnixMilli(pi.JoinedAt),
		Status:       status,
		Cursor: Cursor{
			X:       pi.Cursor.X,
			Y:       pi.Cursor.Y,
			Visible: pi.Cursor.Visible,
			Tool:    pi.Cursor.Tool,
		},
		Perms: PermissionsForRole(role),
		Stats: Stats{ToolUsage: make(map[string]int)},
	}
}

func SettingsToInfo(s Settings) protocol.SettingsInfo {
	return protocol.SettingsInfo{
		AllowSpectators:   s.AllowSpectators,
		ChatEnabled:       s.ChatEnabled,
		ConflictPolicy:    s.ConflictPolicy,
		PauseOnDisconnect: s.PauseOnDisconnect,
	}
}

func SettingsFromInfo(si protocol.SettingsInfo) Settings {
	return Settings{
		AllowSpectators:   si.AllowSpectators,
		ChatEnabled:       si.ChatEnabled,
		ConflictPolicy:    si.ConflictPolicy,
		PauseOnDisconnect: si.PauseOnDisconnect,
	}
}
