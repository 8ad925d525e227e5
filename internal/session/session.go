package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Session is the canonical in-memory record of one running assignment and its
// roster. It is owned by a single goroutine (the coordinator loop); none of
// its methods are safe for concurrent use.
type Session struct {
	ID     string
	Name   string
	HostID string

	MaxPlayers int
	Public     bool
	Settings   Settings

	players    map[string]*Player
	spectators map[string]struct{}

	state State

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time

	AssignmentID string
	LevelID      string

	// Live score table for competitive play, keyed by player id.
	LiveScores map[string]float64

	chat    []ChatMessage
	chatMax int
}

type Settings struct {
	AllowSpectators   bool
	ChatEnabled       bool
	ConflictPolicy    string
	PauseOnDisconnect bool
}

type Config struct {
	Name       string
	MaxPlayers int
	Public     bool
	Settings   Settings
	HostID     string
	HostName   string
	ChatMax    int
	Now        time.Time
}

func New(cfg Config) (*Session, error) {
	if cfg.MaxPlayers <= 0 {
		return nil, fmt.Errorf("max players must be positive, got %d", cfg.MaxPlayers)
	}
	if cfg.HostID == "" {
		cfg.HostID = NewID()
	}
	if cfg.ChatMax <= 0 {
		cfg.ChatMax = 256
	}
	s := &Session{
		ID:         NewID(),
		Name:       cfg.Name,
		HostID:     cfg.HostID,
		MaxPlayers: cfg.MaxPlayers,
		Public:     cfg.Public,
		Settings:   cfg.Settings,
		players:    make(map[string]*Player),
		spectators: make(map[string]struct{}),
		state:      StateWaiting,
		CreatedAt:  cfg.Now,
		LiveScores: make(map[string]float64),
		chatMax:    cfg.ChatMax,
	}
	host := NewPlayer(cfg.HostID, cfg.HostName, RoleHost, cfg.Now)
	s.players[host.ID] = host
	return s, nil
}

func NewID() string { return uuid.NewString() }

// ApplyPlayerJoined is idempotent with respect to duplicate deliveries: a
// join for an already-present id replaces the record. A genuinely new player
// is rejected once the roster is full.
func (s *Session) ApplyPlayerJoined(p Player) error {
	if s.Terminal() {
		return ErrTerminal
	}
	if _, present := s.players[p.ID]; !present && len(s.players) >= s.MaxPlayers {
		return ErrSessionFull
	}
	cp := p
	if cp.Stats.ToolUsage == nil {
		cp.Stats.ToolUsage = make(map[string]int)
	}
	s.players[cp.ID] = &cp
	s.ensureSingleHost()
	return nil
}

// ApplyPlayerLeft removes the player; leaving while not present is a no-op.
// If the host leaves, the earliest-joined remaining player is promoted so the
// single-host invariant holds.
func (s *Session) ApplyPlayerLeft(playerID string) (Player, bool) {
	p, ok := s.players[playerID]
	if !ok {
		return Player{}, false
	}
	left := *p
	delete(s.players, playerID)
	delete(s.LiveScores, playerID)
	if playerID == s.HostID {
		s.promoteHost()
	}
	return left, true
}

func (s *Session) ApplyPlayerUpdated(p Player) error {
	if s.Terminal() {
		return ErrTerminal
	}
	cur, ok := s.players[p.ID]
	if !ok {
		return ErrPlayerNotFound
	}
	// Last write observed wins for position/status-style fields; stats only
	// ever accumulate and are owned locally, so keep the larger values. Role
	// replicates too (the relay validates role changes against the sender's
	// permissions), but the permission matrix is rederived here rather than
	// trusted from the wire.
	stats := cur.Stats
	*cur = p
	cur.Stats = mergeStats(stats, p.Stats)
	if cur.ID == s.HostID && cur.Role != RoleHost {
		// The host is only ever demoted by a transfer naming its successor.
		cur.Role = RoleHost
	}
	cur.Perms = PermissionsForRole(cur.Role)
	if cur.Role == RoleHost && s.HostID != cur.ID {
		if prev, ok := s.players[s.HostID]; ok {
			prev.Role = RoleParticipant
			prev.Perms = PermissionsForRole(RoleParticipant)
		}
		s.HostID = cur.ID
	}
	return nil
}

// SetRole changes a player's role and reassigns permissions. Only a caller
// holding manage-session privileges may do this.
func (s *Session) SetRole(callerID, targetID string, role Role) error {
	caller, ok := s.players[callerID]
	if !ok || !caller.Perms.ManageSession {
		return ErrNoPermission
	}
	target, ok := s.players[targetID]
	if !ok {
		return ErrPlayerNotFound
	}
	if role == RoleHost {
		// Transferring host demotes the current one.
		if prev, ok := s.players[s.HostID]; ok && prev.ID != targetID {
			prev.Role = RoleParticipant
			prev.Perms = PermissionsForRole(RoleParticipant)
		}
		s.HostID = targetID
	} else if target.ID == s.HostID {
		return ErrNoPermission
	}
	target.Role = role
	target.Perms = PermissionsForRole(role)
	return nil
}

func (s *Session) FindPlayer(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

func (s *Session) Host() *Player {
	return s.players[s.HostID]
}

func (s *Session) PlayerCount() int { return len(s.players) }

// Players returns the roster ordered by join time, then id.
func (s *Session) Players() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Session) PlayerIDs() []string {
	ps := s.Players()
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

func (s *Session) AddSpectator(id string) error {
	if !s.Settings.AllowSpectators {
		return ErrNoPermission
	}
	s.spectators[id] = struct{}{}
	return nil
}

func (s *Session) RemoveSpectator(id string) { delete(s.spectators, id) }

func (s *Session) promoteHost() {
	ps := s.Players()
	if len(ps) == 0 {
		s.HostID = ""
		return
	}
	next := ps[0]
	next.Role = RoleHost
	next.Perms = PermissionsForRole(RoleHost)
	s.HostID = next.ID
}

// ensureSingleHost repairs the invariant after a replacing re-join: at most
// one player carries the host role, and it is the one HostID points at.
func (s *Session) ensureSingleHost() {
	for id, p := range s.players {
		if p.Role == RoleHost && id != s.HostID {
			p.Role = RoleParticipant
			p.Perms = PermissionsForRole(RoleParticipant)
		}
	}
	if h, ok := s.players[s.HostID]; ok && h.Role != RoleHost {
		h.Role = RoleHost
		h.Perms = PermissionsForRole(RoleHost)
	}
}

func mergeStats(old, incoming Stats) Stats {
	out := old
	if incoming.VolumeMoved > out.VolumeMoved {
		out.VolumeMoved = incoming.VolumeMoved
	}
	if incoming.SessionMinutes > out.SessionMinutes {
		out.SessionMinutes = incoming.SessionMinutes
	}
	if incoming.ContributionShare > 0 {
		out.ContributionShare = incoming.ContributionShare
	}
	if out.ToolUsage == nil {
		out.ToolUsage = make(map[string]int)
	}
	for tool, n := range incoming.ToolUsage {
		if n > out.ToolUsage[tool] {
			out.ToolUsage[tool] = n
		}
	}
	return out
}
