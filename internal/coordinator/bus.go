package coordinator

import (
	"groundcrew/internal/protocol"
	"groundcrew/internal/scoring"
	"groundcrew/internal/session"
)

// Notification is the closed set of events the coordinator publishes to the
// presentation layer.
type Notification interface{ isNotification() }

type ConnectionChanged struct {
	Connected bool
	ClientID  string
}

type SessionCreated struct{ SessionID string }
type SessionJoined struct{ SessionID string }
type SessionUpdated struct{ SessionID string }

type PlayerJoined struct{ Player session.Player }
type PlayerLeft struct{ PlayerID string }
type PlayerUpdated struct{ Player session.Player }

type TerrainModified struct{ Edit protocol.TerrainEdit }
type TerrainReset struct {
	PlayerID   string
	PlayerName string
}

type ChatMessage struct{ Message session.ChatMessage }

type ObjectiveUpdated struct{ Objective protocol.ObjectiveInfo }
type ObjectiveCompleted struct {
	Objective protocol.ObjectiveInfo
	PlayerID  string
}

type MilestoneReached struct {
	MilestoneID string
	Threshold   float64
	RewardXP    int
	Completers  []string
}

type AssignmentCompleted struct {
	AssignmentID string
	Rewards      map[string]int
}

type LeaderboardUpdated struct{ Leaderboard []scoring.Score }

type ErrorOccurred struct {
	Message string
	Code    string
}

type PermissionDeniedNote struct {
	Action string
	Reason string
}

func (ConnectionChanged) isNotification()    {}
func (SessionCreated) isNotification()       {}
func (SessionJoined) isNotification()        {}
func (SessionUpdated) isNotification()       {}
func (PlayerJoined) isNotification()         {}
func (PlayerLeft) isNotification()           {}
func (PlayerUpdated) isNotification()        {}
func (TerrainModified) isNotification()      {}
func (TerrainReset) isNotification()         {}
func (ChatMessage) isNotification()          {}
func (ObjectiveUpdated) isNotification()     {}
func (ObjectiveCompleted) isNotification()   {}
func (MilestoneReached) isNotification()     {}
func (AssignmentCompleted) isNotification()  {}
func (LeaderboardUpdated) isNotification()   {}
func (ErrorOccurred) isNotification()        {}
func (PermissionDeniedNote) isNotification() {}

// Bus fans notifications out to subscribers. Unset observers are simply not
// on the list; there is no optional-callback object to silently no-op.
type Bus struct {
	next int
	subs map[int]func(Notification)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Notification))}
}

func (b *Bus) Subscribe(fn func(Notification)) int {
	b.next++
	b.subs[b.next] = fn
	return b.next
}

func (b *Bus) Unsubscribe(id int) { delete(b.subs, id) }

func (b *Bus) publish(n Notification) {
	for _, fn := range b.subs {
		fn(n)
	}
}
