package coordinator

import (
	"context"
	"log"
	"time"

	"groundcrew/internal/channel"
	"groundcrew/internal/journal"
	"groundcrew/internal/progress"
	"groundcrew/internal/protocol"
	"groundcrew/internal/scoring"
	"groundcrew/internal/session"
	"groundcrew/internal/tuning"
)

// Progression is the external collaborator that persists experience points
// across sessions. This core only hands out grants.
type Progression interface {
	GrantXP(playerID string, amount int, reason string)
}

type Config struct {
	Log     *log.Logger
	Tuning  tuning.Tuning
	Adapter *channel.Adapter
	Clock   Clock

	// Optional collaborators; nil disables them.
	Journal     *journal.Journal
	Progression Progression

	LocalName string
}

// Coordinator orchestrates the registry, channel adapter, progress engine,
// evaluator, and scoring engine behind one imperative command surface. All
// state is owned by the goroutine running Run; commands and event handling
// must execute there.
type Coordinator struct {
	log     *log.Logger
	tun     tuning.Tuning
	adapter *channel.Adapter
	clock   Clock
	bus     *Bus

	journal     *journal.Journal
	progression Progression

	localName string
	connected bool

	// cur is nil while no session exists; every session-scoped operation
	// goes through activeSession so the required state is checked in one
	// place instead of scattered nil guards.
	cur *active
}

type active struct {
	sess   *session.Session
	policy ConflictPolicy

	engine     *progress.Engine
	criteria   progress.Criteria
	assignment *Assignment
	startedAt  time.Time

	scores *scoring.Engine

	progressTicker Ticker
	cursorTicker   Ticker

	lastEdit    map[cellKey]protocol.TerrainEdit
	localCursor session.Cursor
}

type cellKey struct{ X, Y int }

// Assignment is the definition of one timed collaborative assignment:
// completion criteria plus the objectives and milestones it tracks.
// PerPlayer objectives are instantiated for every roster member at start.
type Assignment struct {
	ID         string
	Criteria   progress.Criteria
	Shared     []*progress.Objective
	PerPlayer  []progress.Objective
	Milestones []*progress.Milestone
}

func New(cfg Config) *Coordinator {
	clock := cfg.Clock
	if clock == nil {
		clock = NewRealClock()
	}
	return &Coordinator{
		log:         cfg.Log,
		tun:         cfg.Tuning,
		adapter:     cfg.Adapter,
		clock:       clock,
		bus:         NewBus(),
		journal:     cfg.Journal,
		progression: cfg.Progression,
		localName:   cfg.LocalName,
	}
}

func (c *Coordinator) Bus() *Bus { return c.bus }

func (c *Coordinator) LocalPlayerID() string { return c.adapter.ClientID() }

// Session exposes the current session mirror, or nil when none exists.
func (c *Coordinator) Session() *session.Session {
	if c.cur == nil {
		return nil
	}
	return c.cur.sess
}

// Run drives the coordinator until the context ends or the adapter's event
// stream closes. This goroutine is the sole owner of all coordinator state.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return ctx.Err()
		case ev, ok := <-c.adapter.Events():
			if !ok {
				c.teardown()
				return nil
			}
			c.handleEvent(ev)
		case now := <-c.progressTickC():
			c.stepProgress(now)
		case now := <-c.cursorTickC():
			c.stepCursor(now)
		}
	}
}

func (c *Coordinator) progressTickC() <-chan time.Time {
	if c.cur == nil || c.cur.progressTicker == nil {
		return nil
	}
	return c.cur.progressTicker.C()
}

func (c *Coordinator) cursorTickC() <-chan time.Time {
	if c.cur == nil || c.cur.cursorTicker == nil {
		return nil
	}
	return c.cur.cursorTicker.C()
}

// activeSession centralizes the "is there a session" check.
func (c *Coordinator) activeSession() (*active, error) {
	if c.cur == nil {
		return nil, ErrNoSession
	}
	return c.cur, nil
}

func (c *Coordinator) localPlayer(a *active) (*session.Player, error) {
	p, ok := a.sess.FindPlayer(c.adapter.ClientID())
	if !ok {
		return nil, session.ErrPlayerNotFound
	}
	return p, nil
}

// stepProgress is the 1-unit-interval tick: milestone detection, completion
// evaluation, reward distribution.
func (c *Coordinator) stepProgress(now time.Time) {
	a := c.cur
	if a == nil || a.engine == nil {
		return
	}
	if a.sess.Terminal() {
		c.stopTickers()
		return
	}
	if a.sess.State() != session.StateActive {
		return
	}

	roster := a.sess.PlayerIDs()
	a.engine.CheckMilestones(roster, now)

	elapsed := now.Sub(a.startedAt)
	verdict := a.engine.EvaluateCompletion(a.criteria, elapsed, roster)
	if !verdict.Complete {
		if c.log != nil && len(verdict.Failed) > 0 {
			c.log.Printf("assignment %s blocked on: %v", a.assignment.ID, verdict.Failed)
		}
		return
	}

	rewards := a.engine.ComputeRewards(c.tun.Rewards, a.criteria, elapsed, roster)
	for id, xp := range rewards {
		if c.progression != nil {
			c.progression.GrantXP(id, xp, "assignment "+a.assignment.ID)
		}
	}
	if err := a.sess.Complete(now); err != nil {
		if c.log != nil {
			c.log.Printf("complete session: %v", err)
		}
		return
	}
	c.stopProgressTicker()
	if c.journal != nil {
		c.journal.RecordSessionEnd(a.sess.ID, string(a.sess.State()), now)
	}
	c.bus.publish(AssignmentCompleted{AssignmentID: a.assignment.ID, Rewards: rewards})
	c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
}

// stepCursor is the fast outbound-only cursor broadcast; it runs regardless
// of session state.
func (c *Coordinator) stepCursor(now time.Time) {
	a := c.cur
	if a == nil || !c.connected {
		return
	}
	cur := a.localCursor
	if err := c.adapter.SendCursor(c.adapter.ClientID(), protocol.CursorInfo{
		X:       cur.X,
		Y:       cur.Y,
		Visible: cur.Visible,
		Tool:    cur.Tool,
	}); err != nil && c.log != nil {
		c.log.Printf("cursor broadcast: %v", err)
	}
}

func (c *Coordinator) startCursorTicker() {
	if c.cur != nil && c.cur.cursorTicker == nil {
		c.cur.cursorTicker = c.clock.NewTicker(c.tun.CursorTick())
	}
}

func (c *Coordinator) startProgressTicker() {
	if c.cur != nil && c.cur.progressTicker == nil {
		c.cur.progressTicker = c.clock.NewTicker(c.tun.ProgressTick())
	}
}

func (c *Coordinator) stopProgressTicker() {
	if c.cur != nil && c.cur.progressTicker != nil {
		c.cur.progressTicker.Stop()
		c.cur.progressTicker = nil
	}
}

func (c *Coordinator) stopTickers() {
	c.stopProgressTicker()
	if c.cur != nil && c.cur.cursorTicker != nil {
		c.cur.cursorTicker.Stop()
		c.cur.cursorTicker = nil
	}
}

func (c *Coordinator) teardown() {
	c.stopTickers()
	c.cur = nil
}

// attachSession builds the local mirror around an authoritative session info.
func (c *Coordinator) attachSession(info protocol.SessionInfo, now time.Time) *active {
	sess := session.FromInfo(info, c.tun.ChatHistoryMax, now)
	policy, err := NewConflictPolicy(sess.Settings.ConflictPolicy)
	if err != nil {
		if c.log != nil {
			c.log.Printf("conflict policy: %v, falling back to lastWins", err)
		}
		policy, _ = NewConflictPolicy(PolicyLastWins)
	}
	c.cur = &active{
		sess:     sess,
		policy:   policy,
		lastEdit: make(map[cellKey]protocol.TerrainEdit),
	}
	c.startCursorTicker()
	return c.cur
}
