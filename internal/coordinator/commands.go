package coordinator

import (
	"groundcrew/internal/progress"
	"groundcrew/internal/protocol"
	"groundcrew/internal/scoring"
	"groundcrew/internal/session"
)

// Command surface consumed by the presentation layer. Permission failures are
// returned to the caller; session state stays unchanged.

func (c *Coordinator) CreateSession(name string, maxPlayers int, public bool, st session.Settings) error {
	if !c.connected {
		return ErrNotConnected
	}
	if c.cur != nil {
		return ErrInSession
	}
	if _, err := NewConflictPolicy(st.ConflictPolicy); err != nil {
		return err
	}
	return c.adapter.SendCreateSession(protocol.CreateSessionMsg{
		Name:       name,
		MaxPlayers: maxPlayers,
		IsPublic:   public,
		Settings:   session.SettingsToInfo(st),
	})
}

func (c *Coordinator) JoinSession(sessionID string) error {
	if !c.connected {
		return ErrNotConnected
	}
	if c.cur != nil {
		return ErrInSession
	}
	return c.adapter.SendJoinSession(protocol.JoinSessionMsg{
		SessionID:  sessionID,
		PlayerName: c.localName,
	})
}

// LeaveSession halts local ticks and releases the mirror. The session keeps
// running for the others unless we were the sole remaining participant.
func (c *Coordinator) LeaveSession() error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if err := c.adapter.SendLeaveSession(); err != nil && c.log != nil {
		c.log.Printf("leave-session send: %v", err)
	}
	localID := c.adapter.ClientID()
	a.sess.ApplyPlayerLeft(localID)
	if a.sess.PlayerCount() == 0 && !a.sess.Terminal() {
		_ = a.sess.Cancel(c.clock.Now())
	}
	if c.journal != nil {
		c.journal.RecordSessionEnd(a.sess.ID, string(a.sess.State()), c.clock.Now())
	}
	c.teardown()
	c.bus.publish(PlayerLeft{PlayerID: localID})
	return nil
}

func (c *Coordinator) ModifyTerrain(x, y int, heightDelta float64, tool string) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if a.sess.Terminal() {
		return session.ErrTerminal
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return err
	}
	if !p.Perms.ModifyTerrain {
		return session.ErrNoPermission
	}

	now := c.clock.Now()
	edit := protocol.TerrainEdit{
		PlayerID:    p.ID,
		X:           x,
		Y:           y,
		HeightDelta: heightDelta,
		Tool:        tool,
		AtUnixMs:    now.UnixMilli(),
		SessionID:   a.sess.ID,
	}
	c.applyEdit(a, p, edit)
	if err := c.adapter.SendTerrainEdit(edit); err != nil {
		return err
	}
	c.bus.publish(TerrainModified{Edit: edit})
	return nil
}

func (c *Coordinator) ResetTerrain() error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if a.sess.Terminal() {
		return session.ErrTerminal
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return err
	}
	if !p.Perms.ResetTerrain {
		return session.ErrNoPermission
	}
	if err := c.adapter.SendTerrainReset(p.ID, p.Name); err != nil {
		return err
	}
	c.bus.publish(TerrainReset{PlayerID: p.ID, PlayerName: p.Name})
	return nil
}

func (c *Coordinator) SendChatMessage(text string) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if !a.sess.Settings.ChatEnabled {
		return ErrChatDisabled
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return err
	}
	now := c.clock.Now()
	msg := session.ChatMessage{PlayerID: p.ID, PlayerName: p.Name, Text: text, At: now}
	if !a.sess.AddChat(msg) {
		return ErrChatDisabled
	}
	if err := c.adapter.SendChat(p.ID, p.Name, text, now); err != nil {
		return err
	}
	if c.journal != nil {
		c.journal.RecordChat(a.sess.ID, p.ID, text, now)
	}
	c.bus.publish(ChatMessage{Message: msg})
	return nil
}

// UpdateCursor records the local cursor; the fast tick broadcasts it.
func (c *Coordinator) UpdateCursor(cur session.Cursor) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	a.localCursor = cur
	if p, ok := a.sess.FindPlayer(c.adapter.ClientID()); ok {
		p.Cursor = cur
		p.LastActiveAt = c.clock.Now()
	}
	return nil
}

// InvitePlayer checks the capability and hands the session id back for
// out-of-band delivery; invitation transport is not this core's concern.
func (c *Coordinator) InvitePlayer() (sessionID string, err error) {
	a, err := c.activeSession()
	if err != nil {
		return "", err
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return "", err
	}
	if !p.Perms.Invite {
		return "", session.ErrNoPermission
	}
	return a.sess.ID, nil
}

func (c *Coordinator) KickPlayer(targetID string) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return err
	}
	if !p.Perms.Kick {
		return session.ErrNoPermission
	}
	left, ok := a.sess.ApplyPlayerLeft(targetID)
	if !ok {
		return session.ErrPlayerNotFound
	}
	if err := c.adapter.SendPlayerLeft(session.PlayerToInfo(left)); err != nil {
		return err
	}
	c.bus.publish(PlayerLeft{PlayerID: targetID})
	return nil
}

func (c *Coordinator) ChangePlayerRole(targetID string, role session.Role) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if err := a.sess.SetRole(c.adapter.ClientID(), targetID, role); err != nil {
		return err
	}
	target, _ := a.sess.FindPlayer(targetID)
	if err := c.adapter.SendPlayerUpdated(session.PlayerToInfo(*target)); err != nil {
		return err
	}
	c.bus.publish(PlayerUpdated{Player: *target})
	return nil
}

func (c *Coordinator) UpdateSessionSettings(st session.Settings) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return err
	}
	if !p.Perms.ManageSession {
		return session.ErrNoPermission
	}
	policy, err := NewConflictPolicy(st.ConflictPolicy)
	if err != nil {
		return err
	}
	a.sess.Settings = st
	a.policy = policy
	if err := c.adapter.SendSettings(session.SettingsToInfo(st)); err != nil {
		return err
	}
	c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
	return nil
}

// StartCollaborativeAssignment fixes the criteria, instantiates objectives
// and milestones, moves the session to active, and starts the progress tick.
func (c *Coordinator) StartCollaborativeAssignment(asn Assignment) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	now := c.clock.Now()
	if err := a.sess.Start(c.adapter.ClientID(), now); err != nil {
		return err
	}

	eng := progress.NewEngine(asn.Criteria.TimeLimit)
	for _, o := range asn.Shared {
		eng.AddShared(o)
	}
	for _, id := range a.sess.PlayerIDs() {
		for _, tmpl := range asn.PerPlayer {
			o := progress.NewObjective(tmpl.ID+":"+id, tmpl.Kind, tmpl.Description, tmpl.Target)
			eng.AddIndividual(id, o)
		}
	}
	for _, m := range asn.Milestones {
		eng.AddMilestone(m)
	}
	eng.OnMilestone(func(m progress.Milestone, roster []string) {
		for _, id := range roster {
			if c.progression != nil {
				c.progression.GrantXP(id, m.RewardXP, "milestone "+m.ID)
			}
		}
		c.bus.publish(MilestoneReached{
			MilestoneID: m.ID,
			Threshold:   m.Threshold,
			RewardXP:    m.RewardXP,
			Completers:  roster,
		})
	})

	a.engine = eng
	a.criteria = asn.Criteria
	a.assignment = &asn
	a.startedAt = now
	a.sess.AssignmentID = asn.ID
	c.startProgressTicker()
	c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
	return nil
}

// PauseAssignment is the explicit host pause.
func (c *Coordinator) PauseAssignment() error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return err
	}
	if !p.Perms.ManageSession {
		return session.ErrNoPermission
	}
	if err := a.sess.Pause(); err != nil {
		return err
	}
	c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
	return nil
}

func (c *Coordinator) ResumeAssignment() error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if err := a.sess.Resume(); err != nil {
		return err
	}
	c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
	return nil
}

// RecordPlayerAction folds one action into the contribution accumulators.
func (c *Coordinator) RecordPlayerAction(playerID string, action progress.Action) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if a.engine == nil {
		return ErrNoAssignment
	}
	a.engine.RecordAction(playerID, action)
	if tm, ok := action.(progress.TerrainModifyAction); ok {
		if p, found := a.sess.FindPlayer(playerID); found {
			p.Stats.VolumeMoved = a.engine.Contribution(playerID).VolumeMoved
			if tm.Tool != "" {
				p.Stats.ToolUsage[tm.Tool]++
			}
		}
	}
	return nil
}

// UpdateLiveScore applies one report from the assignment-progress
// collaborator to the competitive score table.
func (c *Coordinator) UpdateLiveScore(playerID string, u scoring.Update) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	if a.scores == nil {
		return ErrNoCompetition
	}
	s := a.scores.Apply(playerID, u, c.clock.Now())
	a.sess.LiveScores[playerID] = s.Total
	c.bus.publish(LeaderboardUpdated{Leaderboard: a.scores.Leaderboard()})
	return nil
}

func (c *Coordinator) StartCompetitiveLevel(levelID string) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	p, err := c.localPlayer(a)
	if err != nil {
		return err
	}
	if !p.Perms.ChangeAssignment {
		return session.ErrNoPermission
	}
	if a.scores == nil {
		a.scores = scoring.NewEngine()
	}
	roster := a.sess.PlayerIDs()
	a.scores.StartLevel(levelID, roster, c.clock.Now())
	a.sess.LevelID = levelID
	// The live table tracks the engine's roster exactly; departed players
	// must not linger with stale totals.
	a.sess.LiveScores = make(map[string]float64, len(roster))
	for _, id := range roster {
		a.sess.LiveScores[id] = 0
	}
	c.bus.publish(LeaderboardUpdated{Leaderboard: a.scores.Leaderboard()})
	return nil
}

func (c *Coordinator) Leaderboard() []scoring.Score {
	if c.cur == nil || c.cur.scores == nil {
		return nil
	}
	return c.cur.scores.Leaderboard()
}

func (c *Coordinator) CurrentAssignment() (Assignment, bool) {
	if c.cur == nil || c.cur.assignment == nil {
		return Assignment{}, false
	}
	return *c.cur.assignment, true
}

// Engine exposes the progress engine for snapshotting; nil when no
// assignment is running.
func (c *Coordinator) Engine() *progress.Engine {
	if c.cur == nil {
		return nil
	}
	return c.cur.engine
}

func (c *Coordinator) Scores() *scoring.Engine {
	if c.cur == nil {
		return nil
	}
	return c.cur.scores
}

// applyEdit runs the conflict policy for the edit's cell, then records the
// contribution. Edits that lose the policy check are dropped.
func (c *Coordinator) applyEdit(a *active, p *session.Player, edit protocol.TerrainEdit) bool {
	key := cellKey{X: edit.X, Y: edit.Y}
	if existing, ok := a.lastEdit[key]; ok {
		if !a.policy.IncomingWins(existing, edit, a.sess.HostID) {
			if c.log != nil {
				c.log.Printf("edit at (%d,%d) from %s lost conflict resolution", edit.X, edit.Y, edit.PlayerID)
			}
			return false
		}
	}
	a.lastEdit[key] = edit

	if a.engine != nil {
		a.engine.RecordAction(edit.PlayerID, progress.TerrainModifyAction{
			HeightChange: edit.HeightDelta,
			Tool:         edit.Tool,
		})
	}
	if p != nil {
		if a.engine != nil {
			p.Stats.VolumeMoved = a.engine.Contribution(edit.PlayerID).VolumeMoved
		}
		if edit.Tool != "" {
			p.Stats.ToolUsage[edit.Tool]++
		}
		p.LastActiveAt = c.clock.Now()
	}
	if c.journal != nil {
		c.journal.RecordEdit(edit)
	}
	return true
}
