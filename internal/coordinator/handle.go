package coordinator

import (
	"errors"
	"time"

	"groundcrew/internal/channel"
	"groundcrew/internal/progress"
	"groundcrew/internal/protocol"
	"groundcrew/internal/session"
)

// handleEvent applies one typed inbound event to local state. Events for a
// terminal session are ignored, not errored.
func (c *Coordinator) handleEvent(ev channel.Event) {
	now := c.clock.Now()

	switch e := ev.(type) {
	case channel.Connected:
		c.connected = true
		c.bus.publish(ConnectionChanged{Connected: true, ClientID: e.ClientID})
		c.HandleReconnected()
		return
	case channel.Disconnected:
		c.handleDisconnected(now)
		return
	case channel.SessionCreated:
		c.attachSession(e.Session, now)
		c.bus.publish(SessionCreated{SessionID: e.Session.SessionID})
		return
	case channel.SessionJoined:
		c.attachSession(e.Session, now)
		c.bus.publish(SessionJoined{SessionID: e.Session.SessionID})
		return
	case channel.ErrorReceived:
		c.bus.publish(ErrorOccurred{Message: e.Message, Code: e.Code})
		return
	case channel.PermissionDenied:
		c.bus.publish(PermissionDeniedNote{Action: e.Action, Reason: e.Reason})
		return
	}

	a := c.cur
	if a == nil || a.sess.Terminal() {
		// Late events for a gone or terminal session.
		return
	}

	switch e := ev.(type) {
	case channel.SessionUpdated:
		a.sess.Name = e.Session.Name
		a.sess.Settings = session.SettingsFromInfo(e.Session.Settings)
		if policy, err := NewConflictPolicy(a.sess.Settings.ConflictPolicy); err == nil {
			a.policy = policy
		}
		c.bus.publish(SessionUpdated{SessionID: a.sess.ID})

	case channel.PlayerJoined:
		p := session.PlayerFromInfo(e.Player)
		if err := a.sess.ApplyPlayerJoined(p); err != nil {
			if !errors.Is(err, session.ErrSessionFull) && c.log != nil {
				c.log.Printf("player-joined: %v", err)
			}
			return
		}
		c.bus.publish(PlayerJoined{Player: p})

	case channel.PlayerLeft:
		if _, ok := a.sess.ApplyPlayerLeft(e.PlayerID); !ok {
			return
		}
		c.bus.publish(PlayerLeft{PlayerID: e.PlayerID})
		if a.sess.PlayerCount() == 0 {
			_ = a.sess.Cancel(now)
			c.stopTickers()
			c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
		}

	case channel.PlayerUpdated:
		p := session.PlayerFromInfo(e.Player)
		if err := a.sess.ApplyPlayerUpdated(p); err != nil {
			return
		}
		updated, _ := a.sess.FindPlayer(p.ID)
		c.bus.publish(PlayerUpdated{Player: *updated})

	case channel.CursorMoved:
		p, ok := a.sess.FindPlayer(e.PlayerID)
		if !ok {
			return
		}
		p.Cursor = session.Cursor{
			X:       e.Cursor.X,
			Y:       e.Cursor.Y,
			Visible: e.Cursor.Visible,
			Tool:    e.Cursor.Tool,
		}
		p.LastActiveAt = now
		c.bus.publish(PlayerUpdated{Player: *p})

	case channel.TerrainModified:
		p, _ := a.sess.FindPlayer(e.Edit.PlayerID)
		if c.applyEdit(a, p, e.Edit) {
			c.bus.publish(TerrainModified{Edit: e.Edit})
		}

	case channel.TerrainReset:
		a.lastEdit = make(map[cellKey]protocol.TerrainEdit)
		c.bus.publish(TerrainReset{PlayerID: e.PlayerID, PlayerName: e.PlayerName})

	case channel.ChatReceived:
		msg := session.ChatMessage{
			PlayerID:   e.Message.PlayerID,
			PlayerName: e.Message.PlayerName,
			Text:       e.Message.Text,
			At:         time.UnixMilli(e.Message.AtUnixMs),
		}
		if !a.sess.AddChat(msg) {
			return
		}
		if c.journal != nil {
			c.journal.RecordChat(a.sess.ID, msg.PlayerID, msg.Text, msg.At)
		}
		c.bus.publish(ChatMessage{Message: msg})

	case channel.ObjectiveUpdated:
		if a.engine != nil {
			if o, ok := a.engine.FindShared(e.Objective.ObjectiveID); ok {
				// Remote progress merges monotonically: per-player values
				// only ever grow.
				for id, v := range e.Objective.Progress {
					if v > o.Progress[id] {
						o.Progress[id] = v
					}
				}
			}
		}
		c.bus.publish(ObjectiveUpdated{Objective: e.Objective})

	case channel.ObjectiveCompleted:
		if a.engine != nil {
			if o, ok := a.engine.FindShared(e.Objective.ObjectiveID); ok {
				o.MarkCompleted(e.PlayerID, now)
			}
			if e.PlayerID != "" {
				a.engine.RecordAction(e.PlayerID, progress.ObjectiveCompleteAction{ObjectiveID: e.Objective.ObjectiveID})
			}
		}
		c.bus.publish(ObjectiveCompleted{Objective: e.Objective, PlayerID: e.PlayerID})

	case channel.SettingsChanged:
		a.sess.Settings = session.SettingsFromInfo(e.Settings)
		if policy, err := NewConflictPolicy(a.sess.Settings.ConflictPolicy); err == nil {
			a.policy = policy
		}
		c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
	}
}

// handleDisconnected applies the transport-loss policy: remote cursors are
// invalidated immediately, roster status flips to disconnected, and the
// session pauses or cancels per settings. Session data is never destroyed.
func (c *Coordinator) handleDisconnected(now time.Time) {
	c.connected = false
	c.bus.publish(ConnectionChanged{Connected: false})

	a := c.cur
	if a == nil || a.sess.Terminal() {
		return
	}

	localID := c.adapter.ClientID()
	for _, p := range a.sess.Players() {
		if p.ID == localID {
			continue
		}
		p.Status = session.StatusDisconnected
		p.Cursor.Visible = false
		c.bus.publish(PlayerUpdated{Player: *p})
	}

	if a.sess.State() != session.StateActive {
		return
	}
	if a.sess.PlayerCount() <= 1 {
		// Sole remaining participant: the session is over, not paused.
		_ = a.sess.Cancel(now)
		c.stopTickers()
	} else if a.sess.Settings.PauseOnDisconnect {
		_ = a.sess.Pause()
	}
	c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
}

// HandleReconnected resumes a paused session once the channel returns.
func (c *Coordinator) HandleReconnected() {
	a := c.cur
	if a == nil || a.sess.Terminal() {
		return
	}
	if a.sess.State() == session.StatePaused {
		_ = a.sess.Resume()
		c.bus.publish(SessionUpdated{SessionID: a.sess.ID})
	}
}
