package coordinator

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"groundcrew/internal/channel"
	"groundcrew/internal/progress"
	"groundcrew/internal/protocol"
	"groundcrew/internal/scoring"
	"groundcrew/internal/session"
	"groundcrew/internal/tuning"
)

type fakeTransport struct {
	sent [][]byte
}

func (f *fakeTransport) Send(b []byte) error {
	f.sent = append(f.sent, b)
	return nil
}

type fakeProgression struct {
	grants map[string]int
}

func (f *fakeProgression) GrantXP(playerID string, amount int, reason string) {
	if f.grants == nil {
		f.grants = make(map[string]int)
	}
	f.grants[playerID] += amount
}

type harness struct {
	coord *Coordinator
	clock *VirtualClock
	trans *fakeTransport
	prog  *fakeProgression
	notes []Notification
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: NewVirtualClock(time.Unix(10000, 0)),
		trans: &fakeTransport{},
		prog:  &fakeProgression{},
	}
	adapter := channel.NewAdapter(h.trans, nil, 64)
	h.coord = New(Config{
		Tuning:      tuning.Default(),
		Adapter:     adapter,
		Clock:       h.clock,
		Progression: h.prog,
		LocalName:   "me",
	})
	h.coord.Bus().Subscribe(func(n Notification) { h.notes = append(h.notes, n) })
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.coord.adapter.HandleConnected("me")
	h.coord.handleEvent(channel.Connected{ClientID: "me"})
}

func (h *harness) attach(t *testing.T, players ...protocol.PlayerInfo) {
	t.Helper()
	info := protocol.SessionInfo{
		SessionID:  "s1",
		Name:       "north ridge",
		HostID:     "me",
		MaxPlayers: 4,
		State:      string(session.StateWaiting),
		Settings: protocol.SettingsInfo{
			ChatEnabled:       true,
			ConflictPolicy:    PolicyLastWins,
			PauseOnDisconnect: true,
		},
		Players: players,
	}
	h.coord.handleEvent(channel.SessionCreated{Session: info})
}

func hostInfo(id string) protocol.PlayerInfo {
	return protocol.PlayerInfo{PlayerID: id, Name: id, Role: string(session.RoleHost), Status: string(session.StatusActive)}
}

func participantInfo(id string) protocol.PlayerInfo {
	return protocol.PlayerInfo{PlayerID: id, Name: id, Role: string(session.RoleParticipant), Status: string(session.StatusActive)}
}

func (h *harness) startAssignment(t *testing.T, asn Assignment) {
	t.Helper()
	if err := h.coord.StartCollaborativeAssignment(asn); err != nil {
		t.Fatalf("start assignment: %v", err)
	}
}

func (h *harness) findNote(match func(Notification) bool) Notification {
	for _, n := range h.notes {
		if match(n) {
			return n
		}
	}
	return nil
}

func TestCreateSession_RequiresConnection(t *testing.T) {
	h := newHarness(t)
	err := h.coord.CreateSession("x", 4, false, session.Settings{})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestCreateSession_RejectsVotePolicy(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	err := h.coord.CreateSession("x", 4, false, session.Settings{ConflictPolicy: PolicyVote})
	if err == nil {
		t.Fatalf("vote policy accepted, want error")
	}
}

func TestSoleParticipantDisconnect_Cancels(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"))
	h.startAssignment(t, Assignment{ID: "asn", Criteria: progress.Criteria{MinTeamScore: 50, TimeLimit: 10 * time.Minute}})

	h.coord.handleEvent(channel.Disconnected{})

	// Sole remaining participant: cancelled, not paused.
	if got := h.coord.Session().State(); got != session.StateCancelled {
		t.Fatalf("state = %s, want cancelled", got)
	}
	if h.coord.cur.progressTicker != nil || h.coord.cur.cursorTicker != nil {
		t.Fatalf("tickers still running after cancel")
	}
}

func TestMultiplayerDisconnect_PausesAndResumes(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))
	h.startAssignment(t, Assignment{ID: "asn", Criteria: progress.Criteria{MinTeamScore: 50, TimeLimit: 10 * time.Minute}})

	h.coord.handleEvent(channel.Disconnected{})

	if got := h.coord.Session().State(); got != session.StatePaused {
		t.Fatalf("state = %s, want paused (PauseOnDisconnect)", got)
	}
	// Remote cursors are invalidated immediately.
	p2, _ := h.coord.Session().FindPlayer("p2")
	if p2.Cursor.Visible || p2.Status != session.StatusDisconnected {
		t.Fatalf("p2 = %+v, want invisible cursor and disconnected status", p2)
	}

	h.coord.handleEvent(channel.Connected{ClientID: "me"})
	if got := h.coord.Session().State(); got != session.StateActive {
		t.Fatalf("state = %s, want active after reconnect", got)
	}
}

func TestTerminalSession_IgnoresLateEvents(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"))
	_ = h.coord.Session().Cancel(h.clock.Now())
	h.notes = nil

	h.coord.handleEvent(channel.TerrainModified{Edit: protocol.TerrainEdit{PlayerID: "p2", X: 1, Y: 1, HeightDelta: 2, AtUnixMs: 5}})
	h.coord.handleEvent(channel.PlayerJoined{Player: participantInfo("p3")})
	h.coord.handleEvent(channel.ChatReceived{Message: protocol.ChatMsg{PlayerID: "p2", Text: "late"}})

	if len(h.notes) != 0 {
		t.Fatalf("terminal session published %d notifications, want 0", len(h.notes))
	}
	if h.coord.Session().PlayerCount() != 1 {
		t.Fatalf("late join mutated terminal roster")
	}
}

func TestModifyTerrain_PermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"))

	// Demote ourselves to spectator, then try to edit.
	me, _ := h.coord.Session().FindPlayer("me")
	me.Role = session.RoleSpectator
	me.Perms = session.PermissionsForRole(session.RoleSpectator)

	err := h.coord.ModifyTerrain(1, 2, -0.5, "excavator")
	if !errors.Is(err, session.ErrNoPermission) {
		t.Fatalf("err = %v, want ErrNoPermission", err)
	}
	if len(h.trans.sent) != 0 {
		t.Fatalf("denied edit still sent %d frames", len(h.trans.sent))
	}
}

func TestModifyTerrain_SendsAndRecords(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"))
	h.startAssignment(t, Assignment{ID: "asn", Criteria: progress.Criteria{MinTeamScore: 50, TimeLimit: 10 * time.Minute}})
	h.trans.sent = nil

	if err := h.coord.ModifyTerrain(3, 4, -2, "excavator"); err != nil {
		t.Fatalf("modify: %v", err)
	}
	if len(h.trans.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(h.trans.sent))
	}
	if got := h.coord.Engine().Contribution("me").VolumeMoved; got != 2 {
		t.Fatalf("volume = %v, want 2", got)
	}
	me, _ := h.coord.Session().FindPlayer("me")
	if me.Stats.VolumeMoved != 2 || me.Stats.ToolUsage["excavator"] != 1 {
		t.Fatalf("stats = %+v", me.Stats)
	}
}

func TestRemoteEdit_ConflictPolicyLastWins(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))
	h.startAssignment(t, Assignment{ID: "asn", Criteria: progress.Criteria{MinTeamScore: 50, TimeLimit: 10 * time.Minute}})
	h.notes = nil

	newer := protocol.TerrainEdit{PlayerID: "p2", X: 1, Y: 1, HeightDelta: 3, AtUnixMs: 100}
	older := protocol.TerrainEdit{PlayerID: "p2", X: 1, Y: 1, HeightDelta: 5, AtUnixMs: 50}

	h.coord.handleEvent(channel.TerrainModified{Edit: newer})
	h.coord.handleEvent(channel.TerrainModified{Edit: older})

	// The stale edit loses; only the first produced a notification and a
	// contribution record.
	count := 0
	for _, n := range h.notes {
		if _, ok := n.(TerrainModified); ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("TerrainModified notifications = %d, want 1", count)
	}
	if got := h.coord.Engine().Contribution("p2").VolumeMoved; got != 3 {
		t.Fatalf("volume = %v, want 3 (stale edit dropped)", got)
	}
}

func TestRemoteEdit_HostPriorityBreaksTies(t *testing.T) {
	policy, err := NewConflictPolicy(PolicyHostPriority)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}

	existing := protocol.TerrainEdit{PlayerID: "p2", AtUnixMs: 100}
	fromHost := protocol.TerrainEdit{PlayerID: "host", AtUnixMs: 100}
	fromPeer := protocol.TerrainEdit{PlayerID: "p3", AtUnixMs: 100}

	if !policy.IncomingWins(existing, fromHost, "host") {
		t.Fatalf("host should win the tie")
	}
	if policy.IncomingWins(existing, fromPeer, "host") {
		t.Fatalf("non-host should lose the tie")
	}

	// Strictly newer edits win regardless of author.
	newer := protocol.TerrainEdit{PlayerID: "p3", AtUnixMs: 101}
	if !policy.IncomingWins(existing, newer, "host") {
		t.Fatalf("newer edit should win")
	}
}

func TestAssignmentCompletion_RewardsAndTerminalState(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))

	shared := progress.NewObjective("flatten", progress.KindCollaborative, "flatten", progress.TargetSpec{})
	h.startAssignment(t, Assignment{
		ID:       "asn",
		Criteria: progress.Criteria{MinTeamScore: 100, TimeLimit: 10 * time.Minute},
		Shared:   []*progress.Objective{shared},
		Milestones: []*progress.Milestone{
			{ID: "half", Threshold: 50, RewardXP: 10},
		},
	})
	h.notes = nil

	// Not complete yet: half done.
	h.coord.Engine().RecordObjectiveProgress("flatten", "me", 50)
	h.clock.Advance(time.Minute)
	h.coord.stepProgress(h.clock.Now())

	if h.coord.Session().State() != session.StateActive {
		t.Fatalf("state = %s, want still active", h.coord.Session().State())
	}
	mn := h.findNote(func(n Notification) bool { _, ok := n.(MilestoneReached); return ok })
	if mn == nil {
		t.Fatalf("milestone crossing not published")
	}
	if h.prog.grants["me"] != 10 || h.prog.grants["p2"] != 10 {
		t.Fatalf("milestone grants = %v, want 10 each", h.prog.grants)
	}

	// Finish the objective; next tick completes the assignment.
	h.coord.Engine().RecordObjectiveProgress("flatten", "p2", 50)
	h.clock.Advance(time.Minute)
	h.coord.stepProgress(h.clock.Now())

	if h.coord.Session().State() != session.StateCompleted {
		t.Fatalf("state = %s, want completed", h.coord.Session().State())
	}
	done := h.findNote(func(n Notification) bool { _, ok := n.(AssignmentCompleted); return ok })
	if done == nil {
		t.Fatalf("AssignmentCompleted not published")
	}
	rewards := done.(AssignmentCompleted).Rewards
	if rewards["me"] == 0 || rewards["me"] != rewards["p2"] {
		t.Fatalf("rewards = %v, want equal nonzero", rewards)
	}
	if h.prog.grants["me"] != 10+rewards["me"] {
		t.Fatalf("grants = %v, want milestone + completion", h.prog.grants)
	}

	// A further tick on the terminal session does nothing.
	before := len(h.notes)
	h.coord.stepProgress(h.clock.Now().Add(time.Minute))
	if len(h.notes) != before {
		t.Fatalf("terminal tick published notifications")
	}
}

func TestMilestones_DoNotRefireAcrossTicks(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"))

	shared := progress.NewObjective("o", progress.KindCollaborative, "", progress.TargetSpec{})
	h.startAssignment(t, Assignment{
		ID:         "asn",
		Criteria:   progress.Criteria{MinTeamScore: 200, TimeLimit: 10 * time.Minute},
		Shared:     []*progress.Objective{shared},
		Milestones: []*progress.Milestone{{ID: "half", Threshold: 50, RewardXP: 5}},
	})

	h.coord.Engine().RecordObjectiveProgress("o", "me", 60)
	h.coord.stepProgress(h.clock.Now())
	h.coord.stepProgress(h.clock.Now().Add(time.Second))
	h.coord.stepProgress(h.clock.Now().Add(2 * time.Second))

	if h.prog.grants["me"] != 5 {
		t.Fatalf("grants = %v, want milestone granted exactly once", h.prog.grants)
	}
}

func TestCompetitiveScoring_Lifecycle(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))

	if err := h.coord.UpdateLiveScore("me", scoring.Update{Total: 10}); !errors.Is(err, ErrNoCompetition) {
		t.Fatalf("err = %v, want ErrNoCompetition before a level starts", err)
	}

	if err := h.coord.StartCompetitiveLevel("level-1"); err != nil {
		t.Fatalf("start level: %v", err)
	}
	if err := h.coord.UpdateLiveScore("me", scoring.Update{Total: 40, NetImbalance: 3}); err != nil {
		t.Fatalf("update: %v", err)
	}
	h.clock.Advance(time.Second)
	if err := h.coord.UpdateLiveScore("p2", scoring.Update{Total: 90}); err != nil {
		t.Fatalf("update: %v", err)
	}

	lb := h.coord.Leaderboard()
	if len(lb) != 2 || lb[0].PlayerID != "p2" || lb[1].PlayerID != "me" {
		t.Fatalf("leaderboard = %+v, want p2 first", lb)
	}
	if lb[1].NetZero != 70 {
		t.Fatalf("net-zero = %v, want 70 for imbalance 3", lb[1].NetZero)
	}
	if h.coord.Session().LiveScores["me"] != 40 {
		t.Fatalf("live scores = %v", h.coord.Session().LiveScores)
	}

	// Starting a new level resets the table.
	if err := h.coord.StartCompetitiveLevel("level-2"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	lb = h.coord.Leaderboard()
	for _, s := range lb {
		if s.Total != 0 {
			t.Fatalf("score %s = %v after reset, want 0", s.PlayerID, s.Total)
		}
	}
}

func TestLeaveSession_ReleasesMirror(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"))

	if err := h.coord.LeaveSession(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if h.coord.Session() != nil {
		t.Fatalf("session mirror still present after leave")
	}
	if err := h.coord.LeaveSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("second leave err = %v, want ErrNoSession", err)
	}
}

func TestChat_DisabledReturnsError(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"))
	h.coord.Session().Settings.ChatEnabled = false

	if err := h.coord.SendChatMessage("hi"); !errors.Is(err, ErrChatDisabled) {
		t.Fatalf("err = %v, want ErrChatDisabled", err)
	}
}

func TestCursorMoved_LastWriteWins(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))

	h.coord.handleEvent(channel.CursorMoved{PlayerID: "p2", Cursor: protocol.CursorInfo{X: 1, Y: 1, Visible: true}})
	h.coord.handleEvent(channel.CursorMoved{PlayerID: "p2", Cursor: protocol.CursorInfo{X: 9, Y: 9, Visible: true}})

	p2, _ := h.coord.Session().FindPlayer("p2")
	if p2.Cursor.X != 9 || p2.Cursor.Y != 9 {
		t.Fatalf("cursor = %+v, want the later write", p2.Cursor)
	}
}

func TestVirtualClock_AdvanceFiresTickers(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)

	clock.Advance(3500 * time.Millisecond)

	fired := 0
	for {
		select {
		case <-ticker.C():
			fired++
			continue
		default:
		}
		break
	}
	if fired != 3 {
		t.Fatalf("fired = %d, want 3", fired)
	}
	if !clock.Now().Equal(time.Unix(0, 0).Add(3500 * time.Millisecond)) {
		t.Fatalf("now = %v", clock.Now())
	}

	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatalf("stopped ticker fired")
	default:
	}
}

func TestSnapshotRoundTrip_RestoresAggregates(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))

	shared := progress.NewObjective("flatten", progress.KindCollaborative, "", progress.TargetSpec{})
	h.startAssignment(t, Assignment{
		ID:       "asn",
		Criteria: progress.Criteria{MinTeamScore: 100, TimeLimit: 10 * time.Minute},
		Shared:   []*progress.Objective{shared},
	})
	h.coord.Engine().RecordObjectiveProgress("flatten", "me", 50)
	if err := h.coord.StartCompetitiveLevel("level-1"); err != nil {
		t.Fatalf("start level: %v", err)
	}
	if err := h.coord.UpdateLiveScore("me", scoring.Update{Total: 70, NetImbalance: 3}); err != nil {
		t.Fatalf("score: %v", err)
	}

	path := filepath.Join(t.TempDir(), "s1.snap.zst")
	if err := h.coord.SaveSnapshot(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Diverge, then restore.
	h.coord.Engine().RecordObjectiveProgress("flatten", "p2", 50)
	if err := h.coord.UpdateLiveScore("me", scoring.Update{Total: 95}); err != nil {
		t.Fatalf("score: %v", err)
	}
	if err := h.coord.LoadSnapshot(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := h.coord.Engine().TeamCompletion(); got != 50 {
		t.Fatalf("team completion = %v, want 50", got)
	}
	lb := h.coord.Leaderboard()
	if len(lb) != 2 || lb[0].PlayerID != "me" || lb[0].Total != 70 {
		t.Fatalf("leaderboard = %+v, want me at 70", lb)
	}
	if h.coord.Session().LiveScores["me"] != 70 {
		t.Fatalf("live scores = %v, want snapshot values", h.coord.Session().LiveScores)
	}
}

func TestRemoteRoleChange_ReplicatesWithDerivedPerms(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))

	// Another participant's coordinator ran ChangePlayerRole; the mirrored
	// player-updated frame must take effect here, not just on the sender.
	h.coord.handleEvent(channel.PlayerUpdated{Player: protocol.PlayerInfo{
		PlayerID: "p2",
		Name:     "p2",
		Role:     string(session.RoleHost),
		Status:   string(session.StatusActive),
	}})

	p2, _ := h.coord.Session().FindPlayer("p2")
	if p2.Role != session.RoleHost {
		t.Fatalf("p2 role = %s, want host", p2.Role)
	}
	if p2.Perms != session.PermissionsForRole(session.RoleHost) {
		t.Fatalf("p2 perms = %+v, diverged from role %s", p2.Perms, p2.Role)
	}
	if h.coord.Session().HostID != "p2" {
		t.Fatalf("host id = %s, want p2", h.coord.Session().HostID)
	}
	me, _ := h.coord.Session().FindPlayer("me")
	if me.Role != session.RoleParticipant || me.Perms.ManageSession {
		t.Fatalf("me = role %s perms %+v, want demoted participant", me.Role, me.Perms)
	}
}

func TestStartCompetitiveLevel_RebuildsLiveScores(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.attach(t, hostInfo("me"), participantInfo("p2"))

	// A leftover entry from a player long gone, and a stale total.
	h.coord.Session().LiveScores["ghost"] = 40
	h.coord.Session().LiveScores["me"] = 90

	if err := h.coord.StartCompetitiveLevel("level-1"); err != nil {
		t.Fatalf("start level: %v", err)
	}

	got := h.coord.Session().LiveScores
	if len(got) != 2 {
		t.Fatalf("live scores = %v, want exactly the roster", got)
	}
	for _, id := range []string{"me", "p2"} {
		if v, ok := got[id]; !ok || v != 0 {
			t.Fatalf("live score %s = %v (present=%v), want fresh 0", id, v, ok)
		}
	}
	if _, ok := got["ghost"]; ok {
		t.Fatalf("departed player still in live score table: %v", got)
	}
}
