package snapshot

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"groundcrew/internal/progress"
	"groundcrew/internal/scoring"
)

func buildEngines(t *testing.T) (*progress.Engine, *scoring.Engine) {
	t.Helper()

	eng := progress.NewEngine(10 * time.Minute)
	shared := progress.NewObjective("flatten", progress.KindCollaborative, "flatten the ridge", progress.TargetSpec{
		Type:      "flatten_area",
		Params:    map[string]float64{"height": 4},
		Tolerance: 0.5,
	})
	shared.Record("a", 40)
	shared.Record("b", 25)
	eng.AddShared(shared)

	own := progress.NewObjective("own:a", progress.KindCollaborative, "", progress.TargetSpec{})
	own.MarkCompleted("a", time.Unix(500, 0))
	eng.AddIndividual("a", own)

	eng.AddMilestone(&progress.Milestone{ID: "half", Threshold: 50, RewardXP: 10})
	eng.CheckMilestones([]string{"a", "b"}, time.Unix(600, 0))

	eng.RecordAction("a", progress.TerrainModifyAction{HeightChange: -3, Tool: "excavator"})
	eng.RecordAction("b", progress.TerrainModifyAction{HeightChange: 2, Tool: "bulldozer"})
	eng.RecordAction("a", progress.HelpPlayerAction{TargetID: "b"})

	sc := scoring.NewEngine()
	sc.StartLevel("level-1", []string{"a", "b"}, time.Unix(700, 0))
	sc.Apply("a", scoring.Update{Total: 62.5, Objectives: []scoring.WeightedScore{{Score: 70}}, NetImbalance: 1, Efficiency: 80, Operations: 9}, time.Unix(710, 0))
	sc.Apply("b", scoring.Update{Total: 40, Efficiency: 90, Operations: 4}, time.Unix(720, 0))

	return eng, sc
}

func TestCaptureRestore_IdenticalAggregates(t *testing.T) {
	eng, sc := buildEngines(t)

	st := Capture("s1", eng, sc, time.Unix(800, 0))
	restoredEng, restoredSc := Restore(st)

	if got, want := restoredEng.TeamCompletion(), eng.TeamCompletion(); got != want {
		t.Fatalf("team completion = %v, want %v", got, want)
	}
	for _, id := range []string{"a", "b"} {
		if got, want := restoredEng.IndividualScore(id), eng.IndividualScore(id); math.Abs(got-want) > 1e-9 {
			t.Fatalf("individual score %s = %v, want %v", id, got, want)
		}
	}
	if got, want := restoredEng.TeamEfficiency(5*time.Minute), eng.TeamEfficiency(5*time.Minute); math.Abs(got-want) > 1e-9 {
		t.Fatalf("efficiency = %v, want %v", got, want)
	}

	// Latched milestones stay latched: re-checking must not re-fire.
	if crossed := restoredEng.CheckMilestones([]string{"a", "b"}, time.Unix(900, 0)); len(crossed) != 0 {
		t.Fatalf("restored milestone re-fired: %v", crossed)
	}

	if restoredSc == nil {
		t.Fatalf("scoring engine not restored")
	}
	if restoredSc.LevelID() != "level-1" {
		t.Fatalf("level = %s", restoredSc.LevelID())
	}
	want := sc.Leaderboard()
	got := restoredSc.Leaderboard()
	if len(got) != len(want) {
		t.Fatalf("leaderboard len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].PlayerID != want[i].PlayerID || got[i].Total != want[i].Total {
			t.Fatalf("leaderboard[%d] = %+v, want %+v", i, got[i], want[i])
		}
		if got[i].NetZero != want[i].NetZero || got[i].Efficiency != want[i].Efficiency {
			t.Fatalf("leaderboard[%d] breakdown = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	eng, sc := buildEngines(t)
	st := Capture("s1", eng, sc, time.Unix(800, 0))

	path := filepath.Join(t.TempDir(), "s1.snap.zst")
	if err := Write(path, st); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got.Header != st.Header {
		t.Fatalf("header = %+v, want %+v", got.Header, st.Header)
	}
	if got.LevelID != "level-1" || len(got.Scores) != 2 {
		t.Fatalf("state = %+v", got)
	}

	restoredEng, _ := Restore(got)
	if restoredEng.TeamCompletion() != eng.TeamCompletion() {
		t.Fatalf("completion after disk round-trip = %v, want %v",
			restoredEng.TeamCompletion(), eng.TeamCompletion())
	}
	if got.Progress.Contrib["a"].VolumeMoved != 3 {
		t.Fatalf("contribution = %+v", got.Progress.Contrib["a"])
	}
}

func TestCapture_NilEnginesAllowed(t *testing.T) {
	st := Capture("s1", nil, nil, time.Unix(800, 0))
	if st.Header.SessionID != "s1" {
		t.Fatalf("header = %+v", st.Header)
	}
	eng, sc := Restore(st)
	if eng == nil {
		t.Fatalf("restore must always yield a progress engine")
	}
	if sc != nil {
		t.Fatalf("scoring engine restored from empty state")
	}
	if eng.TeamCompletion() != 0 {
		t.Fatalf("completion = %v, want 0", eng.TeamCompletion())
	}
}
