package progress

import "time"

// State is the exportable objective/milestone/contribution snapshot of an
// engine. Reapplying it to a fresh engine reproduces identical aggregates.
type State struct {
	TimeLimitMs int64

	Shared     []ObjectiveState
	Individual map[string][]ObjectiveState
	Milestones []MilestoneState
	Contrib    map[string]ContributionState
}

type ObjectiveState struct {
	ID          string
	Kind        string
	Description string
	TargetType  string
	Params      map[string]float64
	Tolerance   float64
	Progress    map[string]float64
	Completed   bool
	CompletedBy string
	CompletedAt int64
}

type MilestoneState struct {
	ID          string
	Threshold   float64
	Completed   bool
	CompletedBy []string
	CompletedAt int64
	RewardXP    int
}

type ContributionState struct {
	VolumeMoved         float64
	ObjectivesCompleted int
	ToolUsage           map[string]int
	Accuracy            float64
	Collaboration       float64
	LeadershipActions   int
}

func (e *Engine) Export() State {
	st := State{
		TimeLimitMs: e.timeLimit.Milliseconds(),
		Individual:  make(map[string][]ObjectiveState, len(e.individual)),
		Contrib:     make(map[string]ContributionState, len(e.contrib)),
	}
	for _, o := range e.shared {
		st.Shared = append(st.Shared, exportObjective(o))
	}
	for id, objs := range e.individual {
		for _, o := range objs {
			st.Individual[id] = append(st.Individual[id], exportObjective(o))
		}
	}
	for _, m := range e.milestones {
		st.Milestones = append(st.Milestones, MilestoneState{
			ID:          m.ID,
			Threshold:   m.Threshold,
			Completed:   m.Completed,
			CompletedBy: append([]string(nil), m.CompletedBy...),
			CompletedAt: unixMs(m.CompletedAt),
			RewardXP:    m.RewardXP,
		})
	}
	for id, c := range e.contrib {
		st.Contrib[id] = ContributionState{
			VolumeMoved:         c.VolumeMoved,
			ObjectivesCompleted: c.ObjectivesCompleted,
			ToolUsage:           copyToolUsage(c.ToolUsage),
			Accuracy:            c.Accuracy,
			Collaboration:       c.Collaboration,
			LeadershipActions:   c.LeadershipActions,
		}
	}
	return st
}

// Restore builds a fresh engine from an exported state.
func Restore(st State) *Engine {
	e := NewEngine(time.Duration(st.TimeLimitMs) * time.Millisecond)
	for _, os := range st.Shared {
		e.AddShared(restoreObjective(os))
	}
	for id, objs := range st.Individual {
		for _, os := range objs {
			e.AddIndividual(id, restoreObjective(os))
		}
	}
	for _, ms := range st.Milestones {
		e.AddMilestone(&Milestone{
			ID:          ms.ID,
			Threshold:   ms.Threshold,
			Completed:   ms.Completed,
			CompletedBy: append([]string(nil), ms.CompletedBy...),
			CompletedAt: fromUnixMs(ms.CompletedAt),
			RewardXP:    ms.RewardXP,
		})
	}
	for id, cs := range st.Contrib {
		e.contrib[id] = &Contribution{
			VolumeMoved:         cs.VolumeMoved,
			ObjectivesCompleted: cs.ObjectivesCompleted,
			ToolUsage:           copyToolUsage(cs.ToolUsage),
			Accuracy:            cs.Accuracy,
			Collaboration:       cs.Collaboration,
			LeadershipActions:   cs.LeadershipActions,
		}
	}
	return e
}

func exportObjective(o *Objective) ObjectiveState {
	progress := make(map[string]float64, len(o.Progress))
	for k, v := range o.Progress {
		progress[k] = v
	}
	return ObjectiveState{
		ID:          o.ID,
		Kind:        string(o.Kind),
		Description: o.Description,
		TargetType:  o.Target.Type,
		Params:      o.Target.Params,
		Tolerance:   o.Target.Tolerance,
		Progress:    progress,
		Completed:   o.Completed,
		CompletedBy: o.CompletedBy,
		CompletedAt: unixMs(o.CompletedAt),
	}
}

func restoreObjective(os ObjectiveState) *Objective {
	o := NewObjective(os.ID, ObjectiveKind(os.Kind), os.Description, TargetSpec{
		Type:      os.TargetType,
		Params:    os.Params,
		Tolerance: os.Tolerance,
	})
	for k, v := range os.Progress {
		o.Progress[k] = v
	}
	o.Completed = os.Completed
	o.CompletedBy = os.CompletedBy
	o.CompletedAt = fromUnixMs(os.CompletedAt)
	return o
}

func copyToolUsage(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
