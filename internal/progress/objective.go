package progress

import "time"

type ObjectiveKind string

const (
	KindCollaborative ObjectiveKind = "collaborative"
	KindCompetitive   ObjectiveKind = "competitive"
)

type TargetSpec struct {
	Type      string
	Params    map[string]float64
	Tolerance float64
}

// Objective is one measurable sub-goal. Shared objectives live on the engine
// directly; individual ones are keyed per player.
type Objective struct {
	ID          string
	Kind        ObjectiveKind
	Description string
	Target      TargetSpec

	// Recorded progress per player, in percent points toward the target.
	Progress map[string]float64

	Completed   bool
	CompletedBy string
	CompletedAt time.Time
}

func NewObjective(id string, kind ObjectiveKind, desc string, target TargetSpec) *Objective {
	return &Objective{
		ID:          id,
		Kind:        kind,
		Description: desc,
		Target:      target,
		Progress:    make(map[string]float64),
	}
}

// Record adds progress for one player. Progress never un-records: negative
// deltas are ignored.
func (o *Objective) Record(playerID string, delta float64) {
	if o.Completed || delta <= 0 {
		return
	}
	if o.Progress == nil {
		o.Progress = make(map[string]float64)
	}
	o.Progress[playerID] += delta
}

// Percent is 100 once flagged complete, otherwise the sum of per-player
// progress clamped to 100. Summing (not averaging) rewards cumulative
// contribution toward one shared target.
func (o *Objective) Percent() float64 {
	if o.Completed {
		return 100
	}
	var sum float64
	for _, v := range o.Progress {
		sum += v
	}
	if sum > 100 {
		return 100
	}
	if sum < 0 {
		return 0
	}
	return sum
}

// MarkCompleted flags the objective done. For competitive objectives byID is
// the single completer; empty for collaborative ones.
func (o *Objective) MarkCompleted(byID string, now time.Time) {
	if o.Completed {
		return
	}
	o.Completed = true
	o.CompletedBy = byID
	o.CompletedAt = now
}
