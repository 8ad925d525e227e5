package progress

import (
	"sort"
	"time"
)

// MilestoneFunc is invoked once per milestone crossing, with the roster
// credited. The external progression collaborator hangs off this.
type MilestoneFunc func(m Milestone, roster []string)

// Engine aggregates contribution events into objective progress, team
// metrics, and milestone crossings for one assignment. Single-owner: all
// methods must be called from the coordinator loop.
type Engine struct {
	shared     []*Objective
	individual map[string][]*Objective

	milestones []*Milestone
	contrib    map[string]*Contribution

	timeLimit   time.Duration
	onMilestone MilestoneFunc
}

func NewEngine(timeLimit time.Duration) *Engine {
	return &Engine{
		individual: make(map[string][]*Objective),
		contrib:    make(map[string]*Contribution),
		timeLimit:  timeLimit,
	}
}

func (e *Engine) OnMilestone(fn MilestoneFunc) { e.onMilestone = fn }

func (e *Engine) TimeLimit() time.Duration { return e.timeLimit }

func (e *Engine) AddShared(o *Objective) { e.shared = append(e.shared, o) }

func (e *Engine) AddIndividual(playerID string, o *Objective) {
	e.individual[playerID] = append(e.individual[playerID], o)
}

// AddMilestone keeps the list ordered by threshold.
func (e *Engine) AddMilestone(m *Milestone) {
	e.milestones = append(e.milestones, m)
	sort.Slice(e.milestones, func(i, j int) bool {
		return e.milestones[i].Threshold < e.milestones[j].Threshold
	})
}

func (e *Engine) Shared() []*Objective { return e.shared }

func (e *Engine) Individual(playerID string) []*Objective { return e.individual[playerID] }

func (e *Engine) Milestones() []*Milestone { return e.milestones }

func (e *Engine) FindShared(id string) (*Objective, bool) {
	for _, o := range e.shared {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

func (e *Engine) Contribution(playerID string) *Contribution {
	c, ok := e.contrib[playerID]
	if !ok {
		c = newContribution()
		e.contrib[playerID] = c
	}
	return c
}

// RecordAction folds one player action into the accumulators.
func (e *Engine) RecordAction(playerID string, a Action) {
	e.Contribution(playerID).apply(a)
}

// RecordObjectiveProgress adds progress toward a shared objective.
func (e *Engine) RecordObjectiveProgress(objectiveID, playerID string, delta float64) {
	if o, ok := e.FindShared(objectiveID); ok {
		o.Record(playerID, delta)
	}
}

// RecordIndividualProgress adds progress toward one of the player's own
// objectives.
func (e *Engine) RecordIndividualProgress(playerID, objectiveID string, delta float64) {
	for _, o := range e.individual[playerID] {
		if o.ID == objectiveID {
			o.Record(playerID, delta)
			return
		}
	}
}

// TeamCompletion is the arithmetic mean over every objective instance: each
// shared objective counts once, each player's individual objective counts
// once per player. Bigger rosters carry proportionally more individual terms.
func (e *Engine) TeamCompletion() float64 {
	var sum float64
	var n int
	for _, o := range e.shared {
		sum += o.Percent()
		n++
	}
	for _, objs := range e.individual {
		for _, o := range objs {
			sum += o.Percent()
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CheckMilestones latches every milestone whose threshold the current team
// completion meets or exceeds, crediting the supplied roster. Latched
// milestones are never re-evaluated.
func (e *Engine) CheckMilestones(roster []string, now time.Time) []*Milestone {
	completion := e.TeamCompletion()
	var crossed []*Milestone
	for _, m := range e.milestones {
		if m.Completed || completion < m.Threshold {
			continue
		}
		if m.latch(roster, now) {
			crossed = append(crossed, m)
			if e.onMilestone != nil {
				e.onMilestone(*m, m.CompletedBy)
			}
		}
	}
	return crossed
}

func (e *Engine) totalVolume() float64 {
	var total float64
	for _, c := range e.contrib {
		total += c.VolumeMoved
	}
	return total
}

// IndividualScore weighs a player's share of team volume (40%), completion of
// their own objectives (40%), and collaboration credit (20%), on a 0..100
// scale capped at 100.
func (e *Engine) IndividualScore(playerID string) float64 {
	c, ok := e.contrib[playerID]
	if !ok {
		c = newContribution()
	}

	var volumeShare float64
	if total := e.totalVolume(); total > 0 {
		volumeShare = c.VolumeMoved / total
	}

	var objFraction float64
	if objs := e.individual[playerID]; len(objs) > 0 {
		done := 0
		for _, o := range objs {
			if o.Completed || o.Percent() >= 100 {
				done++
			}
		}
		objFraction = float64(done) / float64(len(objs))
	}

	score := 100 * (0.4*volumeShare + 0.4*objFraction + 0.2*c.Collaboration)
	if score > 100 {
		score = 100
	}
	return score
}

// CollaborationBonus is the roster-wide mean of collaboration credit on a
// 0..100 scale.
func (e *Engine) CollaborationBonus(roster []string) float64 {
	if len(roster) == 0 {
		return 0
	}
	var sum float64
	for _, id := range roster {
		if c, ok := e.contrib[id]; ok {
			sum += c.Collaboration * 100
		}
	}
	return sum / float64(len(roster))
}
