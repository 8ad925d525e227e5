package progress

import "time"

// Criteria are the completion conditions fixed when an assignment starts.
type Criteria struct {
	MinTeamScore         float64
	RequireAllObjectives bool
	TimeLimit            time.Duration
	MinIndividualScore   float64
	CollaborationMin     float64
}

// Condition names reported in a Verdict, for diagnostics.
const (
	CondTimeExpired      = "time-expired"
	CondTeamScore        = "team-score"
	CondIndividualScore  = "individual-score"
	CondSharedObjectives = "shared-objectives"
	CondCollaboration    = "collaboration"
)

// Verdict is the outcome of one completion evaluation. Failed lists every
// condition that blocked completion this tick; evaluation never
// short-circuits silently.
type Verdict struct {
	Complete bool
	Failed   []string
}

// EvaluateCompletion is a pure function of current progress state, scores,
// and elapsed time: identical inputs always yield the same verdict. The
// assignment completes only when every condition holds at once.
func (e *Engine) EvaluateCompletion(c Criteria, elapsed time.Duration, roster []string) Verdict {
	var failed []string

	if c.TimeLimit > 0 && c.TimeLimit-elapsed <= 0 {
		failed = append(failed, CondTimeExpired)
	}
	if e.TeamCompletion() < c.MinTeamScore {
		failed = append(failed, CondTeamScore)
	}
	for _, id := range roster {
		if e.IndividualScore(id) < c.MinIndividualScore {
			failed = append(failed, CondIndividualScore)
			break
		}
	}
	if c.RequireAllObjectives {
		for _, o := range e.shared {
			if !o.Completed {
				failed = append(failed, CondSharedObjectives)
				break
			}
		}
	}
	if e.CollaborationBonus(roster) < c.CollaborationMin {
		failed = append(failed, CondCollaboration)
	}

	return Verdict{Complete: len(failed) == 0, Failed: failed}
}
