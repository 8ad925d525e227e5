package progress

import "time"

// Milestone latches once aggregate team completion crosses its threshold and
// never re-evaluates. Completers are whoever is on the roster at the moment
// of crossing, not just contributing players.
type Milestone struct {
	ID        string
	Threshold float64 // 0..100

	Completed   bool
	CompletedBy []string
	CompletedAt time.Time

	RewardXP int
}

func (m *Milestone) latch(roster []string, now time.Time) bool {
	if m.Completed {
		return false
	}
	m.Completed = true
	m.CompletedBy = append([]string(nil), roster...)
	m.CompletedAt = now
	return true
}
