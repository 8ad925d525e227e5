package progress

import (
	"time"

	"groundcrew/internal/tuning"
)

// ComputeRewards distributes experience points after a successful completion
// verdict. Each bonus is independently gated; granted bonuses stack
// additively. All roster members receive identical amounts except the
// accuracy bonus, which is evaluated per player.
func (e *Engine) ComputeRewards(cfg tuning.Rewards, c Criteria, elapsed time.Duration, roster []string) map[string]int {
	base := cfg.BaseXP

	if e.TeamEfficiency(elapsed) > cfg.TeamEfficiencyGate {
		base += cfg.TeamBonusXP
	}
	if c.TimeLimit > 0 {
		remaining := c.TimeLimit - elapsed
		if remaining.Seconds() > cfg.SpeedRemainingFrac*c.TimeLimit.Seconds() {
			base += cfg.SpeedBonusXP
		}
	}
	if e.CollaborationBonus(roster) > cfg.CollabGate {
		base += cfg.CollabBonusXP
	}

	out := make(map[string]int, len(roster))
	for _, id := range roster {
		xp := base
		if e.IndividualScore(id) > cfg.AccuracyScoreGate {
			xp += cfg.AccuracyBonusXP
		}
		out[id] = xp
	}
	return out
}
