package progress

import "time"

// TeamEfficiency blends time efficiency (60%) with a coordination score
// (40%), capped at 100.
//
// Time efficiency is completion percent divided by the elapsed fraction of
// the time limit. Coordination is 100 at zero variance of per-player volume
// contribution and decays linearly with the variance normalized by the mean
// contribution, floored at 0.
func (e *Engine) TeamEfficiency(elapsed time.Duration) float64 {
	completion := e.TeamCompletion()

	timeEff := 100.0
	if e.timeLimit > 0 && elapsed > 0 {
		frac := elapsed.Seconds() / e.timeLimit.Seconds()
		if frac > 0 {
			timeEff = completion / frac
		}
	} else if completion == 0 {
		timeEff = 0
	}

	coord := e.coordinationScore()

	eff := 0.6*timeEff + 0.4*coord
	if eff > 100 {
		eff = 100
	}
	if eff < 0 {
		eff = 0
	}
	return eff
}

func (e *Engine) coordinationScore() float64 {
	volumes := make([]float64, 0, len(e.contrib))
	var total float64
	for _, c := range e.contrib {
		volumes = append(volumes, c.VolumeMoved)
		total += c.VolumeMoved
	}
	if len(volumes) == 0 || total == 0 {
		return 100
	}

	mean := total / float64(len(volumes))
	var variance float64
	for _, v := range volumes {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(volumes))

	score := 100 - variance/mean
	if score < 0 {
		return 0
	}
	return score
}
