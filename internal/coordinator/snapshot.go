package coordinator

import (
	"groundcrew/internal/snapshot"
)

// SaveSnapshot captures the current progress and score state to disk. The
// session itself is not captured; membership is owned by the relay and is
// rebuilt from it on rejoin.
func (c *Coordinator) SaveSnapshot(path string) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	st := snapshot.Capture(a.sess.ID, a.engine, a.scores, c.clock.Now())
	return snapshot.Write(path, st)
}

// LoadSnapshot restores engines captured earlier into the current session
// mirror. Aggregates resume exactly where the capture left them; latched
// milestones stay latched.
func (c *Coordinator) LoadSnapshot(path string) error {
	a, err := c.activeSession()
	if err != nil {
		return err
	}
	st, err := snapshot.Read(path)
	if err != nil {
		return err
	}
	eng, scores := snapshot.Restore(st)
	a.engine = eng
	if scores != nil {
		a.scores = scores
		a.sess.LevelID = st.LevelID
		for _, s := range scores.Leaderboard() {
			a.sess.LiveScores[s.PlayerID] = s.Total
		}
	}
	return nil
}
