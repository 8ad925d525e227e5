package scoring

import (
	"math"
	"sort"
	"time"
)

// Score is one player's composite competitive score. Recomputed live, never
// retained beyond the session.
type Score struct {
	PlayerID    string
	Total       float64
	Objective   float64
	NetZero     float64
	Efficiency  float64
	Operations  int
	LastUpdated time.Time
}

// Engine maintains per-player scores for competitive sessions. Single-owner,
// coordinator loop only.
type Engine struct {
	levelID string
	scores  map[string]*Score
}

func NewEngine() *Engine {
	return &Engine{scores: make(map[string]*Score)}
}

func (e *Engine) LevelID() string { return e.levelID }

// StartLevel resets every roster member to the starting breakdown: objective
// 0, net-zero 100, efficiency 100, zero operations.
func (e *Engine) StartLevel(levelID string, roster []string, now time.Time) {
	e.levelID = levelID
	e.scores = make(map[string]*Score, len(roster))
	for _, id := range roster {
		e.scores[id] = &Score{
			PlayerID:    id,
			NetZero:     100,
			Efficiency:  100,
			LastUpdated: now,
		}
	}
}

type WeightedScore struct {
	Score  float64
	Weight float64
}

// ObjectiveScore is the weighted mean of per-objective scores; unspecified
// weights default to 1.
func ObjectiveScore(scores []WeightedScore) float64 {
	var sum, weights float64
	for _, ws := range scores {
		w := ws.Weight
		if w == 0 {
			w = 1
		}
		sum += ws.Score * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// NetZeroScore starts at 100 and loses 10 points per unit of absolute net
// volume imbalance, floored at 0.
func NetZeroScore(imbalance float64) float64 {
	s := 100 - 10*math.Abs(imbalance)
	if s < 0 {
		return 0
	}
	return s
}

// Update carries one progress report from the assignment-progress
// collaborator. Total is the source's own running score; the engine only
// derives the sub-component breakdown.
type Update struct {
	Total        float64
	Objectives   []WeightedScore
	NetImbalance float64
	Efficiency   float64
	Operations   int
}

func (e *Engine) Apply(playerID string, u Update, now time.Time) Score {
	s, ok := e.scores[playerID]
	if !ok {
		s = &Score{PlayerID: playerID, NetZero: 100, Efficiency: 100}
		e.scores[playerID] = s
	}
	s.Total = u.Total
	s.Objective = ObjectiveScore(u.Objectives)
	s.NetZero = NetZeroScore(u.NetImbalance)
	s.Efficiency = u.Efficiency
	s.Operations = u.Operations
	s.LastUpdated = now
	return *s
}

func (e *Engine) Get(playerID string) (Score, bool) {
	s, ok := e.scores[playerID]
	if !ok {
		return Score{}, false
	}
	return *s, true
}

func (e *Engine) Remove(playerID string) { delete(e.scores, playerID) }

// Leaderboard returns all current scores sorted descending by total. Ties
// break on earlier LastUpdated (first to reach the score ranks higher), then
// on player id, so the ordering is stable and documented.
func (e *Engine) Leaderboard() []Score {
	out := make([]Score, 0, len(e.scores))
	for _, s := range e.scores {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.Before(out[j].LastUpdated)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}
