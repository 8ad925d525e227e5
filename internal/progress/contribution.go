package progress

import "math"

// Contribution accumulates one player's recorded work. Fields never decrease.
type Contribution struct {
	VolumeMoved         float64
	ObjectivesCompleted int
	ToolUsage           map[string]int
	Accuracy            float64
	Collaboration       float64 // 0..1
	LeadershipActions   int
}

func newContribution() *Contribution {
	return &Contribution{ToolUsage: make(map[string]int)}
}

// Action is the closed set of recordable player actions.
type Action interface{ isAction() }

// TerrainModifyAction records volume moved with a tool. HeightChange is
// signed; contribution counts its magnitude.
type TerrainModifyAction struct {
	HeightChange float64
	Tool         string
}

type ObjectiveCompleteAction struct {
	ObjectiveID string
}

// HelpPlayerAction earns collaboration credit for assisting another player.
type HelpPlayerAction struct {
	TargetID string
}

type LeadAction struct{}

func (TerrainModifyAction) isAction()     {}
func (ObjectiveCompleteAction) isAction() {}
func (HelpPlayerAction) isAction()        {}
func (LeadAction) isAction()              {}

const helpCollaborationCredit = 0.05

func (c *Contribution) apply(a Action) {
	switch act := a.(type) {
	case TerrainModifyAction:
		c.VolumeMoved += math.Abs(act.HeightChange)
		if act.Tool != "" {
			c.ToolUsage[act.Tool]++
		}
	case ObjectiveCompleteAction:
		c.ObjectivesCompleted++
	case HelpPlayerAction:
		c.Collaboration += helpCollaborationCredit
		if c.Collaboration > 1 {
			c.Collaboration = 1
		}
	case LeadAction:
		c.LeadershipActions++
	}
}
