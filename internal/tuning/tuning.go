package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	ProgressTickMs int `yaml:"progress_tick_ms"`
	CursorTickMs   int `yaml:"cursor_tick_ms"`
	ChatHistoryMax int `yaml:"chat_history_max"`

	Rewards Rewards `yaml:"rewards"`
	Relay   Relay   `yaml:"relay"`
}

type Rewards struct {
	BaseXP          int `yaml:"base_xp"`
	TeamBonusXP     int `yaml:"team_bonus_xp"`
	SpeedBonusXP    int `yaml:"speed_bonus_xp"`
	AccuracyBonusXP int `yaml:"accuracy_bonus_xp"`
	CollabBonusXP   int `yaml:"collab_bonus_xp"`

	TeamEfficiencyGate float64 `yaml:"team_efficiency_gate"`
	SpeedRemainingFrac float64 `yaml:"speed_remaining_frac"`
	AccuracyScoreGate  float64 `yaml:"accuracy_score_gate"`
	CollabGate         float64 `yaml:"collab_gate"`
}

type Relay struct {
	MaxQueue        int `yaml:"max_queue"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
}

// Default matches configs/tuning.yaml and is used when no file is given.
func Default() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		ProgressTickMs:  1000,
		CursorTickMs:    100,
		ChatHistoryMax:  256,
		Rewards: Rewards{
			BaseXP:             100,
			TeamBonusXP:        50,
			SpeedBonusXP:       25,
			AccuracyBonusXP:    25,
			CollabBonusXP:      30,
			TeamEfficiencyGate: 85,
			SpeedRemainingFrac: 0.30,
			AccuracyScoreGate:  90,
			CollabGate:         80,
		},
		Relay: Relay{MaxQueue: 64, ReadTimeoutSec: 60, WriteTimeoutSec: 5},
	}
}

func Load(path string) (Tuning, error) {
	t := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) ProgressTick() time.Duration {
	return time.Duration(t.ProgressTickMs) * time.Millisecond
}

func (t Tuning) CursorTick() time.Duration {
	return time.Duration(t.CursorTickMs) * time.Millisecond
}
