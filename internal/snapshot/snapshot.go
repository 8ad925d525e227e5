package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"groundcrew/internal/progress"
	"groundcrew/internal/scoring"
)

type Header struct {
	Version      int    `json:"version"`
	SessionID    string `json:"session_id"`
	CapturedAtMs int64  `json:"captured_at_unix_ms"`
}

// StateV1 captures the full objective/milestone/contribution/score state of
// a session, enough to reproduce identical aggregate completion percentages
// on reapply.
type StateV1 struct {
	Header Header

	LevelID  string
	Progress progress.State
	Scores   []ScoreV1
}

type ScoreV1 struct {
	PlayerID    string
	Total       float64
	Objective   float64
	NetZero     float64
	Efficiency  float64
	Operations  int
	UpdatedAtMs int64
}

// Capture exports engine and score state. The scoring engine may be nil for
// non-competitive sessions.
func Capture(sessionID string, eng *progress.Engine, sc *scoring.Engine, now time.Time) StateV1 {
	st := StateV1{
		Header: Header{Version: 1, SessionID: sessionID, CapturedAtMs: now.UnixMilli()},
	}
	if eng != nil {
		st.Progress = eng.Export()
	}
	if sc != nil {
		st.LevelID = sc.LevelID()
		for _, s := range sc.Leaderboard() {
			st.Scores = append(st.Scores, ScoreV1{
				PlayerID:    s.PlayerID,
				Total:       s.Total,
				Objective:   s.Objective,
				NetZero:     s.NetZero,
				Efficiency:  s.Efficiency,
				Operations:  s.Operations,
				UpdatedAtMs: s.LastUpdated.UnixMilli(),
			})
		}
	}
	return st
}

// Restore rebuilds the engines from a captured state.
func Restore(st StateV1) (*progress.Engine, *scoring.Engine) {
	eng := progress.Restore(st.Progress)

	var sc *scoring.Engine
	if len(st.Scores) > 0 || st.LevelID != "" {
		sc = scoring.NewEngine()
		ids := make([]string, 0, len(st.Scores))
		for _, s := range st.Scores {
			ids = append(ids, s.PlayerID)
		}
		sc.StartLevel(st.LevelID, ids, time.Time{})
		for _, s := range st.Scores {
			sc.Apply(s.PlayerID, scoring.Update{
				Total:        s.Total,
				Objectives:   []scoring.WeightedScore{{Score: s.Objective}},
				NetImbalance: (100 - s.NetZero) / 10,
				Efficiency:   s.Efficiency,
				Operations:   s.Operations,
			}, time.UnixMilli(s.UpdatedAtMs))
		}
	}
	return eng, sc
}

// Write stores a snapshot as a JSON header line followed by a zstd-compressed
// gob body.
func Write(path string, st StateV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	hb, _ := json.Marshal(st.Header)
	if _, err := f.Write(append(hb, '\n')); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	if err := gob.NewEncoder(bw).Encode(&st); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func Read(path string) (StateV1, error) {
	var st StateV1
	f, err := os.Open(path)
	if err != nil {
		return st, err
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 64*1024)
	// Header line is advisory; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return st, fmt.Errorf("snapshot header: %w", err)
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return st, err
	}
	defer dec.Close()

	if err := gob.NewDecoder(dec).Decode(&st); err != nil {
		return st, fmt.Errorf("gob decode: %w", err)
	}
	return st, nil
}
