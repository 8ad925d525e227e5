package journal

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"groundcrew/internal/protocol"
)

// Journal records the shared edit stream and chat for later inspection:
// an append-only zstd-compressed JSONL file per kind, plus a sqlite index
// with per-session summary rows. Writes go through a single background
// goroutine so the coordinator loop never blocks on I/O.
type Journal struct {
	db *sql.DB

	edits *jsonlZstdWriter

	ch chan req
	wg sync.WaitGroup

	// mu orders enqueues against Close: records hold it shared while sending,
	// Close holds it exclusively while marking closed and closing the channel,
	// so no send can hit a closed channel.
	mu     sync.RWMutex
	closed bool
}

type reqKind int

const (
	reqEdit reqKind = iota + 1
	reqChat
	reqSessionEnd
)

type req struct {
	kind reqKind

	edit protocol.TerrainEdit

	sessionID string
	playerID  string
	text      string
	state     string
	at        time.Time
}

func Open(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty journal dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	j := &Journal{
		db:    db,
		edits: newJSONLZstdWriter(filepath.Join(dir, "edits"), "edits"),
		ch:    make(chan req, 1024),
	}
	j.wg.Add(1)
	go j.writer()
	return j, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS edits (
	session_id TEXT NOT NULL,
	player_id  TEXT NOT NULL,
	x          INTEGER NOT NULL,
	y          INTEGER NOT NULL,
	delta      REAL NOT NULL,
	tool       TEXT,
	at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS edits_session ON edits(session_id);
CREATE TABLE IF NOT EXISTS chat (
	session_id TEXT NOT NULL,
	player_id  TEXT NOT NULL,
	text       TEXT NOT NULL,
	at_unix_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	session_id  TEXT PRIMARY KEY,
	final_state TEXT NOT NULL,
	ended_at_ms INTEGER NOT NULL
);
`

func (j *Journal) RecordEdit(e protocol.TerrainEdit) {
	j.enqueue(req{kind: reqEdit, edit: e})
}

func (j *Journal) RecordChat(sessionID, playerID, text string, at time.Time) {
	j.enqueue(req{kind: reqChat, sessionID: sessionID, playerID: playerID, text: text, at: at})
}

func (j *Journal) RecordSessionEnd(sessionID, finalState string, at time.Time) {
	j.enqueue(req{kind: reqSessionEnd, sessionID: sessionID, state: finalState, at: at})
}

func (j *Journal) enqueue(r req) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- r:
	default:
		// Journal is best-effort; never block the coordinator loop.
	}
}

// EditCount queries the index; used by admin tooling and tests.
func (j *Journal) EditCount(sessionID string) (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM edits WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	err := j.edits.Close()
	if dbErr := j.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

func (j *Journal) writer() {
	defer j.wg.Done()
	for r := range j.ch {
		switch r.kind {
		case reqEdit:
			_ = j.edits.Write(r.edit)
			_, _ = j.db.Exec(
				`INSERT INTO edits (session_id, player_id, x, y, delta, tool, at_unix_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.edit.SessionID, r.edit.PlayerID, r.edit.X, r.edit.Y, r.edit.HeightDelta, r.edit.Tool, r.edit.AtUnixMs,
			)
		case reqChat:
			_, _ = j.db.Exec(
				`INSERT INTO chat (session_id, player_id, text, at_unix_ms) VALUES (?, ?, ?, ?)`,
				r.sessionID, r.playerID, r.text, r.at.UnixMilli(),
			)
		case reqSessionEnd:
			_, _ = j.db.Exec(
				`INSERT INTO sessions (session_id, final_state, ended_at_ms) VALUES (?, ?, ?)
				 ON CONFLICT(session_id) DO UPDATE SET final_state = excluded.final_state, ended_at_ms = excluded.ended_at_ms`,
				r.sessionID, r.state, r.at.UnixMilli(),
			)
		}
	}
}

// jsonlZstdWriter appends JSON lines to an hourly-rotated zstd file.
type jsonlZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func newJSONLZstdWriter(baseDir, prefix string) *jsonlZstdWriter {
	return &jsonlZstdWriter{baseDir: baseDir, prefix: prefix}
}

func (w *jsonlZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *jsonlZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *jsonlZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *jsonlZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}
