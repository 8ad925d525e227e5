package journal

import (
	"sync"
	"testing"
	"time"

	"groundcrew/internal/protocol"
)

func TestJournal_RecordAndIndex(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 5; i++ {
		j.RecordEdit(protocol.TerrainEdit{
			SessionID:   "s1",
			PlayerID:    "p1",
			X:           i,
			Y:           i,
			HeightDelta: -1.5,
			Tool:        "excavator",
			AtUnixMs:    int64(1000 + i),
		})
	}
	j.RecordEdit(protocol.TerrainEdit{SessionID: "s2", PlayerID: "p2", AtUnixMs: 2000})
	j.RecordChat("s1", "p1", "hello", time.UnixMilli(3000))
	j.RecordSessionEnd("s1", "completed", time.UnixMilli(4000))

	// Close drains the async writer before flushing.
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()

	n, err := j2.EditCount("s1")
	if err != nil {
		t.Fatalf("edit count: %v", err)
	}
	if n != 5 {
		t.Fatalf("edit count = %d, want 5", n)
	}
	n, err = j2.EditCount("s2")
	if err != nil {
		t.Fatalf("edit count: %v", err)
	}
	if n != 1 {
		t.Fatalf("edit count = %d, want 1", n)
	}
}

func TestJournal_CloseIsIdempotent(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	// Recording after close is a silent no-op, not a panic.
	j.RecordEdit(protocol.TerrainEdit{SessionID: "s1"})
}

func TestJournal_ConcurrentRecordsDuringClose(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Relay handler goroutines record while the server shuts the journal
	// down; late records must degrade to no-ops, never panic.
	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < 200; i++ {
				j.RecordEdit(protocol.TerrainEdit{SessionID: "s1", PlayerID: "p1", AtUnixMs: int64(g*1000 + i)})
				j.RecordChat("s1", "p1", "hi", time.UnixMilli(int64(i)))
			}
		}(g)
	}
	close(start)
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
}

func TestOpen_RejectsEmptyDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
