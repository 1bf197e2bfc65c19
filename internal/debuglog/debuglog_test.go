package debuglog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Logf("ws", "anything %d", 1)
	if err := l.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "debug.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Logf("ws", "connected to %s", "ws://host/ws")
	l.Logf("resync", "start: attach")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries=%d, want 2", len(entries))
	}
	if entries[0].Kind != "ws" || entries[0].Message != "connected to ws://host/ws" {
		t.Fatalf("entry 0: %+v", entries[0])
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatal("timestamp not parsed")
	}
	if out := entries[1].Format(); out == "" {
		t.Fatal("format produced nothing")
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.jsonl")
	content := `{"timestamp": "2026-08-28T10:00:00Z", "kind": "ws", "message": "good"}
this line is garbage
{"timestamp": "not a time", "kind": "ws", "message": "bad ts"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "good" {
		t.Fatalf("entries: %+v", entries)
	}
}
