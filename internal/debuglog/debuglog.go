// Package debuglog writes wire-level diagnostics to a JSONL file. It is
// opt-in: a nil *Logger is valid and discards everything, so call sites never
// need to guard.
package debuglog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends timestamped entries to a single file.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// Open creates (or appends to) the log file at path, creating parent
// directories as needed.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Logger{file: f, writer: bufio.NewWriter(f)}, nil
}

// Logf records one entry. Safe on a nil logger.
func (l *Logger) Logf(kind, format string, args ...any) {
	if l == nil {
		return
	}
	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write(data)
	l.writer.WriteByte('\n')
	l.writer.Flush()
}

// Close flushes and closes the underlying file. Safe on a nil logger.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}
