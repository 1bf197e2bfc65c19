package debuglog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Entry is one parsed log line.
type Entry struct {
	Timestamp time.Time
	Kind      string
	Message   string
}

// Read parses the JSONL log at path. Malformed lines are skipped; a log being
// appended to concurrently still reads cleanly up to the last complete line.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var raw entry
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Timestamp: ts, Kind: raw.Kind, Message: raw.Message})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Format renders an entry as a single aligned line for terminal display.
func (e Entry) Format() string {
	return fmt.Sprintf("%s  %-10s %s", e.Timestamp.Local().Format("15:04:05.000"), e.Kind, e.Message)
}
