// internal/collect/journal.go
package collect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/signalnine/marvinous/internal/protocol"
)

// defaultPriority is syslog "info", used when an entry carries none
const defaultPriority = 6

// Journal reads the systemd journal through journalctl
type Journal struct {
	Runner      Runner
	Since       string // journalctl --since expression, e.g. "1 hour ago"
	PriorityMax int
	MaxEntries  int
	// Kernel selects -k; kernel messages are not priority filtered
	Kernel bool
}

func (j *Journal) Name() string {
	if j.Kernel {
		return "journal-kernel"
	}
	return "journal"
}

func (j *Journal) args() []string {
	if j.Kernel {
		return []string{"-k", "--since", j.Since, "--output=json", "--no-pager"}
	}
	return []string{"--since", j.Since, fmt.Sprintf("--priority=0..%d", j.PriorityMax), "--output=json", "--no-pager"}
}

func (j *Journal) Collect(ctx context.Context) ([]protocol.LogEntry, error) {
	if err := lookup(j.Runner, "journalctl"); err != nil {
		return nil, err
	}
	stdout, stderr, err := j.Runner.Run(ctx, "journalctl", j.args()...)
	if err != nil {
		return nil, toolError("journalctl", stderr, err)
	}
	return ParseJournal(stdout, j.MaxEntries), nil
}

type journalEntry struct {
	Realtime   string          `json:"__REALTIME_TIMESTAMP"`
	Priority   string          `json:"PRIORITY"`
	Unit       string          `json:"_SYSTEMD_UNIT"`
	Identifier string          `json:"SYSLOG_IDENTIFIER"`
	Message    json.RawMessage `json:"MESSAGE"`
}

// ParseJournal decodes journalctl --output=json (one object per line).
// Lines that don't decode, or lack a timestamp or message, are skipped.
// max <= 0 means no cap.
func ParseJournal(data []byte, max int) []protocol.LogEntry {
	var entries []protocol.LogEntry

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if max > 0 && len(entries) >= max {
			break
		}
		var raw journalEntry
		if err := json.Unmarshal(sc.Bytes(), &raw); err != nil {
			continue
		}
		entry, ok := raw.toLogEntry()
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (e journalEntry) toLogEntry() (protocol.LogEntry, bool) {
	micros, err := strconv.ParseInt(e.Realtime, 10, 64)
	if err != nil {
		return protocol.LogEntry{}, false
	}
	msg, ok := decodeMessage(e.Message)
	if !ok {
		return protocol.LogEntry{}, false
	}

	priority := defaultPriority
	if p, err := strconv.Atoi(e.Priority); err == nil {
		priority = p
	}
	unit := e.Unit
	if unit == "" {
		unit = e.Identifier
	}

	return protocol.LogEntry{
		Timestamp: time.UnixMicro(micros).UTC(),
		Priority:  priority,
		Unit:      unit,
		Message:   msg,
	}, true
}

// decodeMessage accepts MESSAGE as a string or, for non-UTF-8 payloads, as
// an array of byte values.
func decodeMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var b []int
	if err := json.Unmarshal(raw, &b); err != nil {
		return "", false
	}
	buf := make([]byte, 0, len(b))
	for _, v := range b {
		buf = append(buf, byte(v))
	}
	return string(buf), true
}
