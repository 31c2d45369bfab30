// internal/state/state.go
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/signalnine/marvinous/internal/fsutil"
	"github.com/signalnine/marvinous/internal/protocol"
)

// Load reads the previous snapshot from path.
// Returns nil, nil if the file doesn't exist (first run).
// A file that exists but cannot be parsed is an error; callers decide
// whether to carry on without it.
func Load(path string) (*protocol.Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("no previous state file", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var snap protocol.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}

	slog.Info("loaded previous state", "path", path, "taken_at", snap.Timestamp)
	return &snap, nil
}

// Save replaces the snapshot at path.
// Creates parent directories if needed.
func Save(path string, snap *protocol.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	slog.Info("saved current state", "path", path)
	return nil
}
