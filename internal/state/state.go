// Package state owns the persisted record of the active task and the
// cross-process lock that serializes every mutation of it.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

const (
	stateFile = "state.json"
	lockFile  = "state.lock"
)

// Load reads the state file at path. A missing or empty file yields a fresh
// empty state. An unparseable file is renamed aside (suffix .corrupt-<unix>)
// and an empty state is returned together with a CorruptionError describing
// the recovery; execution continues rather than aborting.
func Load(path string) (*models.State, *faults.CorruptionError) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return models.NewState(), nil
	}
	if err != nil {
		// Unreadable for reasons other than absence gets the same recovery
		// treatment as a parse failure.
		return models.NewState(), backupAside(path, err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return models.NewState(), nil
	}

	var st models.State
	if err := json.Unmarshal(data, &st); err != nil {
		return models.NewState(), backupAside(path, err)
	}
	if st.SyncCursors == nil {
		st.SyncCursors = make(map[models.Source]time.Time)
	}
	return &st, nil
}

func backupAside(path string, cause error) *faults.CorruptionError {
	backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, backup); err != nil {
		backup = ""
	}
	return &faults.CorruptionError{Path: path, BackupPath: backup, Err: cause}
}

// Save writes the state atomically: a temp file in the same directory is
// renamed over the target so a concurrent reader never sees a half-written
// file.
func Save(path string, st *models.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &faults.IOError{Op: "create state dir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, stateFile+".tmp-*")
	if err != nil {
		return &faults.IOError{Op: "create temp state", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &faults.IOError{Op: "write state", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &faults.IOError{Op: "close state", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &faults.IOError{Op: "replace state", Path: path, Err: err}
	}
	return nil
}
