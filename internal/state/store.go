package state

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

// Store binds the state file and its lock to one directory. The lock is the
// sole concurrency-control primitive: it is held for the full duration of a
// lifecycle operation, remote calls included. A second process blocks until
// the first finishes; a stale lock from a crash is operator-recoverable and
// never auto-removed here.
type Store struct {
	statePath string
	lockPath  string

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	// StopExpiredTimer, when set, is invoked best-effort for the timer
	// handle of an expired session cleared during the pre-operation sweep.
	// Errors are logged, not propagated.
	StopExpiredTimer func(ctx context.Context, timerID string) error

	logger *slog.Logger
}

// Mutation describes what a locked operation observed before and did beyond
// the caller's own changes.
type Mutation struct {
	// Recovered is non-nil when the state file was corrupt and moved aside.
	Recovered *faults.CorruptionError
	// ExpiredSession is the session cleared by the expiry sweep, if any.
	ExpiredSession *models.TaskSession
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		statePath: filepath.Join(dir, stateFile),
		lockPath:  filepath.Join(dir, lockFile),
		Now:       time.Now,
		logger:    logger,
	}
}

// StatePath returns the path of the persisted state record.
func (s *Store) StatePath() string { return s.statePath }

// LockPath returns the path of the lock token.
func (s *Store) LockPath() string { return s.lockPath }

// Read loads the current state without taking the lock. Read-only commands
// accept momentarily stale data in exchange for never blocking on a running
// mutation.
func (s *Store) Read() (*models.State, *faults.CorruptionError) {
	return Load(s.statePath)
}

// MutateUnderLock acquires the exclusive lock, loads the state, runs the
// expiry sweep, invokes fn, and persists the result only if fn succeeds.
// The lock is always released. On fn failure the loaded state is discarded;
// the on-disk state is untouched.
func (s *Store) MutateUnderLock(ctx context.Context, fn func(st *models.State, m *Mutation) error) (*Mutation, error) {
	if err := ensureDir(filepath.Dir(s.lockPath)); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, &faults.LockError{Path: s.lockPath, Err: err}
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("failed to release state lock", "path", s.lockPath, "error", err)
		}
	}()

	st, recovered := Load(s.statePath)

	m := &Mutation{Recovered: recovered}
	if recovered != nil {
		s.logger.Warn("recovered from corrupt state file",
			"path", recovered.Path, "backup", recovered.BackupPath, "error", recovered.Err)
	}

	// Expiry sweep: an expired session is cleared before the caller's
	// operation runs, inside the same lock scope.
	now := s.Now()
	if st.Session != nil && st.Session.Expired(now) {
		expired := *st.Session
		st.Session = nil
		m.ExpiredSession = &expired
		s.logger.Info("cleared expired task session",
			"work_item", expired.WorkItemID, "expired_at", expired.ExpiresAt)

		if expired.TimerID != "" && s.StopExpiredTimer != nil {
			if err := s.StopExpiredTimer(ctx, expired.TimerID); err != nil {
				s.logger.Warn("best-effort stop of expired timer failed",
					"timer_id", expired.TimerID, "error", err)
			}
		}
	}

	if err := fn(st, m); err != nil {
		return m, err
	}

	if err := Save(s.statePath, st); err != nil {
		return m, err
	}
	return m, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &faults.IOError{Op: "create state dir", Path: dir, Err: err}
	}
	return nil
}
