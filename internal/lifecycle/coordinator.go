// Package lifecycle coordinates start/switch/stop/check-in across the state
// store and the three remote services. Each operation is a short saga:
// ordered steps with an explicit best-effort-or-abort policy per step, since
// the remote services provide no cross-service transactionality.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TarunvirBains/ao-no-out7ook/internal/calendar"
	"github.com/TarunvirBains/ao-no-out7ook/internal/cache"
	"github.com/TarunvirBains/ao-no-out7ook/internal/clock"
	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/sched"
	"github.com/TarunvirBains/ao-no-out7ook/internal/state"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
	"github.com/TarunvirBains/ao-no-out7ook/internal/tracker"
)

// Outcome classifies a lifecycle operation's result. Partial means the
// primary effect landed but a secondary leg failed; callers decide whether
// to retry only the failed leg.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial"
	OutcomeDryRun  Outcome = "dry-run"
)

// Coordinator orchestrates lifecycle operations. It owns no persistent data;
// it borrows the store and cache and commits results back through the store
// before the lock is released.
type Coordinator struct {
	Store    *state.Store
	Cache    *cache.Cache
	Tracker  tracker.Client
	Timer    timer.Client
	Calendar calendar.Client
	Clock    clock.Clock
	Policy   sched.Policy
	Expiry   time.Duration

	Logger *slog.Logger
}

// New wires a Coordinator and installs the store's best-effort expired-timer
// stop hook.
func New(st *state.Store, c *cache.Cache, tr tracker.Client, tm timer.Client, cal calendar.Client, clk clock.Clock, p sched.Policy, expiry time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	co := &Coordinator{
		Store:    st,
		Cache:    c,
		Tracker:  tr,
		Timer:    tm,
		Calendar: cal,
		Clock:    clk,
		Policy:   p,
		Expiry:   expiry,
		Logger:   logger,
	}
	st.Now = clk.Now
	st.StopExpiredTimer = func(ctx context.Context, timerID string) error {
		// Only stop the timer the expired session owns. A timer started
		// out-of-band since then is someone else's and must keep running.
		cur, err := tm.GetCurrent(ctx)
		if err != nil {
			return err
		}
		if cur == nil || cur.ID != timerID {
			return nil
		}
		_, err = tm.Stop(ctx, 0)
		return err
	}
	return co
}

// StartOptions configures Start and the start leg of Switch.
type StartOptions struct {
	Focus   bool // also place a Focus Block in the calendar
	NoTimer bool // skip the remote timer entirely
	DryRun  bool
	Comment string
}

// StartResult reports what Start did (or, under dry-run, would do).
type StartResult struct {
	Outcome      Outcome
	Session      *models.TaskSession
	Block        *models.FocusBlock // proposed (dry-run) or committed
	FocusErr     error              // set when Outcome == OutcomePartial
	ExpiredPrior *models.TaskSession
	TimerReused  bool // an already-running timer for this item was adopted
}

// Start begins work on a work item: start (or adopt) the remote timer,
// optionally commit a Focus Block, then persist the new session. A timer
// failure aborts before any state is written; a Focus Block failure is
// surfaced as a partial success because logged time is worth more than a
// missed calendar entry.
func (c *Coordinator) Start(ctx context.Context, itemID int, opts StartOptions) (*StartResult, error) {
	item, err := c.Tracker.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("fetch work item %d: %w", itemID, err)
	}

	res := &StartResult{Outcome: OutcomeOK}
	m, err := c.Store.MutateUnderLock(ctx, func(st *models.State, mu *state.Mutation) error {
		if st.Session != nil {
			return faults.Validationf(
				"work item %d is already active; use 'ao switch %d' to change tasks",
				st.Session.WorkItemID, itemID)
		}
		return c.startLocked(ctx, st, item, opts, res)
	})
	if m != nil {
		res.ExpiredPrior = m.ExpiredSession
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// startLocked runs the start saga against an already-locked state. Shared
// by Start and Switch.
func (c *Coordinator) startLocked(ctx context.Context, st *models.State, item *models.WorkItem, opts StartOptions, res *StartResult) error {
	now := c.Clock.Now()

	if opts.DryRun {
		res.Outcome = OutcomeDryRun
		res.Session = &models.TaskSession{
			WorkItemID: item.ID,
			Title:      item.Title,
			StartedAt:  now,
			ExpiresAt:  now.Add(c.Expiry),
		}
		if opts.Focus {
			// Read-only preview; determinism guarantees the commit path
			// would pick the same slot given the same calendar.
			if blk, err := c.planBlock(ctx, item.ID, now); err == nil {
				res.Block = &blk
			} else {
				res.FocusErr = err
			}
		}
		return nil
	}

	var timerID string
	if !opts.NoTimer {
		id, reused, err := c.ensureTimer(ctx, item.ID, opts.Comment)
		if err != nil {
			return fmt.Errorf("start timer for item %d: %w", item.ID, err)
		}
		timerID = id
		res.TimerReused = reused
	}

	if opts.Focus {
		blk, err := c.commitBlock(ctx, item, now)
		if err != nil {
			// Timer is not rolled back; surface as partial.
			res.Outcome = OutcomePartial
			res.FocusErr = err
			c.Logger.Warn("focus block not created", "work_item", item.ID, "error", err)
		} else {
			res.Block = blk
			st.TouchCursor(models.SourceCalendar, now)
		}
	}

	st.Session = &models.TaskSession{
		WorkItemID: item.ID,
		Title:      item.Title,
		StartedAt:  now,
		ExpiresAt:  now.Add(c.Expiry),
		TimerID:    timerID,
	}
	st.TouchCursor(models.SourceTracker, now)
	if timerID != "" {
		st.TouchCursor(models.SourceTimer, now)
	}
	res.Session = st.Session

	c.invalidateAfterMutation(ctx, item.ID)
	return nil
}

// ensureTimer starts tracking for the item, adopting an already-running
// timer for the same item as success. A timer running for a different item
// is stopped first so an interrupted switch can never leave two timers.
func (c *Coordinator) ensureTimer(ctx context.Context, itemID int, comment string) (string, bool, error) {
	cur, err := c.Timer.GetCurrent(ctx)
	if err != nil {
		return "", false, err
	}
	if cur != nil {
		if cur.WorkItemID == itemID {
			return cur.ID, true, nil
		}
		c.Logger.Info("stopping timer left running for another item",
			"running_item", cur.WorkItemID, "new_item", itemID)
		if _, err := c.Timer.Stop(ctx, 0); err != nil {
			return "", false, fmt.Errorf("stop conflicting timer for item %d: %w", cur.WorkItemID, err)
		}
	}

	t, err := c.Timer.Start(ctx, itemID, comment)
	if err != nil {
		return "", false, err
	}
	return t.ID, false, nil
}

// planBlock finds the next free slot without touching the calendar.
func (c *Coordinator) planBlock(ctx context.Context, itemID int, now time.Time) (models.FocusBlock, error) {
	horizon := now.AddDate(0, 0, c.Policy.LookaheadDays+3)
	events, err := c.Calendar.ListEvents(ctx, now, horizon)
	if err != nil {
		return models.FocusBlock{}, err
	}
	return sched.FindSlot(events, c.Clock, now, itemID, c.Policy)
}

// commitBlock finds a slot and writes the Focus Block event.
func (c *Coordinator) commitBlock(ctx context.Context, item *models.WorkItem, now time.Time) (*models.FocusBlock, error) {
	blk, err := c.planBlock(ctx, item.ID, now)
	if err != nil {
		return nil, err
	}

	eventID, err := c.Calendar.CreateEvent(ctx, models.CalendarEvent{
		Subject:    fmt.Sprintf("Focus: %d - %s", item.ID, item.Title),
		Start:      blk.Start,
		End:        blk.End,
		Categories: []string{calendar.FocusCategory},
		WorkItemID: item.ID,
	})
	if err != nil {
		return nil, err
	}
	blk.EventID = eventID
	return &blk, nil
}

// SwitchResult reports a switch: the stopped previous session plus the
// start result for the new item.
type SwitchResult struct {
	Start      *StartResult
	Previous   *models.TaskSession
	PrevLogged time.Duration
	StopErr    error // best-effort: a failure to log is reported, not blocking
}

// Switch stops the current task and starts a new one as one locked
// operation, so an interrupted switch cannot leave two timers running. The
// old timer stop is issued strictly before the new timer start.
func (c *Coordinator) Switch(ctx context.Context, itemID int, opts StartOptions) (*SwitchResult, error) {
	item, err := c.Tracker.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("fetch work item %d: %w", itemID, err)
	}

	res := &SwitchResult{Start: &StartResult{Outcome: OutcomeOK}}
	m, err := c.Store.MutateUnderLock(ctx, func(st *models.State, mu *state.Mutation) error {
		if st.Session == nil {
			return faults.Validationf("no active task to switch from; use 'ao start %d'", itemID)
		}
		prev := *st.Session
		res.Previous = &prev

		if opts.DryRun {
			res.Start.Outcome = OutcomeDryRun
			return c.startLocked(ctx, st, item, opts, res.Start)
		}

		if prev.TimerID != "" {
			stop, err := c.Timer.Stop(ctx, 0)
			if err != nil {
				// Best-effort: losing one log entry must not block the new task.
				res.StopErr = err
				res.Start.Outcome = OutcomePartial
				c.Logger.Warn("failed to stop previous timer",
					"work_item", prev.WorkItemID, "timer_id", prev.TimerID, "error", err)
			} else if stop != nil {
				res.PrevLogged = stop.Logged()
			}
		}
		st.Session = nil

		if err := c.startLocked(ctx, st, item, opts, res.Start); err != nil {
			return err
		}
		if res.Start.Outcome == OutcomeOK && res.StopErr != nil {
			res.Start.Outcome = OutcomePartial
		}
		return nil
	})
	if m != nil {
		res.Start.ExpiredPrior = m.ExpiredSession
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// StopOptions configures Stop.
type StopOptions struct {
	NoLog  bool // discard elapsed time instead of logging it
	DryRun bool
}

// StopResult reports a stop.
type StopResult struct {
	Outcome      Outcome
	Stopped      *models.TaskSession
	Logged       time.Duration
	ExpiredPrior *models.TaskSession
}

// Stop ends the active session, stopping its timer and logging the elapsed
// duration unless suppressed. A failed remote stop aborts without clearing
// local state so the timer handle is never orphaned.
func (c *Coordinator) Stop(ctx context.Context, opts StopOptions) (*StopResult, error) {
	res := &StopResult{Outcome: OutcomeOK}
	m, err := c.Store.MutateUnderLock(ctx, func(st *models.State, mu *state.Mutation) error {
		if st.Session == nil {
			return faults.Validationf("no active task to stop")
		}
		sess := *st.Session
		res.Stopped = &sess

		if opts.DryRun {
			res.Outcome = OutcomeDryRun
			return nil
		}

		if sess.TimerID != "" {
			stop, err := c.Timer.Stop(ctx, stopReason(opts.NoLog))
			if err != nil {
				return fmt.Errorf("stop timer for item %d: %w", sess.WorkItemID, err)
			}
			if stop != nil && !opts.NoLog {
				res.Logged = stop.Logged()
			}
		}

		st.Session = nil
		st.TouchCursor(models.SourceTimer, c.Clock.Now())
		c.invalidateAfterMutation(ctx, sess.WorkItemID)
		return nil
	})
	if m != nil {
		res.ExpiredPrior = m.ExpiredSession
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// stopReason maps the log/discard choice onto the timer service's stop
// reason code: 0 logs the tracked span, 1 discards it.
func stopReason(discard bool) int {
	if discard {
		return 1
	}
	return 0
}

// CheckinAction is the user's response after a Focus Block ends.
type CheckinAction string

const (
	CheckinContinue CheckinAction = "continue"
	CheckinBlocked  CheckinAction = "blocked"
	CheckinStop     CheckinAction = "stop"
)

// CheckinOptions configures Checkin.
type CheckinOptions struct {
	// MarkBlocked also transitions the tracker item to its blocked state.
	MarkBlocked bool
	DryRun      bool
}

// CheckinResult reports a check-in.
type CheckinResult struct {
	Outcome      Outcome
	Action       CheckinAction
	Session      *models.TaskSession
	NextBlock    *models.FocusBlock // continue: the newly committed block
	Logged       time.Duration      // blocked/stop: time logged
	TrackerErr   error              // blocked: item transition failure (partial)
	FocusErr     error              // continue dry-run: why no block could be planned
	ExpiredPrior *models.TaskSession
}

// Checkin handles the continue/blocked/stop response after a Focus Block.
// A continue never resets the session expiry: only a fresh start or switch
// does.
func (c *Coordinator) Checkin(ctx context.Context, action CheckinAction, opts CheckinOptions) (*CheckinResult, error) {
	if action == CheckinStop {
		stop, err := c.Stop(ctx, StopOptions{DryRun: opts.DryRun})
		res := &CheckinResult{Action: action}
		if stop != nil {
			res.Outcome = stop.Outcome
			res.Session = stop.Stopped
			res.Logged = stop.Logged
			res.ExpiredPrior = stop.ExpiredPrior
		}
		return res, err
	}

	res := &CheckinResult{Outcome: OutcomeOK, Action: action}
	m, err := c.Store.MutateUnderLock(ctx, func(st *models.State, mu *state.Mutation) error {
		if st.Session == nil {
			return faults.Validationf("no active task to check in on")
		}
		sess := st.Session
		res.Session = sess

		switch action {
		case CheckinContinue:
			return c.checkinContinue(ctx, sess, opts, res)
		case CheckinBlocked:
			return c.checkinBlocked(ctx, st, opts, res)
		default:
			return faults.Validationf("unknown check-in action %q (want continue, blocked, or stop)", action)
		}
	})
	if m != nil {
		res.ExpiredPrior = m.ExpiredSession
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

func (c *Coordinator) checkinContinue(ctx context.Context, sess *models.TaskSession, opts CheckinOptions, res *CheckinResult) error {
	now := c.Clock.Now()
	if opts.DryRun {
		res.Outcome = OutcomeDryRun
		if blk, err := c.planBlock(ctx, sess.WorkItemID, now); err == nil {
			res.NextBlock = &blk
		} else {
			res.FocusErr = err
		}
		return nil
	}

	item := &models.WorkItem{ID: sess.WorkItemID, Title: sess.Title}
	blk, err := c.commitBlock(ctx, item, now)
	if err != nil {
		return fmt.Errorf("schedule next focus block: %w", err)
	}
	res.NextBlock = blk
	return nil
}

// checkinBlocked pauses the task: the timer stops and logs, the tracker
// item optionally moves to its blocked state, but the session is retained.
// The session expiry is deliberately left unchanged.
func (c *Coordinator) checkinBlocked(ctx context.Context, st *models.State, opts CheckinOptions, res *CheckinResult) error {
	sess := st.Session
	if opts.DryRun {
		res.Outcome = OutcomeDryRun
		return nil
	}

	if sess.TimerID != "" {
		stop, err := c.Timer.Stop(ctx, 0)
		if err != nil {
			return fmt.Errorf("stop timer for item %d: %w", sess.WorkItemID, err)
		}
		if stop != nil {
			res.Logged = stop.Logged()
		}
		sess.TimerID = ""
		st.TouchCursor(models.SourceTimer, c.Clock.Now())
	}

	if opts.MarkBlocked {
		if err := c.markBlocked(ctx, sess.WorkItemID); err != nil {
			res.Outcome = OutcomePartial
			res.TrackerErr = err
			c.Logger.Warn("could not mark item blocked", "work_item", sess.WorkItemID, "error", err)
		}
	}

	c.invalidateAfterMutation(ctx, sess.WorkItemID)
	return nil
}

// markBlocked transitions the item to its type's blocked-equivalent state.
func (c *Coordinator) markBlocked(ctx context.Context, itemID int) error {
	item, err := c.Tracker.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	schema, err := c.Tracker.GetTypeSchema(ctx, item.Type)
	if err != nil {
		return err
	}
	if schema.BlockedState == "" {
		return faults.Validationf("type %q has no blocked-equivalent state", item.Type)
	}
	if item.State == schema.BlockedState {
		return nil
	}
	return c.Tracker.UpdateItemState(ctx, itemID, schema.BlockedState)
}

func (c *Coordinator) invalidateAfterMutation(ctx context.Context, itemID int) {
	if c.Cache == nil {
		return
	}
	if err := c.Cache.Invalidate(ctx, models.SourceTimer, "current"); err != nil {
		c.Logger.Warn("cache invalidation failed", "source", "timer", "error", err)
	}
	if err := c.Cache.Invalidate(ctx, models.SourceTracker, fmt.Sprintf("item/%d", itemID)); err != nil {
		c.Logger.Warn("cache invalidation failed", "source", "tracker", "error", err)
	}
}
