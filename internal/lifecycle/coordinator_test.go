package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TarunvirBains/ao-no-out7ook/internal/clock"
	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/sched"
	"github.com/TarunvirBains/ao-no-out7ook/internal/state"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

// ---------------------------------------------------------------------------
// Fake collaborators
// ---------------------------------------------------------------------------

type fakeTracker struct {
	items      map[int]*models.WorkItem
	schemas    map[string]*models.TypeSchema
	stateSets  []string // "<id>:<state>"
	getItemErr error
	updateErr  error
}

func (f *fakeTracker) GetItem(ctx context.Context, id int) (*models.WorkItem, error) {
	if f.getItemErr != nil {
		return nil, f.getItemErr
	}
	item, ok := f.items[id]
	if !ok {
		return nil, &faults.RemoteError{Source: models.SourceTracker, Kind: faults.RemoteRejected, Status: 404, Err: errors.New("not found")}
	}
	return item, nil
}

func (f *fakeTracker) UpdateItemState(ctx context.Context, id int, newState string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.stateSets = append(f.stateSets, fmt.Sprintf("%d:%s", id, newState))
	return nil
}

func (f *fakeTracker) GetTypeSchema(ctx context.Context, itemType string) (*models.TypeSchema, error) {
	s, ok := f.schemas[itemType]
	if !ok {
		return nil, &faults.RemoteError{Source: models.SourceTracker, Kind: faults.RemoteRejected, Status: 404, Err: errors.New("no schema")}
	}
	return s, nil
}

func (f *fakeTracker) Query(ctx context.Context, filter models.ItemFilter) ([]models.WorkItem, error) {
	var out []models.WorkItem
	for _, item := range f.items {
		out = append(out, *item)
	}
	return out, nil
}

type fakeTimer struct {
	current  *models.Timer
	nextID   int
	calls    []string // ordered call log: "start:<id>", "stop"
	startErr error
	stopErr  error
	stopped  []*models.Timer
}

func (f *fakeTimer) Start(ctx context.Context, itemID int, comment string) (*models.Timer, error) {
	f.calls = append(f.calls, fmt.Sprintf("start:%d", itemID))
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.nextID++
	f.current = &models.Timer{ID: fmt.Sprintf("timer-%d", f.nextID), WorkItemID: itemID}
	return f.current, nil
}

func (f *fakeTimer) Stop(ctx context.Context, reason int) (*timer.StopResult, error) {
	f.calls = append(f.calls, "stop")
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	var res *timer.StopResult
	if f.current != nil {
		res = &timer.StopResult{WorklogID: 1, Duration: 1800, WorkItemID: f.current.WorkItemID}
		f.stopped = append(f.stopped, f.current)
		f.current = nil
	} else {
		res = &timer.StopResult{}
	}
	return res, nil
}

func (f *fakeTimer) GetCurrent(ctx context.Context) (*models.Timer, error) {
	return f.current, nil
}

func (f *fakeTimer) LogManual(ctx context.Context, itemID int, d time.Duration, comment string) (*models.Worklog, error) {
	return &models.Worklog{ID: 1, WorkItemID: itemID, Duration: int(d.Seconds())}, nil
}

func (f *fakeTimer) Worklogs(ctx context.Context, from, to time.Time) ([]models.Worklog, error) {
	return nil, nil
}

type fakeCalendar struct {
	events    []models.CalendarEvent
	created   []models.CalendarEvent
	nextID    int
	listErr   error
	createErr error
}

func (f *fakeCalendar) ListEvents(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, ev models.CalendarEvent) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	ev.ID = fmt.Sprintf("event-%d", f.nextID)
	f.created = append(f.created, ev)
	return ev.ID, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error { return nil }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

// Thursday, inside work hours.
var testNow = time.Date(2026, 1, 8, 9, 7, 0, 0, time.UTC)

type harness struct {
	co      *Coordinator
	tracker *fakeTracker
	timer   *fakeTimer
	cal     *fakeCalendar
	store   *state.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk, err := clock.NewWith(clockwork.NewFakeClockAt(testNow), clock.Options{
		Start: "08:30", End: "17:00", Timezone: "UTC", WeekdaysOnly: true,
	})
	require.NoError(t, err)

	tr := &fakeTracker{
		items: map[int]*models.WorkItem{
			12345: {ID: 12345, Title: "Fix flaky sync", State: "Active", Type: "Task"},
			67890: {ID: 67890, Title: "Add retry budget", State: "New", Type: "Task"},
		},
		schemas: map[string]*models.TypeSchema{
			"Task": {
				Type:         "Task",
				States:       []string{"New", "Active", "Blocked", "Done"},
				Transitions:  map[string][]string{"Active": {"Blocked", "Done"}},
				BlockedState: "Blocked",
			},
		},
	}
	tm := &fakeTimer{}
	cal := &fakeCalendar{}
	st := state.NewStore(t.TempDir(), nil)

	co := New(st, nil, tr, tm, cal, clk, sched.DefaultPolicy(), 24*time.Hour, nil)
	return &harness{co: co, tracker: tr, timer: tm, cal: cal, store: st}
}

func (h *harness) session(t *testing.T) *models.TaskSession {
	t.Helper()
	st, recovered := h.store.Read()
	require.Nil(t, recovered)
	return st.Session
}

// ---------------------------------------------------------------------------
// Start
// ---------------------------------------------------------------------------

func TestStart_HappyPath(t *testing.T) {
	h := newHarness(t)

	res, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	require.NotNil(t, res.Session)
	assert.Equal(t, 12345, res.Session.WorkItemID)
	assert.Equal(t, "Fix flaky sync", res.Session.Title)
	assert.Equal(t, "timer-1", res.Session.TimerID)
	assert.True(t, res.Session.ExpiresAt.After(res.Session.StartedAt))
	assert.Equal(t, 24*time.Hour, res.Session.ExpiresAt.Sub(res.Session.StartedAt))

	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, 12345, sess.WorkItemID)
}

func TestStart_WithFocusBlock(t *testing.T) {
	h := newHarness(t)

	res, err := h.co.Start(context.Background(), 12345, StartOptions{Focus: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	require.NotNil(t, res.Block)
	assert.True(t, res.Block.Committed())

	// 09:07 rounds up to 09:15 on an empty calendar.
	assert.Equal(t, time.Date(2026, 1, 8, 9, 15, 0, 0, time.UTC), res.Block.Start)
	require.Len(t, h.cal.created, 1)
	assert.Contains(t, h.cal.created[0].Subject, "12345")
	assert.Equal(t, 12345, h.cal.created[0].WorkItemID)
}

func TestStart_TimerFailureAbortsBeforeStateWrite(t *testing.T) {
	h := newHarness(t)
	h.timer.startErr = &faults.RemoteError{Source: models.SourceTimer, Kind: faults.RemoteNetwork, Err: errors.New("down")}

	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.Error(t, err)
	assert.Nil(t, h.session(t))
}

func TestStart_CalendarFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.cal.createErr = &faults.RemoteError{Source: models.SourceCalendar, Kind: faults.RemoteNetwork, Err: errors.New("down")}

	res, err := h.co.Start(context.Background(), 12345, StartOptions{Focus: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Error(t, res.FocusErr)

	// Timer kept, session written.
	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, "timer-1", sess.TimerID)
}

func TestStart_ActiveSessionRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	_, err = h.co.Start(context.Background(), 67890, StartOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.ExitInvalidArgs, faults.ExitCode(err))
	assert.Contains(t, err.Error(), "switch")
}

func TestStart_IdempotentTimer(t *testing.T) {
	h := newHarness(t)

	first, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	// Simulate state loss (crash) with the remote timer still running.
	_, err = h.store.MutateUnderLock(context.Background(), func(st *models.State, m *state.Mutation) error {
		st.Session = nil
		return nil
	})
	require.NoError(t, err)

	second, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)
	assert.True(t, second.TimerReused)
	assert.Equal(t, first.Session.TimerID, second.Session.TimerID)

	// Exactly one start call ever reached the service.
	assert.Equal(t, []string{"start:12345"}, h.timer.calls)
}

func TestStart_StopsConflictingTimer(t *testing.T) {
	h := newHarness(t)
	// A timer for a different item is left running remotely.
	h.timer.current = &models.Timer{ID: "timer-orphan", WorkItemID: 99999}

	res, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)
	assert.False(t, res.TimerReused)
	assert.Equal(t, []string{"stop", "start:12345"}, h.timer.calls)
}

func TestStart_DryRun(t *testing.T) {
	h := newHarness(t)

	res, err := h.co.Start(context.Background(), 12345, StartOptions{Focus: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRun, res.Outcome)
	require.NotNil(t, res.Block)
	assert.False(t, res.Block.Committed())

	// No remote mutations, no persisted session.
	assert.Empty(t, h.timer.calls)
	assert.Empty(t, h.cal.created)
	assert.Nil(t, h.session(t))
}

func TestStart_UnknownItem(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 55555, StartOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.ExitRemote, faults.ExitCode(err))
}

// ---------------------------------------------------------------------------
// Switch (Scenario C)
// ---------------------------------------------------------------------------

func TestSwitch_StopsOldTimerBeforeStartingNew(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)
	h.timer.calls = nil

	res, err := h.co.Switch(context.Background(), 67890, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Start.Outcome)
	assert.Equal(t, 12345, res.Previous.WorkItemID)
	assert.Equal(t, 30*time.Minute, res.PrevLogged)

	// Stop of the old timer strictly precedes the new start.
	assert.Equal(t, []string{"stop", "start:67890"}, h.timer.calls)

	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, 67890, sess.WorkItemID)
}

func TestSwitch_NoActiveSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Switch(context.Background(), 67890, StartOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.ExitInvalidArgs, faults.ExitCode(err))
}

func TestSwitch_StopFailureIsBestEffort(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	h.timer.stopErr = &faults.RemoteError{Source: models.SourceTimer, Kind: faults.RemoteNetwork, Err: errors.New("flaky")}

	res, err := h.co.Switch(context.Background(), 67890, StartOptions{NoTimer: true})
	require.NoError(t, err)
	assert.Error(t, res.StopErr)
	assert.Equal(t, OutcomePartial, res.Start.Outcome)

	// The new task still became current.
	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, 67890, sess.WorkItemID)
}

// ---------------------------------------------------------------------------
// Stop
// ---------------------------------------------------------------------------

func TestStop_LogsAndClears(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	res, err := h.co.Stop(context.Background(), StopOptions{})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, res.Logged)
	assert.Equal(t, 12345, res.Stopped.WorkItemID)
	assert.Nil(t, h.session(t))
}

func TestStop_NoSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Stop(context.Background(), StopOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.ExitInvalidArgs, faults.ExitCode(err))
}

func TestStop_RemoteFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	h.timer.stopErr = &faults.RemoteError{Source: models.SourceTimer, Kind: faults.RemoteNetwork, Err: errors.New("down")}

	_, err = h.co.Stop(context.Background(), StopOptions{})
	require.Error(t, err)

	// Local state untouched: the timer handle is not orphaned.
	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, "timer-1", sess.TimerID)
}

// ---------------------------------------------------------------------------
// Checkin
// ---------------------------------------------------------------------------

func TestCheckin_Continue_SchedulesNextBlock(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)
	before := h.session(t)

	res, err := h.co.Checkin(context.Background(), CheckinContinue, CheckinOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.NextBlock)
	assert.True(t, res.NextBlock.Committed())
	require.Len(t, h.cal.created, 1)

	// Expiry is not reset by a check-in.
	after := h.session(t)
	require.NotNil(t, after)
	assert.True(t, before.ExpiresAt.Equal(after.ExpiresAt))
	assert.Equal(t, before.TimerID, after.TimerID)
}

func TestCheckin_Continue_DryRunReportsPlanFailure(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	h.cal.listErr = errors.New("calendar offline")

	res, err := h.co.Checkin(context.Background(), CheckinContinue, CheckinOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDryRun, res.Outcome)
	assert.Nil(t, res.NextBlock)
	require.Error(t, res.FocusErr)
	assert.Contains(t, res.FocusErr.Error(), "calendar offline")
	assert.Empty(t, h.cal.created)
}

func TestCheckin_Blocked_PausesButRetainsSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	res, err := h.co.Checkin(context.Background(), CheckinBlocked, CheckinOptions{MarkBlocked: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, 30*time.Minute, res.Logged)
	assert.Equal(t, []string{"12345:Blocked"}, h.tracker.stateSets)

	// Paused, not done: session retained with the timer unbound.
	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, 12345, sess.WorkItemID)
	assert.Empty(t, sess.TimerID)
}

func TestCheckin_Blocked_TrackerFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	h.tracker.updateErr = &faults.RemoteError{Source: models.SourceTracker, Kind: faults.RemoteRejected, Status: 400, Err: errors.New("bad transition")}

	res, err := h.co.Checkin(context.Background(), CheckinBlocked, CheckinOptions{MarkBlocked: true})
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Error(t, res.TrackerErr)
	require.NotNil(t, h.session(t))
}

func TestCheckin_Stop_MatchesStop(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	res, err := h.co.Checkin(context.Background(), CheckinStop, CheckinOptions{})
	require.NoError(t, err)
	assert.Equal(t, CheckinStop, res.Action)
	assert.Equal(t, 30*time.Minute, res.Logged)
	assert.Nil(t, h.session(t))
}

func TestCheckin_UnknownAction(t *testing.T) {
	h := newHarness(t)
	_, err := h.co.Start(context.Background(), 12345, StartOptions{})
	require.NoError(t, err)

	_, err = h.co.Checkin(context.Background(), CheckinAction("nap"), CheckinOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.ExitInvalidArgs, faults.ExitCode(err))
}

// ---------------------------------------------------------------------------
// Expiry
// ---------------------------------------------------------------------------

func TestExpiredSession_ClearedAndReportedOnNextOperation(t *testing.T) {
	h := newHarness(t)

	// Plant a session that expired an hour ago, with a bound timer.
	started := testNow.Add(-25 * time.Hour)
	_, err := h.store.MutateUnderLock(context.Background(), func(st *models.State, m *state.Mutation) error {
		st.Session = &models.TaskSession{
			WorkItemID: 12345,
			Title:      "stale",
			StartedAt:  started,
			ExpiresAt:  started.Add(24 * time.Hour),
			TimerID:    "timer-stale",
		}
		return nil
	})
	require.NoError(t, err)
	h.timer.current = &models.Timer{ID: "timer-stale", WorkItemID: 12345}

	res, err := h.co.Start(context.Background(), 67890, StartOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.ExpiredPrior)
	assert.Equal(t, 12345, res.ExpiredPrior.WorkItemID)

	// The stale timer was stopped by the sweep before the new start.
	assert.Equal(t, "stop", h.timer.calls[0])

	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, 67890, sess.WorkItemID)
}

func TestExpiredSession_SweepLeavesForeignTimerRunning(t *testing.T) {
	h := newHarness(t)

	started := testNow.Add(-25 * time.Hour)
	_, err := h.store.MutateUnderLock(context.Background(), func(st *models.State, m *state.Mutation) error {
		st.Session = &models.TaskSession{
			WorkItemID: 12345,
			Title:      "stale",
			StartedAt:  started,
			ExpiresAt:  started.Add(24 * time.Hour),
			TimerID:    "timer-stale",
		}
		return nil
	})
	require.NoError(t, err)

	// A different timer was started out-of-band after the session expired.
	h.timer.current = &models.Timer{ID: "timer-fresh", WorkItemID: 67890}

	_, err = h.co.Stop(context.Background(), StopOptions{})
	require.Error(t, err) // sweep cleared the session, so there is nothing to stop

	// The sweep must not have touched the foreign timer.
	assert.Empty(t, h.timer.calls)
	require.NotNil(t, h.timer.current)
	assert.Equal(t, "timer-fresh", h.timer.current.ID)
}

// ---------------------------------------------------------------------------
// Invariants
// ---------------------------------------------------------------------------

func TestAtMostOneSessionEver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.co.Start(ctx, 12345, StartOptions{})
	require.NoError(t, err)
	_, err = h.co.Switch(ctx, 67890, StartOptions{})
	require.NoError(t, err)
	_, err = h.co.Checkin(ctx, CheckinBlocked, CheckinOptions{})
	require.NoError(t, err)

	sess := h.session(t)
	require.NotNil(t, sess)
	assert.Equal(t, 67890, sess.WorkItemID)
	assert.True(t, sess.ExpiresAt.After(sess.StartedAt))
}
