package timer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

func TestStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracking/start", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 12345, req["workItemId"])
		_ = json.NewEncoder(w).Encode(models.Timer{
			ID: "timer-abc", WorkItemID: 12345, StartedAt: time.Now().UTC(),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "pat")
	tm, err := c.Start(context.Background(), 12345, "")
	require.NoError(t, err)
	assert.Equal(t, "timer-abc", tm.ID)
}

func TestStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracking/stop/0", r.URL.Path)
		_ = json.NewEncoder(w).Encode(StopResult{WorklogID: 9, Duration: 2700, WorkItemID: 12345})
	}))
	defer srv.Close()

	c := New(srv.URL, "pat")
	res, err := c.Stop(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, res.Logged())
}

func TestGetCurrent_NoTimer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()

	c := New(srv.URL, "pat")
	tm, err := c.GetCurrent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tm)
}

func TestGetCurrent_Running(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Timer{ID: "timer-1", WorkItemID: 42})
	}))
	defer srv.Close()

	c := New(srv.URL, "pat")
	tm, err := c.GetCurrent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, 42, tm.WorkItemID)
}

func TestLogManual(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 5400, req["duration"])
		_ = json.NewEncoder(w).Encode(models.Worklog{ID: 1, WorkItemID: 7, Duration: 5400})
	}))
	defer srv.Close()

	c := New(srv.URL, "pat")
	w, err := c.LogManual(context.Background(), 7, 90*time.Minute, "pairing")
	require.NoError(t, err)
	assert.Equal(t, 5400, w.Duration)
}

func TestLogManual_Invalid(t *testing.T) {
	c := New("http://unused", "pat")
	_, err := c.LogManual(context.Background(), 7, -time.Hour, "")
	assert.Error(t, err)
	_, err = c.LogManual(context.Background(), 0, time.Hour, "")
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1h 1m", FormatDuration(61*time.Minute))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "0m", FormatDuration(30*time.Second))
	assert.Equal(t, "2h 0m", FormatDuration(2*time.Hour))
}
