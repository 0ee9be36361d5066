package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
)

func TestGetItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/myproj/workitems/12345", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.WorkItem{
			ID: 12345, Title: "Fix race in watcher", State: "Active", Type: "Task",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "myproj", "pat")
	item, err := c.GetItem(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, "Fix race in watcher", item.Title)
	assert.Equal(t, "Active", item.State)
}

func TestGetItem_InvalidID(t *testing.T) {
	c := New("http://unused", "myproj", "pat")
	_, err := c.GetItem(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, faults.ExitInvalidArgs, faults.ExitCode(err))
}

func TestUpdateItemState(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/myproj/workitems/7/state", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	c := New(srv.URL, "myproj", "pat")
	require.NoError(t, c.UpdateItemState(context.Background(), 7, "Blocked"))
	assert.Equal(t, "Blocked", gotBody["state"])
}

func TestGetTypeSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/myproj/workitemtypes/Task", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.TypeSchema{
			Type:         "Task",
			States:       []string{"New", "Active", "Blocked", "Done"},
			Transitions:  map[string][]string{"Active": {"Blocked", "Done"}},
			BlockedState: "Blocked",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "myproj", "pat")
	schema, err := c.GetTypeSchema(context.Background(), "Task")
	require.NoError(t, err)
	assert.Equal(t, "Blocked", schema.BlockedState)
	assert.True(t, schema.CanTransition("Active", "Blocked"))
	assert.False(t, schema.CanTransition("Active", "New"))
}

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Active", q.Get("state"))
		assert.Equal(t, "me", q.Get("assignedTo"))
		assert.Equal(t, "50", q.Get("limit"))
		_ = json.NewEncoder(w).Encode([]models.WorkItem{
			{ID: 1, Title: "one"},
			{ID: 2, Title: "two"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "myproj", "pat")
	items, err := c.Query(context.Background(), models.ItemFilter{State: "Active", AssignedTo: "me"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
