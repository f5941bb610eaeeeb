package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusgate/internal/jobs"
	"campusgate/internal/schedule"
	"campusgate/internal/syncer"
)

type fakeScheduler struct {
	triggerErr error
	updated    []string
}

func (f *fakeScheduler) Schedules(context.Context) ([]schedule.View, error) {
	return []schedule.View{{Slot: 1, Time: "06:00", IsActive: true, Timezone: "UTC+08:00"}}, nil
}

func (f *fakeScheduler) UpdateSchedule(_ context.Context, slot int, clock string) (schedule.UpdateResult, error) {
	if slot != 1 && slot != 2 {
		return schedule.UpdateResult{}, schedule.ErrUnknownSlot
	}
	if _, _, err := schedule.ParseClock(clock); err != nil {
		return schedule.UpdateResult{}, err
	}
	f.updated = append(f.updated, clock)
	return schedule.UpdateResult{Message: "ok", Slot: slot, Time: clock, Timezone: "UTC+08:00"}, nil
}

func (f *fakeScheduler) TriggerManual(context.Context) (schedule.TriggerResult, error) {
	if f.triggerErr != nil {
		return schedule.TriggerResult{Message: f.triggerErr.Error()}, f.triggerErr
	}
	return schedule.TriggerResult{Success: true, Message: "queued", QueueID: "q-1", Position: 1}, nil
}

type fakeSyncer struct{}

func (fakeSyncer) TestConnection(context.Context) syncer.ConnectionReport {
	return syncer.ConnectionReport{Success: false, SQLServerConnected: true, Details: map[string]string{"biostar": "down"}}
}

func (fakeSyncer) Deactivate(_ context.Context, ids []string) (syncer.DeactivateResult, error) {
	if len(ids) == 0 {
		return syncer.DeactivateResult{}, syncer.ErrNoIDs
	}
	return syncer.DeactivateResult{JobName: "deactivate-1", Archived: len(ids), NotFound: []string{}}, nil
}

func newRouter(t *testing.T, sched *fakeScheduler, history jobs.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(sched, fakeSyncer{}, history).Register(r.Group("/v1"))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestListSchedules(t *testing.T) {
	r := newRouter(t, &fakeScheduler{}, jobs.NewMemoryStore())
	w := do(r, http.MethodGet, "/v1/sync/schedules", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Schedules []schedule.View `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Schedules, 1)
	assert.Equal(t, "06:00", body.Schedules[0].Time)
}

func TestUpdateSchedule(t *testing.T) {
	sched := &fakeScheduler{}
	r := newRouter(t, sched, jobs.NewMemoryStore())

	w := do(r, http.MethodPut, "/v1/sync/schedules/2", `{"time":"19:30"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"19:30"}, sched.updated)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/v1/sync/schedules/2", `{"time":"7pm"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/v1/sync/schedules/3", `{"time":"07:00"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/v1/sync/schedules/x", `{"time":"07:00"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/v1/sync/schedules/1", `{}`).Code)
}

func TestTrigger(t *testing.T) {
	sched := &fakeScheduler{}
	r := newRouter(t, sched, jobs.NewMemoryStore())

	w := do(r, http.MethodPost, "/v1/sync/trigger", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var res schedule.TriggerResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "q-1", res.QueueID)

	sched.triggerErr = schedule.ErrJobProcessing
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/v1/sync/trigger", "").Code)

	sched.triggerErr = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/v1/sync/trigger", "").Code)
}

func TestTestConnectionReportsFailure(t *testing.T) {
	r := newRouter(t, &fakeScheduler{}, jobs.NewMemoryStore())
	w := do(r, http.MethodGet, "/v1/sync/test-connection", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"sqlServerConnected":true`)
}

func TestListJobs(t *testing.T) {
	history := jobs.NewMemoryStore()
	_, err := history.Start(context.Background(), "scheduled-sync-1", time.Now())
	require.NoError(t, err)

	r := newRouter(t, &fakeScheduler{}, history)
	w := do(r, http.MethodGet, "/v1/sync/jobs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "scheduled-sync-1")
}

func TestDeactivate(t *testing.T) {
	r := newRouter(t, &fakeScheduler{}, jobs.NewMemoryStore())

	w := do(r, http.MethodPost, "/v1/students/deactivate", `{"ids":["1001","1002"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"archived":2`)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/v1/students/deactivate", `{"ids":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/v1/students/deactivate", `not json`).Code)
}
