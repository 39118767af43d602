package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/schedule"
	"github.com/dokzlo13/relayd/internal/scheduler"
	"github.com/dokzlo13/relayd/internal/store"
)

// fakeBackend keeps schedules in memory.
type fakeBackend struct {
	schedules map[int64]schedule.Schedule
	nextID    int64
	config    map[string]string
	commands  []device.Command
	history   struct {
		scheduleID int64
		limit      int
	}
	readyErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		schedules: make(map[int64]schedule.Schedule),
		config:    map[string]string{"esp32_url": "http://192.168.1.100"},
	}
}

func (f *fakeBackend) List(context.Context) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	for _, s := range f.schedules {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeBackend) Get(_ context.Context, id int64) (*schedule.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "schedule %d", id)
	}
	return &s, nil
}

func (f *fakeBackend) Create(_ context.Context, fields schedule.Fields) (*schedule.Schedule, error) {
	f.nextID++
	s := fields.Apply(f.nextID)
	if err := schedule.Validate(s); err != nil {
		f.nextID--
		return nil, err
	}
	f.schedules[s.ID] = s
	return &s, nil
}

func (f *fakeBackend) Update(_ context.Context, id int64, fields schedule.Fields) (*schedule.Schedule, error) {
	if _, ok := f.schedules[id]; !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "schedule %d", id)
	}
	s := fields.Apply(id)
	if err := schedule.Validate(s); err != nil {
		return nil, err
	}
	f.schedules[id] = s
	return &s, nil
}

func (f *fakeBackend) Delete(_ context.Context, id int64) error {
	delete(f.schedules, id)
	return nil
}

func (f *fakeBackend) Jobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{ID: "schedule_1", Trigger: "18:30 mon", NextRun: time.Date(2024, 1, 8, 18, 30, 0, 0, time.UTC)}}
}

func (f *fakeBackend) Config(context.Context) (map[string]string, error) { return f.config, nil }

func (f *fakeBackend) SaveConfig(_ context.Context, values map[string]string) error {
	for k, v := range values {
		f.config[k] = v
	}
	return nil
}

func (f *fakeBackend) SendCommand(_ context.Context, cmd device.Command) (device.Result, error) {
	if f.config["esp32_url"] == "" {
		return device.Result{}, device.ErrNoDeviceURL
	}
	f.commands = append(f.commands, cmd)
	return device.Result{
		Relay: device.StepResult{Outcome: device.OutcomeUnchanged},
		Strip: device.StepResult{Outcome: device.OutcomeSent},
	}, nil
}

func (f *fakeBackend) History(_ context.Context, scheduleID int64, limit int) ([]*ledger.Entry, error) {
	f.history.scheduleID = scheduleID
	f.history.limit = limit
	return nil, nil
}

func (f *fakeBackend) Ready(context.Context) error { return f.readyErr }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSchedules_CreateGetUpdateDelete(t *testing.T) {
	b := newFakeBackend()
	r := NewRouter(b, nil, nil)

	w := do(t, r, http.MethodPost, "/api/schedules", `{"name":"Evening","time":"18:30","days":"0,1,2,3,4","relay":0,"brightness":128,"color":"#112233"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created schedule.Schedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.False(t, created.Relay)
	assert.True(t, created.Strip)
	assert.Equal(t, 128, created.Brightness)

	w = do(t, r, http.MethodGet, "/api/schedules/1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPut, "/api/schedules/1", `{"name":"Evening","time":"19:00","enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, b.schedules[1].Enabled)
	assert.Equal(t, "19:00", b.schedules[1].Time)

	w = do(t, r, http.MethodDelete, "/api/schedules/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, "/api/schedules/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/api/schedules/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedules_Errors(t *testing.T) {
	r := NewRouter(newFakeBackend(), nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "invalid_time", method: http.MethodPost, path: "/api/schedules", body: `{"name":"x","time":"25:00"}`, status: http.StatusBadRequest},
		{name: "missing_name", method: http.MethodPost, path: "/api/schedules", body: `{"time":"10:00"}`, status: http.StatusBadRequest},
		{name: "bad_json", method: http.MethodPost, path: "/api/schedules", body: `{"name":`, status: http.StatusBadRequest},
		{name: "bad_flag", method: http.MethodPost, path: "/api/schedules", body: `{"name":"x","time":"10:00","relay":"yes"}`, status: http.StatusBadRequest},
		{name: "update_missing", method: http.MethodPut, path: "/api/schedules/42", body: `{"name":"x","time":"10:00"}`, status: http.StatusNotFound},
		{name: "bad_id", method: http.MethodGet, path: "/api/schedules/abc", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSchedules_ListEmptyIsArray(t *testing.T) {
	r := NewRouter(newFakeBackend(), nil, nil)

	w := do(t, r, http.MethodGet, "/api/schedules", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestJobs(t *testing.T) {
	r := NewRouter(newFakeBackend(), nil, nil)

	w := do(t, r, http.MethodGet, "/api/jobs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"schedule_1","trigger":"18:30 mon","next_run":"2024-01-08T18:30:00Z"}]`, w.Body.String())
}

func TestConfig_GetAndSave(t *testing.T) {
	b := newFakeBackend()
	r := NewRouter(b, nil, nil)

	w := do(t, r, http.MethodPost, "/api/config", `{"esp32_url":"http://10.0.0.5"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"esp32_url":"http://10.0.0.5"}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/config", "")
	assert.JSONEq(t, `{"esp32_url":"http://10.0.0.5"}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTestCommand(t *testing.T) {
	b := newFakeBackend()
	r := NewRouter(b, nil, nil)

	w := do(t, r, http.MethodPost, "/api/test/on", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, b.commands, 1)
	assert.Equal(t, device.Command{Action: schedule.ActionOn, Relay: true, Strip: true, Brightness: 255, Color: "#ffffff"}, b.commands[0])

	w = do(t, r, http.MethodPost, "/api/test/off", `{"relay":false,"brightness":10,"color":"00ff00"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, b.commands, 2)
	assert.Equal(t, device.Command{Action: schedule.ActionOff, Relay: false, Strip: true, Brightness: 10, Color: "00ff00"}, b.commands[1])

	w = do(t, r, http.MethodPost, "/api/test/blink", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/test/on", `{"color":"red"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	b.config["esp32_url"] = ""
	w = do(t, r, http.MethodPost, "/api/test/on", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, b.commands, 2)
}

func TestHistory_Limit(t *testing.T) {
	b := newFakeBackend()
	r := NewRouter(b, nil, nil)

	w := do(t, r, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, DefaultHistoryLimit, b.history.limit)
	assert.Zero(t, b.history.scheduleID)

	w = do(t, r, http.MethodGet, "/api/history?limit=5&schedule_id=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, b.history.limit)
	assert.Equal(t, int64(3), b.history.scheduleID)

	w = do(t, r, http.MethodGet, "/api/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	b := newFakeBackend()
	r := NewRouter(b, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("relayd_jobs_active 0\n"))
	}), nil)

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/ready", "").Code)

	w := do(t, r, http.MethodGet, "/metrics", "")
	assert.Contains(t, w.Body.String(), "relayd_jobs_active")

	b.readyErr = errors.New("database is locked")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/ready", "").Code)
}

func TestCORS(t *testing.T) {
	r := NewRouter(newFakeBackend(), nil, []string{"http://panel.local"})

	req := httptest.NewRequest(http.MethodGet, "/api/schedules", nil)
	req.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://panel.local", w.Header().Get("Access-Control-Allow-Origin"))
}
