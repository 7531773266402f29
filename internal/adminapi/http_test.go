package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"punchd/internal/iclock"
	"punchd/internal/models"
	"punchd/internal/repo"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	store  *repo.MemStore
	reg    *iclock.Registry
	router *mux.Router
}

func newAPIFixture(queueCap int) *apiFixture {
	store := repo.NewMemStore()
	reg := iclock.NewRegistry(queueCap)
	ctrl := iclock.NewController(reg, store, time.UTC)
	router := mux.NewRouter()
	iclock.RegisterRoutes(router, ctrl)
	NewHTTP(store, reg, ctrl, nil, time.UTC).RegisterRoutes(router)
	return &apiFixture{store: store, reg: reg, router: router}
}

func (f *apiFixture) call(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func TestAddUserQueuesCommand(t *testing.T) {
	f := newAPIFixture(10)
	f.reg.Touch("K60", "ATTLOG", "")

	rr := f.call(t, http.MethodPost, "/api/v1/device/add-user",
		`{"pin":"7","name":"Ivanov","card":"123456"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	cmds := f.reg.Peek("K60")
	require.Len(t, cmds, 1)
	assert.Equal(t, "C:7:DATA USER PIN=7\tName=Ivanov\tPri=0\tCard=123456", cmds[0].Text)
}

func TestAddUserTruncatesLongName(t *testing.T) {
	f := newAPIFixture(10)
	long := strings.Repeat("x", 40)

	rr := f.call(t, http.MethodPost, "/api/v1/device/add-user",
		`{"pin":"7","name":"`+long+`","device_sn":"K60"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	cmds := f.reg.Peek("K60")
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0].Text, "Name="+strings.Repeat("x", 24)+"\t")
}

func TestAddUserNoDevices(t *testing.T) {
	f := newAPIFixture(10)
	rr := f.call(t, http.MethodPost, "/api/v1/device/add-user", `{"pin":"7","name":"Ivanov"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteUserCommand(t *testing.T) {
	f := newAPIFixture(10)
	rr := f.call(t, http.MethodPost, "/api/v1/device/delete-user",
		`{"pin":"7","device_sn":"K60"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	cmds := f.reg.Peek("K60")
	require.Len(t, cmds, 1)
	assert.Equal(t, "C:7:DATA DEL USER PIN=7", cmds[0].Text)
}

func TestEnqueueRawQueueFull(t *testing.T) {
	f := newAPIFixture(1)
	rr := f.call(t, http.MethodPost, "/api/v1/devices/K60/commands", `{"command":"C:1:REBOOT"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = f.call(t, http.MethodPost, "/api/v1/devices/K60/commands", `{"command":"C:2:REBOOT"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestWindowCRUDAndWarnings(t *testing.T) {
	f := newAPIFixture(10)

	rr := f.call(t, http.MethodPost, "/api/v1/time-windows",
		`{"punch_type":"CHECK_IN","start_time":"06:00","end_time":"10:00","priority":1}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	first := decode(t, rr)
	assert.Empty(t, first["warnings"])

	// пересекающееся окно создаётся, но с предупреждением
	rr = f.call(t, http.MethodPost, "/api/v1/time-windows",
		`{"punch_type":"OVERTIME_IN","start_time":"09:00","end_time":"12:00","priority":2}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	second := decode(t, rr)
	require.Len(t, second["warnings"], 1)

	rr = f.call(t, http.MethodPost, "/api/v1/time-windows",
		`{"punch_type":"NOPE","start_time":"06:00","end_time":"10:00"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.call(t, http.MethodGet, "/api/v1/time-windows", "")
	listing := decode(t, rr)
	assert.Len(t, listing["windows"], 2)
	assert.Equal(t, true, listing["auto_enabled"])
}

func TestUpdateWindowNotFound(t *testing.T) {
	f := newAPIFixture(10)
	rr := f.call(t, http.MethodPut, "/api/v1/time-windows/999", `{"priority":5}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTestPunchTypeDryRun(t *testing.T) {
	f := newAPIFixture(10)
	require.NoError(t, f.store.CreateWindow(&models.TimeWindow{
		PunchType: "CHECK_IN", StartTime: "06:00", EndTime: "10:00", IsActive: true, Priority: 1,
	}))

	rr := f.call(t, http.MethodGet, "/api/v1/punch-type/test?time=09:00&date=2025-01-15", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, "CHECK_IN", out["determined_punch_type"])
	assert.Equal(t, "TIME_WINDOW", out["source"])
	assert.Equal(t, float64(2), out["day_of_week"]) // среда

	rr = f.call(t, http.MethodGet, "/api/v1/punch-type/test?time=15:00&date=2025-01-15", "")
	out = decode(t, rr)
	assert.Equal(t, "DEVICE_STATUS", out["source"])
}

func TestSettingsRoundTrip(t *testing.T) {
	f := newAPIFixture(10)

	rr := f.call(t, http.MethodPut, "/api/v1/settings/auto_punch_type_enabled", `{"value":"false"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.call(t, http.MethodGet, "/api/v1/settings", "")
	out := decode(t, rr)
	assert.Equal(t, "false", out["auto_punch_type_enabled"])
	assert.False(t, f.store.AutoClassifyEnabled())
}

func TestEmployeeCRUD(t *testing.T) {
	f := newAPIFixture(10)

	rr := f.call(t, http.MethodPost, "/api/v1/employees",
		`{"pin":"7","name":"Ivanov","department":"IT"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	// дубликат PIN отклоняется
	rr = f.call(t, http.MethodPost, "/api/v1/employees", `{"pin":"7","name":"Petrov"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.call(t, http.MethodPut, "/api/v1/employees/7", `{"department":"HR","is_active":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	e, err := f.store.GetEmployee("7")
	require.NoError(t, err)
	assert.Equal(t, "HR", e.Department)
	assert.False(t, e.IsActive)

	rr = f.call(t, http.MethodDelete, "/api/v1/employees/7", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.call(t, http.MethodGet, "/api/v1/employees/7", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatsEndpoint(t *testing.T) {
	f := newAPIFixture(10)
	punchesOf := func(pin, in, out string) {
		_ = f.store.AppendPunch(models.PunchLog{PIN: pin, PunchTime: "2025-01-15 " + in, PunchType: "CHECK_IN"})
		_ = f.store.AppendPunch(models.PunchLog{PIN: pin, PunchTime: "2025-01-15 " + out, PunchType: "CHECK_OUT"})
	}
	punchesOf("7", "08:55:00", "18:00:00") // вовремя
	punchesOf("8", "09:30:00", "17:30:00") // опоздал к 09:00

	rr := f.call(t, http.MethodGet, "/api/v1/stats?date=2025-01-15", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)

	assert.Equal(t, float64(2), out["present"])
	assert.Equal(t, float64(1), out["late"])
	assert.Equal(t, float64(4), out["total_punches"])
	assert.Equal(t, float64(50), out["on_time_rate"])
	assert.InDelta(t, 8.54, out["avg_hours"].(float64), 0.05)
}

func TestDebugRequestsReadBack(t *testing.T) {
	f := newAPIFixture(10)

	rr := f.call(t, http.MethodGet, "/api/v1/debug", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, float64(0), out["total"])

	// кривой путь терминала попадает в трассу и виден оператору
	f.call(t, http.MethodPost, "/iclock/fdata?SN=K60", "payload")

	rr = f.call(t, http.MethodGet, "/api/v1/debug", "")
	out = decode(t, rr)
	require.Equal(t, float64(1), out["total"])
	first := out["requests"].([]any)[0].(map[string]any)
	assert.Equal(t, "/iclock/fdata", first["path"])
	assert.Equal(t, "K60", first["sn"])
}

func TestListDevicesAndLogs(t *testing.T) {
	f := newAPIFixture(10)
	f.reg.Touch("K60", "ATTLOG", "")

	rr := f.call(t, http.MethodGet, "/api/v1/devices", "")
	out := decode(t, rr)
	assert.Equal(t, float64(1), out["total"])

	_ = f.store.AppendPunch(models.PunchLog{PIN: "7", PunchTime: "2025-01-15 09:00:00"})
	rr = f.call(t, http.MethodGet, "/api/v1/logs", "")
	out = decode(t, rr)
	assert.Equal(t, float64(1), out["total"])

	rr = f.call(t, http.MethodPost, "/api/v1/logs/clear", "")
	out = decode(t, rr)
	assert.Equal(t, float64(1), out["count"])
}
