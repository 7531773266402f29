package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"punchd/internal/iclock"
	"punchd/internal/logs"
	"punchd/internal/models"
	"punchd/internal/punch"

	"github.com/gorilla/mux"
)

// Store — всё, что нужно админ-API от хранилища посещаемости.
// Реализации: repo.AttendanceRepo (gorm) и repo.MemStore (без БД).
type Store interface {
	RecentPunches(limit int) ([]models.PunchLog, error)
	PunchesForDate(date string) ([]models.PunchLog, error)
	ClearPunches() (int64, error)

	ListWindows(activeOnly bool) ([]models.TimeWindow, error)
	GetWindow(id uint) (*models.TimeWindow, error)
	CreateWindow(*models.TimeWindow) error
	UpdateWindow(*models.TimeWindow) error
	DeleteWindow(id uint) error
	ActiveWindows() []punch.Window
	AutoClassifyEnabled() bool

	GetSetting(key string) (string, error)
	SetSetting(key, value, description string) error
	AllSettings() (map[string]string, error)

	GetEmployee(pin string) (*models.Employee, error)
	ListEmployees() ([]models.Employee, error)
	CreateEmployee(*models.Employee) error
	UpdateEmployee(*models.Employee) error
	DeleteEmployee(pin string) error
}

// Authorizer — узкая граница к auth: allow/deny по строке права.
type Authorizer interface {
	RequirePermission(perm string) mux.MiddlewareFunc
}

type HTTP struct {
	store Store
	reg   *iclock.Registry
	ctrl  *iclock.Controller
	authz Authorizer
	tz    *time.Location
}

func NewHTTP(store Store, reg *iclock.Registry, ctrl *iclock.Controller, authz Authorizer, tz *time.Location) *HTTP {
	if tz == nil {
		tz = time.UTC
	}
	return &HTTP{store: store, reg: reg, ctrl: ctrl, authz: authz, tz: tz}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	// devices & command queue
	api.Handle("/devices", h.perm("devices:read", h.listDevices)).Methods(http.MethodGet)
	api.Handle("/devices/{sn}/commands", h.perm("devices:read", h.pendingCommands)).Methods(http.MethodGet)
	api.Handle("/devices/{sn}/commands", h.perm("devices:write", h.enqueueRaw)).Methods(http.MethodPost)
	api.Handle("/device/add-user", h.perm("devices:write", h.addUser)).Methods(http.MethodPost)
	api.Handle("/device/delete-user", h.perm("devices:write", h.deleteUser)).Methods(http.MethodPost)

	// attendance read-back
	api.Handle("/logs", h.perm("attendance:read", h.listLogs)).Methods(http.MethodGet)
	api.Handle("/logs/clear", h.perm("attendance:write", h.clearLogs)).Methods(http.MethodPost)
	api.Handle("/stats", h.perm("reports:read", h.stats)).Methods(http.MethodGet)

	// time windows & settings
	api.Handle("/time-windows", h.perm("settings:read", h.listWindows)).Methods(http.MethodGet)
	api.Handle("/time-windows", h.perm("settings:write", h.createWindow)).Methods(http.MethodPost)
	api.Handle("/time-windows/{id}", h.perm("settings:write", h.updateWindow)).Methods(http.MethodPut, http.MethodPatch)
	api.Handle("/time-windows/{id}", h.perm("settings:write", h.deleteWindow)).Methods(http.MethodDelete)
	api.Handle("/settings", h.perm("settings:read", h.allSettings)).Methods(http.MethodGet)
	api.Handle("/settings/{key}", h.perm("settings:write", h.updateSetting)).Methods(http.MethodPut)

	// employees
	api.Handle("/employees", h.perm("employees:read", h.listEmployees)).Methods(http.MethodGet)
	api.Handle("/employees", h.perm("employees:write", h.createEmployee)).Methods(http.MethodPost)
	api.Handle("/employees/{pin}", h.perm("employees:read", h.getEmployee)).Methods(http.MethodGet)
	api.Handle("/employees/{pin}", h.perm("employees:write", h.updateEmployee)).Methods(http.MethodPut)
	api.Handle("/employees/{pin}", h.perm("employees:delete", h.deleteEmployee)).Methods(http.MethodDelete)

	// diagnostics
	api.Handle("/server-time", h.perm("attendance:read", h.serverTime)).Methods(http.MethodGet)
	api.Handle("/punch-type/test", h.perm("settings:read", h.testPunchType)).Methods(http.MethodGet)
	api.Handle("/debug", h.perm("devices:read", h.debugRequests)).Methods(http.MethodGet)
}

// perm — оборачивает хендлер проверкой права; при выключенном auth прозрачна.
func (h *HTTP) perm(p string, fn http.HandlerFunc) http.Handler {
	if h.authz == nil {
		return fn
	}
	return h.authz.RequirePermission(p)(fn)
}

// ─────────────────────────── devices & commands ───────────────────────────

func (h *HTTP) listDevices(w http.ResponseWriter, _ *http.Request) {
	devs := h.reg.Devices()
	writeJSON(w, map[string]any{"devices": devs, "total": len(devs)})
}

func (h *HTTP) pendingCommands(w http.ResponseWriter, r *http.Request) {
	sn := mux.Vars(r)["sn"]
	writeJSON(w, map[string]any{"device": sn, "commands": h.reg.Peek(sn)})
}

func (h *HTTP) enqueueRaw(w http.ResponseWriter, r *http.Request) {
	sn := mux.Vars(r)["sn"]
	var in struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Command) == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "command required", nil)
		return
	}
	h.enqueue(w, sn, in.Command)
}

// addUser — строит команду добавления пользователя на терминал и ставит её
// в очередь; уедет при следующем опросе.
func (h *HTTP) addUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PIN       string `json:"pin"`
		Name      string `json:"name"`
		DeviceSN  string `json:"device_sn"`
		Card      string `json:"card"`
		Privilege int    `json:"privilege"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if in.PIN == "" || in.Name == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "pin and name are required", nil)
		return
	}
	if len(in.Name) > 24 {
		in.Name = in.Name[:24] // лимит поля Name у терминала
	}
	sn, ok := h.resolveSN(in.DeviceSN)
	if !ok {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "no devices connected", nil)
		return
	}
	cmd := fmt.Sprintf("C:%s:DATA USER PIN=%s\tName=%s\tPri=%d", in.PIN, in.PIN, in.Name, in.Privilege)
	if in.Card != "" {
		cmd += "\tCard=" + in.Card
	}
	h.enqueue(w, sn, cmd)
}

func (h *HTTP) deleteUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PIN      string `json:"pin"`
		DeviceSN string `json:"device_sn"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.PIN == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "pin required", nil)
		return
	}
	sn, ok := h.resolveSN(in.DeviceSN)
	if !ok {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "no devices connected", nil)
		return
	}
	h.enqueue(w, sn, fmt.Sprintf("C:%s:DATA DEL USER PIN=%s", in.PIN, in.PIN))
}

// resolveSN — явный серийник или первый (самый свежий) из реестра.
func (h *HTTP) resolveSN(sn string) (string, bool) {
	if sn != "" {
		return sn, true
	}
	devs := h.reg.Devices()
	if len(devs) == 0 {
		return "", false
	}
	return devs[0].SerialNumber, true
}

func (h *HTTP) enqueue(w http.ResponseWriter, sn, cmd string) {
	if err := h.reg.Enqueue(sn, cmd); err != nil {
		if errors.Is(err, iclock.ErrQueueFull) {
			models.WriteProblem(w, http.StatusServiceUnavailable, "Queue full", err.Error(), map[string]string{"sn": sn})
			return
		}
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", err.Error(), nil)
		return
	}
	logs.Logger.WithFields(map[string]any{"sn": sn, "command": cmd}).Info("command queued")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued", "device": sn, "command": cmd})
}

// ─────────────────────────── logs & diagnostics ───────────────────────────

func (h *HTTP) listLogs(w http.ResponseWriter, _ *http.Request) {
	dbLogs, err := h.store.RecentPunches(50)
	if err != nil {
		// БД недоступна: отдаём хотя бы процессный хвост
		logs.Logger.Errorf("fetch logs: %v", err)
		writeJSON(w, map[string]any{"logs": h.ctrl.Recent(50), "source": "memory_only"})
		return
	}
	writeJSON(w, map[string]any{
		"logs":   dbLogs,
		"recent": h.ctrl.Recent(10),
		"total":  len(dbLogs),
		"source": "database + memory",
	})
}

func (h *HTTP) clearLogs(w http.ResponseWriter, _ *http.Request) {
	n, err := h.store.ClearPunches()
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"status": "cleared", "count": n})
}

// debugRequests — catch-all запросы терминалов: чем именно кривая прошивка
// ходила на сервер.
func (h *HTTP) debugRequests(w http.ResponseWriter, _ *http.Request) {
	reqs := h.ctrl.Traces(50)
	writeJSON(w, map[string]any{"requests": reqs, "total": len(reqs)})
}

func (h *HTTP) serverTime(w http.ResponseWriter, _ *http.Request) {
	now := time.Now().In(h.tz)
	writeJSON(w, map[string]string{
		"datetime":  now.Format(time.RFC3339),
		"timezone":  h.tz.String(),
		"formatted": now.Format("2006-01-02 15:04:05"),
		"date":      now.Format("2006-01-02"),
		"time":      now.Format("15:04:05"),
	})
}

// testPunchType — dry-run классификатора: что получит событие в этот
// момент/день при текущих окнах.
func (h *HTTP) testPunchType(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(h.tz)
	q := r.URL.Query()
	tod := q.Get("time")
	date := q.Get("date")
	if tod == "" {
		tod = now.Format("15:04")
	}
	if date == "" {
		date = now.Format("2006-01-02")
	}
	if strings.Count(tod, ":") == 1 {
		tod += ":00"
	}

	auto := h.store.AutoClassifyEnabled()
	typ, src := punch.ClassifyForDate(date+" "+tod, date, "", auto, h.store.ActiveWindows())

	writeJSON(w, map[string]any{
		"input_time":            tod,
		"input_date":            date,
		"day_of_week":           punch.Weekday(date, now),
		"determined_punch_type": typ,
		"source":                src,
		"auto_punch_enabled":    auto,
	})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(body)
}
