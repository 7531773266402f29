package adminapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"punchd/internal/models"
	"punchd/internal/punch"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

var hhmmRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

type windowInput struct {
	PunchType   *string `json:"punch_type"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	DaysOfWeek  *string `json:"days_of_week"`
	Priority    *int    `json:"priority"`
	IsActive    *bool   `json:"is_active"`
	Description *string `json:"description"`
}

// validateWindow — схема полей окна. Семантику матчинга не трогаем:
// пересечения окон легальны и разрешаются приоритетом в рантайме.
func validateWindow(w models.TimeWindow) error {
	if !punch.IsValidType(w.PunchType) {
		return fmt.Errorf("punch_type must be one of %v", punch.ValidTypes)
	}
	if !hhmmRe.MatchString(w.StartTime) || !hhmmRe.MatchString(w.EndTime) {
		return errors.New("start_time/end_time must be zero-padded HH:MM")
	}
	if w.DaysOfWeek != "" {
		for _, p := range strings.Split(w.DaysOfWeek, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 || n > 6 {
				return fmt.Errorf("days_of_week: %q is not a weekday 0..6", p)
			}
		}
	}
	return nil
}

// overlapWarnings — конфигурационное предупреждение (не ошибка): какие
// активные окна пересекаются с данным хотя бы в один общий день.
func overlapWarnings(w models.TimeWindow, existing []models.TimeWindow) []string {
	var out []string
	wd := punch.ParseDays(w.DaysOfWeek)
	for _, e := range existing {
		if e.ID == w.ID || !e.IsActive {
			continue
		}
		if !daysIntersect(wd, punch.ParseDays(e.DaysOfWeek)) {
			continue
		}
		if rangesOverlap(w.StartTime, w.EndTime, e.StartTime, e.EndTime) {
			out = append(out, fmt.Sprintf(
				"overlaps window #%d (%s %s-%s, priority %d); priority order decides at runtime",
				e.ID, e.PunchType, e.StartTime, e.EndTime, e.Priority))
		}
	}
	return out
}

func daysIntersect(a, b []int) bool {
	if len(a) == 0 || len(b) == 0 {
		return true // пусто = все дни
	}
	set := map[int]bool{}
	for _, d := range a {
		set[d] = true
	}
	for _, d := range b {
		if set[d] {
			return true
		}
	}
	return false
}

// rangesOverlap — пересечение двух диапазонов HH:MM с учётом окон через
// полночь (каждое такое раскладываем на два обычных).
func rangesOverlap(s1, e1, s2, e2 string) bool {
	for _, a := range splitOvernight(s1, e1) {
		for _, b := range splitOvernight(s2, e2) {
			if a[0] <= b[1] && b[0] <= a[1] {
				return true
			}
		}
	}
	return false
}

func splitOvernight(s, e string) [][2]string {
	if s <= e {
		return [][2]string{{s, e}}
	}
	return [][2]string{{s, "23:59"}, {"00:00", e}}
}

// ─────────────────────────── time windows ───────────────────────────

func (h *HTTP) listWindows(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	ws, err := h.store.ListWindows(activeOnly)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"windows": ws, "auto_enabled": h.store.AutoClassifyEnabled()})
}

func (h *HTTP) createWindow(w http.ResponseWriter, r *http.Request) {
	var in windowInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if in.PunchType == nil || in.StartTime == nil || in.EndTime == nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "punch_type, start_time and end_time are required", nil)
		return
	}
	win := models.TimeWindow{
		PunchType:  *in.PunchType,
		StartTime:  *in.StartTime,
		EndTime:    *in.EndTime,
		DaysOfWeek: "0,1,2,3,4,5,6",
		IsActive:   true,
	}
	applyWindowInput(&win, in)
	if err := validateWindow(win); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Invalid window", err.Error(), nil)
		return
	}
	existing, _ := h.store.ListWindows(true)
	if err := h.store.CreateWindow(&win); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"window": win, "warnings": overlapWarnings(win, existing)})
}

func (h *HTTP) updateWindow(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	win, err := h.store.GetWindow(uint(id))
	if err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "time window not found", nil)
		return
	}
	var in windowInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	applyWindowInput(win, in)
	if err := validateWindow(*win); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Invalid window", err.Error(), nil)
		return
	}
	existing, _ := h.store.ListWindows(true)
	if err := h.store.UpdateWindow(win); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"window": win, "warnings": overlapWarnings(*win, existing)})
}

func applyWindowInput(win *models.TimeWindow, in windowInput) {
	if in.PunchType != nil {
		win.PunchType = *in.PunchType
	}
	if in.StartTime != nil {
		win.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		win.EndTime = *in.EndTime
	}
	if in.DaysOfWeek != nil {
		win.DaysOfWeek = *in.DaysOfWeek
	}
	if in.Priority != nil {
		win.Priority = *in.Priority
	}
	if in.IsActive != nil {
		win.IsActive = *in.IsActive
	}
	if in.Description != nil {
		win.Description = *in.Description
	}
}

func (h *HTTP) deleteWindow(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if _, err := h.store.GetWindow(uint(id)); err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "time window not found", nil)
		return
	}
	if err := h.store.DeleteWindow(uint(id)); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"status": "deleted", "id": id})
}

// ─────────────────────────── settings ───────────────────────────

func (h *HTTP) allSettings(w http.ResponseWriter, _ *http.Request) {
	s, err := h.store.AllSettings()
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, s)
}

func (h *HTTP) updateSetting(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var in struct {
		Value       *string `json:"value"`
		Description string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Value == nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "value is required", nil)
		return
	}
	if err := h.store.SetSetting(key, *in.Value, in.Description); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]string{"key": key, "value": *in.Value})
}

// ─────────────────────────── employees ───────────────────────────

func (h *HTTP) listEmployees(w http.ResponseWriter, _ *http.Request) {
	es, err := h.store.ListEmployees()
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"employees": es, "total": len(es)})
}

func (h *HTTP) getEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.GetEmployee(mux.Vars(r)["pin"])
	if err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "employee not found", nil)
		return
	}
	writeJSON(w, e)
}

func (h *HTTP) createEmployee(w http.ResponseWriter, r *http.Request) {
	var e models.Employee
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if e.PIN == "" || e.Name == "" {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "pin and name are required", nil)
		return
	}
	if _, err := h.store.GetEmployee(e.PIN); err == nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad request", "employee with this pin already exists", nil)
		return
	}
	e.IsActive = true
	if err := h.store.CreateEmployee(&e); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(e)
}

func (h *HTTP) updateEmployee(w http.ResponseWriter, r *http.Request) {
	pin := mux.Vars(r)["pin"]
	e, err := h.store.GetEmployee(pin)
	if err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "employee not found", nil)
		return
	}
	var in struct {
		Name       *string `json:"name"`
		Department *string `json:"department"`
		CardNumber *string `json:"card_number"`
		IsActive   *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad JSON", err.Error(), nil)
		return
	}
	if in.Name != nil {
		e.Name = *in.Name
	}
	if in.Department != nil {
		e.Department = *in.Department
	}
	if in.CardNumber != nil {
		e.CardNumber = *in.CardNumber
	}
	if in.IsActive != nil {
		e.IsActive = *in.IsActive
	}
	if err := h.store.UpdateEmployee(e); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, e)
}

func (h *HTTP) deleteEmployee(w http.ResponseWriter, r *http.Request) {
	pin := mux.Vars(r)["pin"]
	if _, err := h.store.GetEmployee(pin); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not found", "employee not found", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	if err := h.store.DeleteEmployee(pin); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Store error", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted", "pin": pin})
}
