package repo

import (
	"sort"
	"strings"
	"sync"
	"time"

	"punchd/internal/models"
	"punchd/internal/punch"

	"gorm.io/gorm"
)

// memPunchCap — потолок журнала в in-memory режиме (без БД сервер остаётся
// рабочим, но история ограничена и теряется на рестарте).
const memPunchCap = 10000

// MemStore — fallback-хранилище, когда БД не сконфигурирована. Та же
// поверхность, что у AttendanceRepo, но всё в памяти под одним мьютексом:
// нагрузка админ-CRUD низкочастотная, contention не проблема.
type MemStore struct {
	mu        sync.RWMutex
	punches   []models.PunchLog
	windows   []models.TimeWindow
	settings  map[string]string
	employees map[string]models.Employee
	nextID    uint
}

func NewMemStore() *MemStore {
	return &MemStore{
		settings:  map[string]string{"auto_punch_type_enabled": "true", "work_start_time": "09:00"},
		employees: map[string]models.Employee{},
		nextID:    1,
	}
}

// ── журнал событий ──────────────────────────────────────────

func (m *MemStore) AppendPunch(ev models.PunchLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.nextID
	m.nextID++
	m.punches = append(m.punches, ev)
	if len(m.punches) > memPunchCap {
		m.punches = m.punches[len(m.punches)-memPunchCap:]
	}
	return nil
}

func (m *MemStore) RecentPunches(limit int) ([]models.PunchLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	if limit > len(m.punches) {
		limit = len(m.punches)
	}
	out := make([]models.PunchLog, 0, limit)
	for i := len(m.punches) - 1; i >= len(m.punches)-limit; i-- {
		out = append(out, m.punches[i])
	}
	return out, nil
}

func (m *MemStore) PunchesForDate(date string) ([]models.PunchLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PunchLog
	for _, p := range m.punches {
		if strings.HasPrefix(p.PunchTime, date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemStore) ClearPunches() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.punches))
	m.punches = nil
	return n, nil
}

// ── окна времени ────────────────────────────────────────────

func (m *MemStore) ListWindows(activeOnly bool) ([]models.TimeWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TimeWindow, 0, len(m.windows))
	for _, w := range m.windows {
		if activeOnly && !w.IsActive {
			continue
		}
		out = append(out, w)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) GetWindow(id uint) (*models.TimeWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, w := range m.windows {
		if w.ID == id {
			cp := w
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *MemStore) CreateWindow(w *models.TimeWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.ID = m.nextID
	m.nextID++
	w.CreatedAt = time.Now()
	m.windows = append(m.windows, *w)
	return nil
}

func (m *MemStore) UpdateWindow(w *models.TimeWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.windows {
		if m.windows[i].ID == w.ID {
			m.windows[i] = *w
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemStore) DeleteWindow(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.windows {
		if m.windows[i].ID == id {
			m.windows = append(m.windows[:i], m.windows[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *MemStore) ActiveWindows() []punch.Window {
	rows, _ := m.ListWindows(true)
	out := make([]punch.Window, 0, len(rows))
	for _, w := range rows {
		out = append(out, punch.Window{
			Type:     punch.Type(w.PunchType),
			Start:    w.StartTime,
			End:      w.EndTime,
			Days:     punch.ParseDays(w.DaysOfWeek),
			Priority: w.Priority,
			Active:   w.IsActive,
		})
	}
	return out
}

// ── настройки ───────────────────────────────────────────────

func (m *MemStore) GetSetting(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return v, nil
}

func (m *MemStore) SetSetting(key, value, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemStore) AllSettings() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemStore) AutoClassifyEnabled() bool {
	v, err := m.GetSetting("auto_punch_type_enabled")
	return err == nil && strings.EqualFold(v, "true")
}

// ── сотрудники ──────────────────────────────────────────────

func (m *MemStore) GetEmployee(pin string) (*models.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[pin]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := e
	return &cp, nil
}

func (m *MemStore) ListEmployees() ([]models.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PIN < out[j].PIN })
	return out, nil
}

func (m *MemStore) CreateEmployee(e *models.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	m.employees[e.PIN] = *e
	return nil
}

func (m *MemStore) UpdateEmployee(e *models.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[e.PIN]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.employees[e.PIN] = *e
	return nil
}

func (m *MemStore) DeleteEmployee(pin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.employees, pin)
	return nil
}
