package repo

import (
	"errors"
	"strings"
	"time"

	"punchd/internal/logs"
	"punchd/internal/models"
	"punchd/internal/punch"

	"gorm.io/gorm"
)

// AttendanceRepo — gorm-реализация хранилища посещаемости: журнал событий,
// окна времени, настройки, сотрудники. Для ядра протокола это просто сток
// записей и источник конфигурации (iclock.AttendanceStore).
type AttendanceRepo struct {
	db *gorm.DB
}

func NewAttendanceRepo(db *gorm.DB) *AttendanceRepo {
	return &AttendanceRepo{db: db}
}

// ── журнал событий ──────────────────────────────────────────

// AppendPunch — append-only; конкурентные вставки с разных терминалов
// разруливает БД, порядок внутри батча сохраняет последовательный caller.
func (r *AttendanceRepo) AppendPunch(ev models.PunchLog) error {
	return r.db.Create(&ev).Error
}

func (r *AttendanceRepo) RecentPunches(limit int) ([]models.PunchLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.PunchLog
	err := r.db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// PunchesForDate — события, чей punch_time начинается с "YYYY-MM-DD".
func (r *AttendanceRepo) PunchesForDate(date string) ([]models.PunchLog, error) {
	var out []models.PunchLog
	err := r.db.Where("punch_time LIKE ?", date+"%").Order("id ASC").Find(&out).Error
	return out, err
}

func (r *AttendanceRepo) ClearPunches() (int64, error) {
	tx := r.db.Unscoped().Where("1 = 1").Delete(&models.PunchLog{})
	return tx.RowsAffected, tx.Error
}

// ── окна времени ────────────────────────────────────────────

func (r *AttendanceRepo) ListWindows(activeOnly bool) ([]models.TimeWindow, error) {
	var out []models.TimeWindow
	q := r.db.Order("priority ASC, id ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *AttendanceRepo) GetWindow(id uint) (*models.TimeWindow, error) {
	var w models.TimeWindow
	if err := r.db.First(&w, id).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *AttendanceRepo) CreateWindow(w *models.TimeWindow) error { return r.db.Create(w).Error }
func (r *AttendanceRepo) UpdateWindow(w *models.TimeWindow) error { return r.db.Save(w).Error }
func (r *AttendanceRepo) DeleteWindow(id uint) error {
	return r.db.Delete(&models.TimeWindow{}, id).Error
}

// ActiveWindows — конфигурация для движка классификации, приоритет по
// возрастанию. Ошибка чтения не валит ingest: лучше DEVICE_STATUS, чем отказ.
func (r *AttendanceRepo) ActiveWindows() []punch.Window {
	rows, err := r.ListWindows(true)
	if err != nil {
		logs.Logger.Errorf("load time windows: %v", err)
		return nil
	}
	out := make([]punch.Window, 0, len(rows))
	for _, m := range rows {
		out = append(out, punch.Window{
			Type:     punch.Type(m.PunchType),
			Start:    m.StartTime,
			End:      m.EndTime,
			Days:     punch.ParseDays(m.DaysOfWeek),
			Priority: m.Priority,
			Active:   m.IsActive,
		})
	}
	return out
}

// ── настройки ───────────────────────────────────────────────

func (r *AttendanceRepo) GetSetting(key string) (string, error) {
	var s models.Setting
	if err := r.db.First(&s, "key = ?", key).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func (r *AttendanceRepo) SetSetting(key, value, description string) error {
	var s models.Setting
	tx := r.db.First(&s, "key = ?", key)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return r.db.Create(&models.Setting{Key: key, Value: value, Description: description}).Error
		}
		return tx.Error
	}
	s.Value = value
	if description != "" {
		s.Description = description
	}
	return r.db.Save(&s).Error
}

func (r *AttendanceRepo) AllSettings() (map[string]string, error) {
	var rows []models.Setting
	if err := r.db.Order("key").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, s := range rows {
		out[s.Key] = s.Value
	}
	return out, nil
}

func (r *AttendanceRepo) AutoClassifyEnabled() bool {
	v, err := r.GetSetting("auto_punch_type_enabled")
	if err != nil {
		return false
	}
	return strings.EqualFold(v, "true")
}

// ── сотрудники ──────────────────────────────────────────────

func (r *AttendanceRepo) GetEmployee(pin string) (*models.Employee, error) {
	var e models.Employee
	if err := r.db.Where("pin = ?", pin).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *AttendanceRepo) ListEmployees() ([]models.Employee, error) {
	var out []models.Employee
	err := r.db.Order("pin").Find(&out).Error
	return out, err
}

func (r *AttendanceRepo) CreateEmployee(e *models.Employee) error { return r.db.Create(e).Error }
func (r *AttendanceRepo) UpdateEmployee(e *models.Employee) error { return r.db.Save(e).Error }
func (r *AttendanceRepo) DeleteEmployee(pin string) error {
	return r.db.Where("pin = ?", pin).Delete(&models.Employee{}).Error
}

// ── сиды ────────────────────────────────────────────────────

// SeedDefaults — дефолтные окна и настройки при первом запуске (идемпотентно).
func (r *AttendanceRepo) SeedDefaults() error {
	var n int64
	if err := r.db.Model(&models.TimeWindow{}).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		defaults := []models.TimeWindow{
			{PunchType: string(punch.CheckIn), StartTime: "06:00", EndTime: "10:00", Priority: 1, IsActive: true, DaysOfWeek: "0,1,2,3,4", Description: "Morning check-in"},
			{PunchType: string(punch.BreakOut), StartTime: "12:00", EndTime: "12:30", Priority: 2, IsActive: true, DaysOfWeek: "0,1,2,3,4", Description: "Lunch out"},
			{PunchType: string(punch.BreakIn), StartTime: "12:31", EndTime: "13:30", Priority: 3, IsActive: true, DaysOfWeek: "0,1,2,3,4", Description: "Lunch back"},
			{PunchType: string(punch.CheckOut), StartTime: "16:00", EndTime: "20:00", Priority: 4, IsActive: true, DaysOfWeek: "0,1,2,3,4", Description: "Evening check-out"},
		}
		for i := range defaults {
			if err := r.db.Create(&defaults[i]).Error; err != nil {
				return err
			}
		}
		logs.Logger.Info("seeded default time windows")
	}

	seedSettings := []models.Setting{
		{Key: "auto_punch_type_enabled", Value: "true", Description: "Enable automatic punch type based on time windows"},
		{Key: "work_start_time", Value: "09:00", Description: "Standard work start time for late calculation"},
		{Key: "work_end_time", Value: "17:00", Description: "Standard work end time"},
		{Key: "overtime_threshold_hours", Value: "8", Description: "Hours after which overtime starts"},
	}
	for _, s := range seedSettings {
		var existing models.Setting
		err := r.db.First(&existing, "key = ?", s.Key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.UpdatedAt = time.Now()
			if err := r.db.Create(&s).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}
