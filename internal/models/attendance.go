package models

import (
	"time"

	"gorm.io/gorm"
)

// PunchLog — одно событие прихода/ухода, как его прислал терминал,
// плюс производные поля ядра (итоговый тип и его происхождение).
type PunchLog struct {
	gorm.Model
	PIN          string `gorm:"column:pin;index:idx_logs_pin"`
	DeviceSN     string `gorm:"column:device_sn;index:idx_logs_device"`
	PunchTime    string `gorm:"column:punch_time;index:idx_logs_time"` // локальное время терминала, не сервера
	PunchType    string `gorm:"column:punch_type"`
	Source       string `gorm:"column:punch_type_source"` // TIME_WINDOW | DEVICE_STATUS
	DeviceType   string `gorm:"column:device_punch_type"` // что предложил сам терминал
	VerifyMethod string `gorm:"column:verify_method"`
	WorkCode     string `gorm:"column:work_code"`
	RawLine      string `gorm:"column:raw_line"` // исходная строка для диагностики
	ReceivedAt   time.Time
}

// TimeWindow — правило администратора: диапазон времени суток и дней недели,
// который даёт событию семантический тип.
type TimeWindow struct {
	gorm.Model
	PunchType   string `gorm:"column:punch_type"`
	StartTime   string `gorm:"column:start_time"` // HH:MM, включительно
	EndTime     string `gorm:"column:end_time"`   // HH:MM, включительно; start > end = окно через полночь
	DaysOfWeek  string `gorm:"column:days_of_week;default:0,1,2,3,4,5,6"` // 0=Пн .. 6=Вс
	Priority    int    `gorm:"default:0;index"`
	IsActive    bool   `gorm:"column:is_active;default:true"`
	Description string
}

type Setting struct {
	Key         string `gorm:"primaryKey"`
	Value       string
	Description string
	UpdatedAt   time.Time
}

// Employee — справочник сотрудников; PIN задаёт терминал/админ, ядро его не валидирует.
type Employee struct {
	gorm.Model
	PIN        string `gorm:"column:pin;uniqueIndex"`
	Name       string
	Department string
	CardNumber string `gorm:"column:card_number"`
	IsActive   bool   `gorm:"column:is_active;default:true"`
}
