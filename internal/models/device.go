package models

import (
	"time"

	"gorm.io/gorm"
)

// Device — терминал учёта рабочего времени (ZK-совместимый, ADMS push/poll).
// Серийник присваивает вендор, сервер его никогда не генерирует.
type Device struct {
	gorm.Model
	SerialNumber string `gorm:"column:serial_number;uniqueIndex"`
	Status       string
	LastSeen     time.Time `gorm:"column:last_seen"`
	LastTable    string    `gorm:"column:last_table"`
	LastCommand  string    `gorm:"column:last_command"`
}
