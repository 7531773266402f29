package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string `gorm:"column:password_hash"`
	FullName     string
	Department   string
	EmployeePIN  string `gorm:"column:employee_pin"`
	IsActive     bool   `gorm:"column:is_active;default:true"`
	IsSuperuser  bool   `gorm:"column:is_superuser;default:false"`
	LastLogin    *time.Time
}

// Role — набор прав вида "employees:read"; "*" означает все права.
type Role struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex"`
	Description string
	Permissions string // JSON-массив строк
}

type UserRole struct {
	UserID     uint `gorm:"primaryKey"`
	RoleID     uint `gorm:"primaryKey"`
	AssignedAt time.Time
}

type AuditLog struct {
	gorm.Model
	EntryID    string `gorm:"column:entry_id;index"`
	UserID     uint   `gorm:"index"`
	Action     string
	Resource   string
	ResourceID string `gorm:"column:resource_id"`
	Details    string
}
