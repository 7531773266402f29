package repo

import (
	"errors"

	"punchd/internal/models"

	"gorm.io/gorm"
)

type DeviceStore struct {
	db *gorm.DB
}

func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// UpsertBySN — создаёт/обновляет устройство по серийнику. Вызывается на каждый
// запрос терминала, поэтому ошибка не фатальна: её логирует caller.
func (s *DeviceStore) UpsertBySN(d models.Device) error {
	var m models.Device
	tx := s.db.Where(&models.Device{SerialNumber: d.SerialNumber}).First(&m)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return s.db.Create(&d).Error
		}
		return tx.Error
	}
	m.Status = d.Status
	m.LastSeen = d.LastSeen
	m.LastTable = d.LastTable
	m.LastCommand = d.LastCommand
	return s.db.Save(&m).Error
}

// List — снимок таблицы устройств, свежие первыми.
func (s *DeviceStore) List() ([]models.Device, error) {
	var out []models.Device
	err := s.db.Order("last_seen DESC").Find(&out).Error
	return out, err
}
