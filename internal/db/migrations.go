package db

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateLegacyColumns — ручные миграции поверх AutoMigrate для баз,
// заведённых старыми сборками.
func MigrateLegacyColumns(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	// time_windows.days_of_week появилась позже: у старых баз бэкфилл "все дни"
	if db.Migrator().HasTable("time_windows") {
		if !db.Migrator().HasColumn("time_windows", "days_of_week") {
			var e error
			switch dialect {
			case "mysql":
				e = db.Exec("ALTER TABLE `time_windows` ADD COLUMN `days_of_week` varchar(32) DEFAULT '0,1,2,3,4,5,6'").Error
			case "postgres":
				e = db.Exec(`ALTER TABLE "time_windows" ADD COLUMN "days_of_week" varchar(32) DEFAULT '0,1,2,3,4,5,6'`).Error
			default:
				e = db.Exec(`ALTER TABLE time_windows ADD COLUMN days_of_week varchar(32) DEFAULT '0,1,2,3,4,5,6'`).Error
			}
			if e != nil {
				return fmt.Errorf("add time_windows.days_of_week: %w", e)
			}
		}
	}

	// punch_logs.status -> punch_logs.punch_type_source (переименование в ранних схемах)
	if db.Migrator().HasTable("punch_logs") {
		hasOld := db.Migrator().HasColumn("punch_logs", "source")
		hasNew := db.Migrator().HasColumn("punch_logs", "punch_type_source")
		if hasOld && !hasNew {
			if err := db.Migrator().RenameColumn("punch_logs", "source", "punch_type_source"); err != nil {
				return fmt.Errorf("rename punch_logs.source -> punch_type_source: %w", err)
			}
		}
	}

	return nil
}
