// internal/db/migrations.go
package db

import (
	"fmt"

	"gorm.io/gorm"
)

// EnsureIndexes добавляет индекс по открытым сессиям. Postgres умеет partial
// index, MySQL индексирует (device_id, end_time) целиком.
func EnsureIndexes(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	dialect := db.Dialector.Name()

	switch dialect {
	case "postgres":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_open ON "device_sessions" ("device_id") WHERE "end_time" IS NULL`).Error

	case "mysql":
		if db.Migrator().HasIndex("device_sessions", "idx_sessions_open") {
			return nil
		}
		return db.Exec("CREATE INDEX `idx_sessions_open` ON `device_sessions` (`device_id`, `end_time`)").Error

	case "sqlite":
		return db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_open ON device_sessions (device_id) WHERE end_time IS NULL`).Error

	default:
		return fmt.Errorf("unsupported dialect: %s", dialect)
	}
}
