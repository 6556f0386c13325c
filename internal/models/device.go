package models

import (
	"time"

	"gorm.io/datatypes"
)

// Device — провизионированный слот лаборатории. Строка создаётся заранее с
// пустым hardware_id и никогда не удаляется.
type Device struct {
	SystemID   string  `gorm:"column:system_id;primaryKey;type:varchar(64)"`
	HardwareID *string `gorm:"column:hardware_id;type:varchar(128);uniqueIndex"`

	City    string `gorm:"type:varchar(128);index"`
	Tehsil  string `gorm:"type:varchar(128)"`
	College string `gorm:"type:varchar(255)"`
	LabName string `gorm:"column:lab_name;type:varchar(128)"`
	PCName  string `gorm:"column:pc_name;type:varchar(128)"`

	Status          string     `gorm:"type:varchar(16);default:offline;index:idx_devices_status_seen,priority:1"`
	LastSeen        *time.Time `gorm:"column:last_seen;index:idx_devices_status_seen,priority:2"`
	TodayStartTime  *time.Time `gorm:"column:today_start_time"`
	TodayLastActive *time.Time `gorm:"column:today_last_active"`
	RuntimeMinutes  int64      `gorm:"column:runtime_minutes;default:0"`
	CPUScore        float64    `gorm:"column:cpu_score;default:0"`

	// app -> секунды за текущий день (последний снимок агента)
	AppUsage datatypes.JSONType[map[string]int64] `gorm:"column:app_usage"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Device) TableName() string { return "devices" }
