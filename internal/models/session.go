package models

import "time"

// DeviceSession — непрерывный интервал online. EndTime == nil пока сессия открыта.
type DeviceSession struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement"`
	DeviceID        string     `gorm:"column:device_id;type:varchar(64);index:idx_sessions_device_start,priority:1"`
	StartTime       time.Time  `gorm:"column:start_time;index:idx_sessions_device_start,priority:2;index:idx_sessions_start"`
	EndTime         *time.Time `gorm:"column:end_time"`
	DurationSeconds *int64     `gorm:"column:duration_seconds"`

	City     string  `gorm:"type:varchar(128)"`
	College  string  `gorm:"type:varchar(255)"`
	LabName  string  `gorm:"column:lab_name;type:varchar(128)"`
	AvgScore float64 `gorm:"column:avg_score"`
}

func (DeviceSession) TableName() string { return "device_sessions" }
