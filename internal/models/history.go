package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeviceDailyHistory — одна строка на (устройство, UTC-день).
// Даты пишутся как полночь UTC: сессия БД должна работать в UTC.
type DeviceDailyHistory struct {
	DeviceID    string         `gorm:"column:device_id;primaryKey;type:varchar(64)"`
	HistoryDate datatypes.Date `gorm:"column:history_date;primaryKey"`

	AvgScore       float64    `gorm:"column:avg_score"`
	RuntimeMinutes int64      `gorm:"column:runtime_minutes"`
	StartTime      *time.Time `gorm:"column:start_time"`
	EndTime        *time.Time `gorm:"column:end_time"`

	City    string `gorm:"type:varchar(128)"`
	College string `gorm:"type:varchar(255)"`
	LabName string `gorm:"column:lab_name;type:varchar(128)"`

	AppUsage datatypes.JSONType[map[string]int64] `gorm:"column:app_usage"`

	// true, если строку записал дневной rollover (а не только offline sync)
	RolledOver bool `gorm:"column:rolled_over;default:false"`

	UpdatedAt time.Time
}

func (DeviceDailyHistory) TableName() string { return "device_daily_history" }

// AppUsageLog — детальный лог использования приложений, ключ (device, date, app).
type AppUsageLog struct {
	DeviceID     string         `gorm:"column:device_id;primaryKey;type:varchar(64)"`
	Date         datatypes.Date `gorm:"column:date;primaryKey;index:idx_usage_logs_date"`
	AppName      string         `gorm:"column:app_name;primaryKey;type:varchar(255)"`
	SecondsAdded int64          `gorm:"column:seconds_added"`
}

func (AppUsageLog) TableName() string { return "app_usage_logs" }
