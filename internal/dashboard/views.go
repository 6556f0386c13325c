package dashboard

import (
	"time"

	"labguard/internal/tracker"
)

// deviceView — строка устройства для фронтенда. _is_online считается на
// сервере по порогу присутствия, а не берётся из status.
type deviceView struct {
	SystemID        string           `json:"system_id"`
	HardwareID      *string          `json:"hardware_id"`
	City            string           `json:"city"`
	Tehsil          string           `json:"tehsil"`
	College         string           `json:"college"`
	LabName         string           `json:"lab_name"`
	PCName          string           `json:"pc_name"`
	Status          string           `json:"status"`
	LastSeen        *time.Time       `json:"last_seen"`
	TodayStartTime  *time.Time       `json:"today_start_time"`
	TodayLastActive *time.Time       `json:"today_last_active"`
	RuntimeMinutes  int64            `json:"runtime_minutes"`
	CPUScore        float64          `json:"cpu_score"`
	AppUsage        tracker.UsageMap `json:"app_usage"`
	IsOnline        *bool            `json:"_is_online,omitempty"`
}

type historyView struct {
	DeviceID       string           `json:"device_id"`
	HistoryDate    string           `json:"history_date"`
	AvgScore       float64          `json:"avg_score"`
	RuntimeMinutes int64            `json:"runtime_minutes"`
	StartTime      *time.Time       `json:"start_time"`
	EndTime        *time.Time       `json:"end_time"`
	City           string           `json:"city"`
	College        string           `json:"college"`
	LabName        string           `json:"lab_name"`
	AppUsage       tracker.UsageMap `json:"app_usage"`
}

func viewOf(d tracker.Device) deviceView {
	v := deviceView{
		SystemID:        d.SystemID,
		City:            d.City,
		Tehsil:          d.Tehsil,
		College:         d.College,
		LabName:         d.LabName,
		PCName:          d.PCName,
		Status:          string(d.Status),
		LastSeen:        d.LastSeen,
		TodayStartTime:  d.TodayStartTime,
		TodayLastActive: d.TodayLastActive,
		RuntimeMinutes:  d.RuntimeMinutes,
		CPUScore:        d.CPUScore,
		AppUsage:        d.AppUsage,
	}
	if d.HardwareID != "" {
		hw := d.HardwareID
		v.HardwareID = &hw
	}
	if v.AppUsage == nil {
		v.AppUsage = tracker.UsageMap{}
	}
	return v
}

func historyOf(s tracker.DailySummary) historyView {
	v := historyView{
		DeviceID:       s.DeviceID,
		HistoryDate:    s.Date,
		AvgScore:       s.AvgScore,
		RuntimeMinutes: s.RuntimeMinutes,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		City:           s.City,
		College:        s.College,
		LabName:        s.LabName,
		AppUsage:       s.AppUsage,
	}
	if v.AppUsage == nil {
		v.AppUsage = tracker.UsageMap{}
	}
	return v
}
