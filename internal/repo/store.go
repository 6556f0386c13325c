// Package repo — gorm-реализация tracker.Store (postgres / mysql).
package repo

import (
	"time"

	"labguard/internal/models"
	"labguard/internal/tracker"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ tracker.Store = (*Store)(nil)

// notFound переводит gorm.ErrRecordNotFound в доменную ошибку.
func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tracker.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func parseDate(s string) (datatypes.Date, error) {
	t, err := time.ParseInLocation(tracker.DateLayout, s, time.UTC)
	if err != nil {
		return datatypes.Date{}, errors.Wrapf(tracker.ErrInvalidInput, "date %q", s)
	}
	return datatypes.Date(t), nil
}

func formatDate(d datatypes.Date) string {
	return time.Time(d).UTC().Format(tracker.DateLayout)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func usageOf(j datatypes.JSONType[map[string]int64]) tracker.UsageMap {
	m := j.Data()
	out := make(tracker.UsageMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func usageJSON(u tracker.UsageMap) datatypes.JSONType[map[string]int64] {
	m := make(map[string]int64, len(u))
	for k, v := range u {
		m[k] = v
	}
	return datatypes.NewJSONType(m)
}

// ─── конвертеры модель <-> домен ───

func toDevice(m models.Device) tracker.Device {
	d := tracker.Device{
		SystemID:        m.SystemID,
		City:            m.City,
		Tehsil:          m.Tehsil,
		College:         m.College,
		LabName:         m.LabName,
		PCName:          m.PCName,
		Status:          tracker.Status(m.Status),
		LastSeen:        utcPtr(m.LastSeen),
		TodayStartTime:  utcPtr(m.TodayStartTime),
		TodayLastActive: utcPtr(m.TodayLastActive),
		RuntimeMinutes:  m.RuntimeMinutes,
		CPUScore:        m.CPUScore,
		AppUsage:        usageOf(m.AppUsage),
	}
	if m.HardwareID != nil {
		d.HardwareID = *m.HardwareID
	}
	if d.Status == "" {
		d.Status = tracker.StatusOffline
	}
	return d
}

func fromDevice(d tracker.Device) models.Device {
	m := models.Device{
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
		AppUsage:        usageJSON(d.AppUsage),
	}
	if d.HardwareID != "" {
		hw := d.HardwareID
		m.HardwareID = &hw
	}
	if m.Status == "" {
		m.Status = string(tracker.StatusOffline)
	}
	return m
}

func toSession(m models.DeviceSession) tracker.Session {
	return tracker.Session{
		ID:              m.ID,
		DeviceID:        m.DeviceID,
		StartTime:       m.StartTime.UTC(),
		EndTime:         utcPtr(m.EndTime),
		DurationSeconds: m.DurationSeconds,
		City:            m.City,
		College:         m.College,
		LabName:         m.LabName,
		AvgScore:        m.AvgScore,
	}
}

func toSummary(m models.DeviceDailyHistory) tracker.DailySummary {
	return tracker.DailySummary{
		DeviceID:       m.DeviceID,
		Date:           formatDate(m.HistoryDate),
		AvgScore:       m.AvgScore,
		RuntimeMinutes: m.RuntimeMinutes,
		StartTime:      utcPtr(m.StartTime),
		EndTime:        utcPtr(m.EndTime),
		City:           m.City,
		College:        m.College,
		LabName:        m.LabName,
		AppUsage:       usageOf(m.AppUsage),
		RolledOver:     m.RolledOver,
	}
}
