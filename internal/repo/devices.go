package repo

import (
	"context"
	"strings"
	"time"

	"labguard/internal/models"
	"labguard/internal/tracker"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// '!' вместо '\': обратный слеш по-разному трактуется в MySQL и SQLite.
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func (s *Store) GetDevice(ctx context.Context, systemID string) (tracker.Device, error) {
	var m models.Device
	if err := s.db.WithContext(ctx).Where("system_id = ?", systemID).First(&m).Error; err != nil {
		return tracker.Device{}, notFound(err, "get device")
	}
	return toDevice(m), nil
}

func (s *Store) FindDeviceByHardwareID(ctx context.Context, hardwareID string) (tracker.Device, error) {
	var m models.Device
	if err := s.db.WithContext(ctx).Where("hardware_id = ?", hardwareID).First(&m).Error; err != nil {
		return tracker.Device{}, notFound(err, "find device by hardware id")
	}
	return toDevice(m), nil
}

func (s *Store) CreateDevice(ctx context.Context, d tracker.Device) error {
	m := fromDevice(d)
	err := s.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return tracker.ErrAlreadyExists
	}
	return errors.Wrap(err, "create device")
}

// UpdateDevice пишет heartbeat-поля. hardware_id меняется только через Bind/Unbind.
func (s *Store) UpdateDevice(ctx context.Context, d tracker.Device) error {
	m := fromDevice(d)
	err := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("system_id = ?", d.SystemID).
		Updates(map[string]any{
			"status":            m.Status,
			"last_seen":         m.LastSeen,
			"today_start_time":  m.TodayStartTime,
			"today_last_active": m.TodayLastActive,
			"runtime_minutes":   m.RuntimeMinutes,
			"cpu_score":         m.CPUScore,
			"app_usage":         m.AppUsage,
			"city":              m.City,
			"tehsil":            m.Tehsil,
			"college":           m.College,
			"lab_name":          m.LabName,
			"pc_name":           m.PCName,
		}).Error
	return errors.Wrap(err, "update device")
}

func (s *Store) UpdateLocation(ctx context.Context, systemID string, p tracker.LocationPatch) error {
	fields := map[string]any{}
	if p.City != "" {
		fields["city"] = p.City
	}
	if p.College != "" {
		fields["college"] = p.College
	}
	if p.LabName != "" {
		fields["lab_name"] = p.LabName
	}
	if p.PCName != "" {
		fields["pc_name"] = p.PCName
	}
	if len(fields) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.Device{}).Where("system_id = ?", systemID).Updates(fields).Error
	return errors.Wrap(err, "update location")
}

// BindHardware — условный UPDATE: выигрывает только первый, кто застал NULL.
func (s *Store) BindHardware(ctx context.Context, systemID, hardwareID string) error {
	res := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("system_id = ? AND hardware_id IS NULL", systemID).
		Update("hardware_id", hardwareID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return tracker.ErrHardwareInUse
		}
		return errors.Wrap(res.Error, "bind hardware")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// ничего не обновили: слота нет либо он уже занят
	if _, err := s.GetDevice(ctx, systemID); err != nil {
		return err
	}
	return tracker.ErrAlreadyBound
}

func (s *Store) UnbindHardware(ctx context.Context, systemID string) error {
	err := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("system_id = ?", systemID).
		Updates(map[string]any{
			"hardware_id": nil,
			"status":      string(tracker.StatusOffline),
		}).Error
	return errors.Wrap(err, "unbind hardware")
}

func (s *Store) ListUnbound(ctx context.Context) ([]tracker.Device, error) {
	var rows []models.Device
	if err := s.db.WithContext(ctx).Where("hardware_id IS NULL").Order("system_id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list unbound")
	}
	return toDevices(rows), nil
}

func (s *Store) ListDevices(ctx context.Context, f tracker.DeviceFilter) ([]tracker.Device, error) {
	q := s.db.WithContext(ctx).Where("hardware_id IS NOT NULL")
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	if f.Search != "" {
		q = q.Where("LOWER(pc_name) LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(strings.ToLower(f.Search))+"%")
	}
	var rows []models.Device
	if err := q.Order("pc_name").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list devices")
	}
	return toDevices(rows), nil
}

func (s *Store) CountDevices(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Device{}).Count(&n).Error
	return n, errors.Wrap(err, "count devices")
}

func (s *Store) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("status = ? AND last_seen < ?", string(tracker.StatusOnline), cutoff).
		Update("status", string(tracker.StatusOffline))
	return res.RowsAffected, errors.Wrap(res.Error, "mark stale offline")
}

func (s *Store) ListStaleOnline(ctx context.Context, cutoff time.Time) ([]tracker.Device, error) {
	var rows []models.Device
	err := s.db.WithContext(ctx).
		Where("status = ? AND last_seen < ?", string(tracker.StatusOnline), cutoff).
		Order("system_id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list stale online")
	}
	return toDevices(rows), nil
}

func (s *Store) MarkOfflineIfStale(ctx context.Context, systemID string, cutoff time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("system_id = ? AND status = ? AND last_seen < ?", systemID, string(tracker.StatusOnline), cutoff).
		Update("status", string(tracker.StatusOffline))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "mark offline if stale")
	}
	return res.RowsAffected > 0, nil
}

func toDevices(rows []models.Device) []tracker.Device {
	out := make([]tracker.Device, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDevice(m))
	}
	return out
}
