package repo

import (
	"context"
	"time"

	"labguard/internal/models"
	"labguard/internal/tracker"

	"github.com/pkg/errors"
)

func (s *Store) HasSessionSince(ctx context.Context, deviceID string, since time.Time) (bool, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&models.DeviceSession{}).
		Where("device_id = ? AND start_time >= ?", deviceID, since).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, errors.Wrap(err, "has session since")
	}
	return len(ids) > 0, nil
}

func (s *Store) OpenSessions(ctx context.Context, deviceID string) ([]tracker.Session, error) {
	var rows []models.DeviceSession
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND end_time IS NULL", deviceID).
		Order("start_time").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "open sessions")
	}
	out := make([]tracker.Session, 0, len(rows))
	for _, m := range rows {
		out = append(out, toSession(m))
	}
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *tracker.Session) error {
	m := models.DeviceSession{
		DeviceID:  sess.DeviceID,
		StartTime: sess.StartTime,
		City:      sess.City,
		College:   sess.College,
		LabName:   sess.LabName,
		AvgScore:  sess.AvgScore,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return errors.Wrap(err, "create session")
	}
	sess.ID = m.ID
	return nil
}

func (s *Store) CloseSession(ctx context.Context, id uint64, end time.Time, durationSeconds int64) error {
	err := s.db.WithContext(ctx).Model(&models.DeviceSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"end_time":         end,
			"duration_seconds": durationSeconds,
		}).Error
	return errors.Wrap(err, "close session")
}

func (s *Store) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("start_time < ?", cutoff).Delete(&models.DeviceSession{})
	return res.RowsAffected, errors.Wrap(res.Error, "delete sessions")
}
