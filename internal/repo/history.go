package repo

import (
	"context"

	"labguard/internal/models"
	"labguard/internal/tracker"

	"github.com/pkg/errors"
	"gorm.io/gorm/clause"
)

func (s *Store) GetDailySummary(ctx context.Context, deviceID, date string) (tracker.DailySummary, error) {
	d, err := parseDate(date)
	if err != nil {
		return tracker.DailySummary{}, err
	}
	var m models.DeviceDailyHistory
	err = s.db.WithContext(ctx).
		Where("device_id = ? AND history_date = ?", deviceID, d).
		First(&m).Error
	if err != nil {
		return tracker.DailySummary{}, notFound(err, "get daily summary")
	}
	return toSummary(m), nil
}

// UpsertDailySummary перезаписывает строку (device_id, history_date) целиком.
// Слияние со старыми значениями делает tracker до вызова.
func (s *Store) UpsertDailySummary(ctx context.Context, sum tracker.DailySummary) error {
	d, err := parseDate(sum.Date)
	if err != nil {
		return err
	}
	m := models.DeviceDailyHistory{
		DeviceID:       sum.DeviceID,
		HistoryDate:    d,
		AvgScore:       sum.AvgScore,
		RuntimeMinutes: sum.RuntimeMinutes,
		StartTime:      sum.StartTime,
		EndTime:        sum.EndTime,
		City:           sum.City,
		College:        sum.College,
		LabName:        sum.LabName,
		AppUsage:       usageJSON(sum.AppUsage),
		RolledOver:     sum.RolledOver,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "history_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"avg_score", "runtime_minutes", "start_time", "end_time",
			"city", "college", "lab_name", "app_usage", "rolled_over", "updated_at",
		}),
	}).Create(&m).Error
	return errors.Wrap(err, "upsert daily summary")
}

func (s *Store) ListDailySummaries(ctx context.Context, deviceID string, limit int) ([]tracker.DailySummary, error) {
	q := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Order("history_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.DeviceDailyHistory
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list daily summaries")
	}
	out := make([]tracker.DailySummary, 0, len(rows))
	for _, m := range rows {
		out = append(out, toSummary(m))
	}
	return out, nil
}
