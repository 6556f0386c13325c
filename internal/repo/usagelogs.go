package repo

import (
	"context"

	"labguard/internal/models"
	"labguard/internal/tracker"

	"github.com/pkg/errors"
	"gorm.io/gorm/clause"
)

// UpsertUsageLogs пишет пачку одним INSERT ... ON CONFLICT; повтор ключа заменяет seconds_added.
func (s *Store) UpsertUsageLogs(ctx context.Context, entries []tracker.UsageLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]models.AppUsageLog, 0, len(entries))
	for _, e := range entries {
		d, err := parseDate(e.Date)
		if err != nil {
			return err
		}
		rows = append(rows, models.AppUsageLog{
			DeviceID:     e.DeviceID,
			Date:         d,
			AppName:      e.AppName,
			SecondsAdded: e.SecondsAdded,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "date"}, {Name: "app_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"seconds_added"}),
	}).Create(&rows).Error
	return errors.Wrap(err, "upsert usage logs")
}

func (s *Store) DeleteUsageLogsBefore(ctx context.Context, date string) (int64, error) {
	d, err := parseDate(date)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("date < ?", d).Delete(&models.AppUsageLog{})
	return res.RowsAffected, errors.Wrap(res.Error, "delete usage logs")
}
