package pgstore

import (
	"context"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 500

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&ctdf.PositionRecord{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) InsertBatch(ctx context.Context, records []ctdf.PositionRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&records, insertBatchSize).Error
}

func (s *Store) QueryRange(ctx context.Context, query store.Query) ([]ctdf.PositionRecord, error) {
	tx := s.db.WithContext(ctx).
		Where(clause.Gte{Column: "timestamp", Value: query.Since})

	if query.VehicleID != "" {
		tx = tx.Where(clause.Eq{Column: "vehicle_id", Value: query.VehicleID})
	}
	if query.RouteID != "" {
		tx = tx.Where(clause.Eq{Column: "route_id", Value: query.RouteID})
	}

	tx = tx.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: query.Order == store.OrderDescending}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "vehicle_id"}})

	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}

	records := []ctdf.PositionRecord{}
	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}

	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}

	return records, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where(clause.Lt{Column: "timestamp", Value: cutoff}).
		Delete(&ctdf.PositionRecord{})

	return result.RowsAffected, result.Error
}

type statsRow struct {
	TotalRecords   int64
	UniqueVehicles int64
	OldestRecord   *time.Time
	NewestRecord   *time.Time
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var row statsRow

	err := s.db.WithContext(ctx).
		Model(&ctdf.PositionRecord{}).
		Select(`COUNT(*) AS total_records, COUNT(DISTINCT vehicle_id) AS unique_vehicles, MIN("timestamp") AS oldest_record, MAX("timestamp") AS newest_record`).
		Scan(&row).Error
	if err != nil {
		return store.Stats{}, err
	}

	stats := store.Stats{
		TotalRecords:   row.TotalRecords,
		UniqueVehicles: row.UniqueVehicles,
	}
	if row.OldestRecord != nil {
		oldest := row.OldestRecord.UTC()
		stats.OldestRecord = &oldest
	}
	if row.NewestRecord != nil {
		newest := row.NewestRecord.UTC()
		stats.NewestRecord = &newest
	}

	return stats, nil
}

type routeRow struct {
	RouteID   string
	RouteType ctdf.RouteType
}

func (s *Store) DistinctRoutes(ctx context.Context, since time.Time) ([]ctdf.Route, error) {
	var rows []routeRow

	err := s.db.WithContext(ctx).
		Model(&ctdf.PositionRecord{}).
		Distinct("route_id", "route_type").
		Where(clause.Gte{Column: "timestamp", Value: since}).
		Where("route_id IS NOT NULL AND route_id <> '' AND route_type IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	routes := make([]ctdf.Route, 0, len(rows))
	for _, row := range rows {
		routes = append(routes, ctdf.Route{RouteID: row.RouteID, RouteType: row.RouteType})
	}

	return routes, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
