package store

import (
	"context"
	"sync"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// MemoryStore keeps records in process, used for local runs and tests
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[ctdf.PositionKey]ctdf.PositionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[ctdf.PositionKey]ctdf.PositionRecord{},
	}
}

func (m *MemoryStore) InsertBatch(ctx context.Context, records []ctdf.PositionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, record := range records {
		key := record.Key()
		if _, exists := m.records[key]; !exists {
			m.records[key] = record
		}
	}

	return nil
}

func (m *MemoryStore) QueryRange(ctx context.Context, query Query) ([]ctdf.PositionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mutex.RLock()
	var records []ctdf.PositionRecord
	for _, record := range m.records {
		if query.Matches(&record) {
			records = append(records, record)
		}
	}
	m.mutex.RUnlock()

	slices.SortFunc(records, func(a, b ctdf.PositionRecord) int {
		return CompareRecords(&a, &b, query.Order)
	})

	if query.Limit > 0 && len(records) > query.Limit {
		records = records[:query.Limit]
	}

	return records, nil
}

func (m *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	var deleted int64
	for key, record := range m.records {
		if record.Timestamp.Before(cutoff) {
			delete(m.records, key)
			deleted++
		}
	}

	return deleted, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := Stats{TotalRecords: int64(len(m.records))}
	vehicles := map[string]bool{}

	for _, record := range m.records {
		vehicles[record.VehicleID] = true

		timestamp := record.Timestamp
		if stats.OldestRecord == nil || timestamp.Before(*stats.OldestRecord) {
			stats.OldestRecord = &timestamp
		}
		if stats.NewestRecord == nil || timestamp.After(*stats.NewestRecord) {
			stats.NewestRecord = &timestamp
		}
	}
	stats.UniqueVehicles = int64(len(vehicles))

	return stats, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
