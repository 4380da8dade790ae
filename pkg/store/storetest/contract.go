// Package storetest holds the behaviour every store.Store implementation is tested against
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/store"
)

// Record builds a tram position record for tests
func Record(vehicleID string, routeID string, timestamp time.Time) ctdf.PositionRecord {
	routeType := ctdf.RouteTypeTram
	heading := 90

	record := ctdf.PositionRecord{
		VehicleID: vehicleID,
		RouteType: &routeType,
		Latitude:  -37.8136,
		Longitude: 144.9631,
		Heading:   &heading,
		Timestamp: timestamp.UTC().Truncate(time.Millisecond),
	}
	if routeID != "" {
		record.RouteID = &routeID
	}

	return record
}

// RunContractTests runs the shared behaviour tests, newStore must return an empty store
func RunContractTests(t *testing.T, newStore func(t *testing.T) store.Store) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	ctx := context.Background()

	t.Run("InsertIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		record := Record("A", "96", now.Add(-time.Minute))

		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{record}))
		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{record, record}))

		records, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour)})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "A", records[0].VehicleID)
		assert.True(t, records[0].Timestamp.Equal(record.Timestamp))
	})

	t.Run("InsertEmptyBatch", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InsertBatch(ctx, nil))
	})

	t.Run("OptionalFieldsRoundTrip", func(t *testing.T) {
		s := newStore(t)

		withHeading := Record("A", "96", now.Add(-time.Minute))
		zero := 0
		withHeading.Heading = &zero
		withHeading.DirectionID = &zero

		unknown := Record("B", "", now.Add(-time.Minute))
		unknown.Heading = nil
		unknown.RouteType = nil

		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{withHeading, unknown}))

		records, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour)})
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "A", records[0].VehicleID)
		require.NotNil(t, records[0].Heading)
		assert.Equal(t, 0, *records[0].Heading)
		require.NotNil(t, records[0].DirectionID)
		assert.Equal(t, 0, *records[0].DirectionID)
		require.NotNil(t, records[0].RouteType)
		assert.Equal(t, ctdf.RouteTypeTram, *records[0].RouteType)

		assert.Equal(t, "B", records[1].VehicleID)
		assert.Nil(t, records[1].Heading)
		assert.Nil(t, records[1].RouteID)
		assert.Nil(t, records[1].RouteType)
		assert.Nil(t, records[1].DirectionID)
	})

	t.Run("OrderingAndTieBreak", func(t *testing.T) {
		s := newStore(t)
		t1 := now.Add(-3 * time.Minute)
		t2 := now.Add(-2 * time.Minute)

		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{
			Record("C", "96", t2),
			Record("B", "96", t1),
			Record("A", "96", t2),
			Record("D", "96", t1),
		}))

		ascending, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), Order: store.OrderAscending})
		require.NoError(t, err)
		assert.Equal(t, []string{"B", "D", "A", "C"}, vehicleIDs(ascending))

		descending, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), Order: store.OrderDescending})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "C", "B", "D"}, vehicleIDs(descending))

		for i := 0; i < 3; i++ {
			again, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), Order: store.OrderDescending, Limit: 3})
			require.NoError(t, err)
			assert.Equal(t, []string{"A", "C", "B"}, vehicleIDs(again))
		}
	})

	t.Run("SinceIsInclusive", func(t *testing.T) {
		s := newStore(t)
		since := now.Add(-time.Hour)

		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{
			Record("A", "96", since),
			Record("B", "96", since.Add(-time.Millisecond)),
		}))

		records, err := s.QueryRange(ctx, store.Query{Since: since})
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, vehicleIDs(records))
	})

	t.Run("Filters", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{
			Record("A", "96", now.Add(-3*time.Minute)),
			Record("A", "96", now.Add(-2*time.Minute)),
			Record("B", "96", now.Add(-2*time.Minute)),
			Record("C", "16", now.Add(-time.Minute)),
			Record("D", "", now.Add(-time.Minute)),
		}))

		byVehicle, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), VehicleID: "A"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "A"}, vehicleIDs(byVehicle))

		byRoute, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), RouteID: "96"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "A", "B"}, vehicleIDs(byRoute))

		both, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), VehicleID: "C", RouteID: "96"})
		require.NoError(t, err)
		assert.Empty(t, both)

		limited, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("DeleteOlderThan", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{
			Record("OLD", "96", now.Add(-25*time.Hour)),
			Record("OLDER", "96", now.Add(-48*time.Hour)),
			Record("NEW", "96", now.Add(-23*time.Hour)),
		}))

		cutoff := now.Add(-24 * time.Hour)
		deleted, err := s.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		deleted, err = s.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted)

		records, err := s.QueryRange(ctx, store.Query{Since: now.Add(-72 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, []string{"NEW"}, vehicleIDs(records))
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.TotalRecords)
		assert.Nil(t, stats.OldestRecord)

		oldest := now.Add(-2 * time.Hour)
		newest := now.Add(-time.Minute)
		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{
			Record("A", "96", oldest),
			Record("A", "96", now.Add(-time.Hour)),
			Record("B", "16", newest),
		}))

		stats, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalRecords)
		assert.Equal(t, int64(2), stats.UniqueVehicles)
		require.NotNil(t, stats.OldestRecord)
		require.NotNil(t, stats.NewestRecord)
		assert.True(t, stats.OldestRecord.Equal(oldest))
		assert.True(t, stats.NewestRecord.Equal(newest))
	})

	t.Run("DistinctRoutes", func(t *testing.T) {
		s := newStore(t)

		bus := Record("D", "16", now.Add(-10*time.Minute))
		busType := ctdf.RouteTypeBus
		bus.RouteType = &busType

		require.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{
			Record("A", "96", now.Add(-30*time.Minute)),
			Record("B", "96", now.Add(-20*time.Minute)),
			Record("C", "16", now.Add(-time.Hour)),
			bus,
			Record("E", "", now.Add(-5*time.Minute)),
			Record("F", "11", now.Add(-3*time.Hour)),
		}))

		routes, err := store.DistinctRoutes(ctx, s, now.Add(-2*time.Hour))
		require.NoError(t, err)
		assert.ElementsMatch(t, []ctdf.Route{
			{RouteID: "96", RouteType: ctdf.RouteTypeTram},
			{RouteID: "16", RouteType: ctdf.RouteTypeTram},
			{RouteID: "16", RouteType: ctdf.RouteTypeBus},
		}, routes)

		routes, err = store.DistinctRoutes(ctx, s, now)
		require.NoError(t, err)
		assert.Empty(t, routes)
	})

	t.Run("ConcurrentUse", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup

		for worker := 0; worker < 4; worker++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					record := Record(fmt.Sprintf("V%d", worker), "96", now.Add(-time.Duration(i)*time.Second))
					assert.NoError(t, s.InsertBatch(ctx, []ctdf.PositionRecord{record}))
					_, err := s.QueryRange(ctx, store.Query{Since: now.Add(-time.Hour), Limit: 10})
					assert.NoError(t, err)
				}
			}(worker)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := s.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
				assert.NoError(t, err)
			}
		}()

		wg.Wait()

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(100), stats.TotalRecords)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func vehicleIDs(records []ctdf.PositionRecord) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.VehicleID)
	}
	return ids
}
