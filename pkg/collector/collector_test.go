package collector

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/normalizer"
	"github.com/travigo/vehiclehistory/pkg/query"
	"github.com/travigo/vehiclehistory/pkg/store"
	"github.com/travigo/vehiclehistory/pkg/upstream"
)

var victoria = ctdf.BoundingBox{MinLatitude: -39.5, MinLongitude: 140.8, MaxLatitude: -33.8, MaxLongitude: 150.2}

// scriptedUpstream returns one prepared response per Fetch call, then nothing
type scriptedUpstream struct {
	mutex  sync.Mutex
	cycles [][]upstream.RawReport
	errs   []error
	calls  int
}

func (s *scriptedUpstream) Fetch(ctx context.Context, routeTypes []ctdf.RouteType) ([]upstream.RawReport, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	call := s.calls
	s.calls++

	var err error
	if call < len(s.errs) {
		err = s.errs[call]
	}
	if call < len(s.cycles) {
		return s.cycles[call], err
	}
	return nil, err
}

type flakyStore struct {
	store.Store
	failures  atomic.Int32
	attempts  atomic.Int32
	failPrune bool
}

func (f *flakyStore) InsertBatch(ctx context.Context, records []ctdf.PositionRecord) error {
	f.attempts.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return errors.New("connection reset")
	}
	return f.Store.InsertBatch(ctx, records)
}

func (f *flakyStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.failPrune {
		return 0, errors.New("connection reset")
	}
	return f.Store.DeleteOlderThan(ctx, cutoff)
}

type recordingEvents struct {
	mutex  sync.Mutex
	events []*CycleEvent
}

func (r *recordingEvents) RecordCycle(event *CycleEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
}

func report(vehicleID string, latitude float64, longitude float64, timestamp time.Time) upstream.RawReport {
	routeType := ctdf.RouteTypeTram
	return upstream.RawReport{
		VehicleID:  upstream.String(vehicleID),
		RouteID:    upstream.String("96"),
		RouteType:  &routeType,
		Latitude:   upstream.Float64(latitude),
		Longitude:  upstream.Float64(longitude),
		Timestamp:  &timestamp,
		ReceivedAt: timestamp,
	}
}

func newTestCollector(up upstream.Client, s store.Store, now time.Time) *Collector {
	return &Collector{
		Upstream:          up,
		Normalizer:        &normalizer.Normalizer{Bounds: victoria},
		Store:             s,
		RouteTypes:        ctdf.AllRouteTypes,
		PollInterval:      30 * time.Second,
		RetentionWindow:   24 * time.Hour,
		RetentionInterval: time.Hour,
		WriteAttempts:     3,
		WriteBackoff:      time.Millisecond,
		Now:               func() time.Time { return now },
	}
}

func TestEndToEndThreeCycles(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	T := now.Add(-10 * time.Minute)

	up := &scriptedUpstream{
		cycles: [][]upstream.RawReport{
			{report("A", -37.81, 144.96, T)},
			{report("A", -37.81, 144.96, T), report("B", -37.82, 144.97, T.Add(30*time.Second))},
			{report("A", -37.80, 144.95, T.Add(60*time.Second))},
		},
	}
	memory := store.NewMemoryStore()
	collector := newTestCollector(up, memory, now)

	first := collector.PollOnce(ctx)
	assert.Equal(t, 1, first.Written)
	second := collector.PollOnce(ctx)
	assert.Equal(t, 2, second.Written)
	third := collector.PollOnce(ctx)
	assert.Equal(t, 1, third.Written)

	stats, err := memory.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRecords)

	service := query.NewService(memory)
	service.Now = func() time.Time { return now }

	snapshot, err := service.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Vehicles, 2)
	assert.Equal(t, "A", snapshot.Vehicles[0].VehicleID)
	assert.True(t, snapshot.Vehicles[0].Timestamp.Equal(T.Add(60*time.Second)))
	assert.Equal(t, "B", snapshot.Vehicles[1].VehicleID)
	assert.True(t, snapshot.Vehicles[1].Timestamp.Equal(T.Add(30*time.Second)))

	history, err := service.History(ctx, query.HistoryRequest{VehicleID: "A"})
	require.NoError(t, err)
	require.Len(t, history.Vehicles["A"], 2)
	assert.True(t, history.Vehicles["A"][0].Timestamp.Equal(T))
	assert.True(t, history.Vehicles["A"][1].Timestamp.Equal(T.Add(60*time.Second)))
}

func TestPollOnceDeduplicatesWithinCycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	T := now.Add(-time.Minute)

	up := &scriptedUpstream{
		cycles: [][]upstream.RawReport{{
			report("A", -37.81, 144.96, T),
			report("A", -37.81, 144.96, T),
			report("A", -37.81, 144.96, T.Add(time.Second)),
			report("", -37.81, 144.96, T),
			report("C", 51.5, -0.12, T),
		}},
	}
	events := &recordingEvents{}
	collector := newTestCollector(up, store.NewMemoryStore(), now)
	collector.Events = events

	result := collector.PollOnce(context.Background())

	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 2, result.Rejected)
	assert.Equal(t, map[string]int{"missing_vehicle_id": 1, "out_of_bounds": 1}, result.RejectReasons)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, 1, result.Attempts)

	require.Len(t, events.events, 1)
	event := events.events[0]
	assert.Equal(t, 2, event.Written)
	assert.Equal(t, []string{"Train", "Tram", "Bus", "Regional"}, event.RouteTypes)
	assert.Empty(t, event.Error)
}

func TestPollOnceRetriesWrites(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	up := &scriptedUpstream{cycles: [][]upstream.RawReport{{report("A", -37.81, 144.96, now)}}}

	flaky := &flakyStore{Store: store.NewMemoryStore()}
	flaky.failures.Store(2)

	result := newTestCollector(up, flaky, now).PollOnce(context.Background())

	assert.NoError(t, result.WriteError)
	assert.False(t, result.Dropped)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 1, result.Written)
}

func TestPollOnceDropsBatchAfterRetries(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	up := &scriptedUpstream{cycles: [][]upstream.RawReport{
		{report("A", -37.81, 144.96, now)},
		{report("B", -37.81, 144.96, now)},
	}}

	flaky := &flakyStore{Store: store.NewMemoryStore()}
	flaky.failures.Store(3)
	events := &recordingEvents{}

	collector := newTestCollector(up, flaky, now)
	collector.Events = events

	result := collector.PollOnce(context.Background())
	assert.Error(t, result.WriteError)
	assert.True(t, result.Dropped)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, int32(3), flaky.attempts.Load())

	// the dropped batch is not carried into the next cycle
	next := collector.PollOnce(context.Background())
	assert.NoError(t, next.WriteError)
	assert.Equal(t, 1, next.Written)

	stats, err := flaky.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRecords)

	require.Len(t, events.events, 2)
	assert.True(t, events.events[0].Dropped)
	assert.Contains(t, events.events[0].Error, "connection reset")
}

func TestPollOncePartialFetch(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	up := &scriptedUpstream{
		cycles: [][]upstream.RawReport{{report("A", -37.81, 144.96, now)}},
		errs:   []error{&upstream.RouteTypeError{RouteType: ctdf.RouteTypeBus, Err: errors.New("timeout")}},
	}

	result := newTestCollector(up, store.NewMemoryStore(), now).PollOnce(context.Background())

	assert.Error(t, result.FetchError)
	assert.Equal(t, 1, result.Written)
}

func TestPollOnceDryRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	up := &scriptedUpstream{cycles: [][]upstream.RawReport{{report("A", -37.81, 144.96, now)}}}

	collector := newTestCollector(up, nil, now)
	collector.DryRun = true

	result := collector.PollOnce(context.Background())
	assert.Equal(t, 0, result.Written)
	assert.Equal(t, 0, result.Attempts)

	deleted, err := collector.PruneOnce(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestPruneOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	up := &scriptedUpstream{cycles: [][]upstream.RawReport{{
		report("OLD", -37.81, 144.96, now.Add(-25*time.Hour)),
		report("RECENT", -37.81, 144.96, now.Add(-23*time.Hour)),
	}}}

	memory := store.NewMemoryStore()
	collector := newTestCollector(up, memory, now)
	collector.PollOnce(ctx)

	deleted, err := collector.PruneOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = collector.PruneOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	records, err := memory.QueryRange(ctx, store.Query{Since: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "RECENT", records[0].VehicleID)
}

func TestPruneOnceFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	flaky := &flakyStore{Store: store.NewMemoryStore(), failPrune: true}

	_, err := newTestCollector(&scriptedUpstream{}, flaky, now).PruneOnce(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	now := time.Now()
	up := &scriptedUpstream{cycles: [][]upstream.RawReport{{report("A", -37.81, 144.96, now)}}}
	memory := store.NewMemoryStore()

	collector := newTestCollector(up, memory, now)
	collector.PollInterval = 10 * time.Millisecond
	collector.RetentionInterval = 10 * time.Millisecond
	collector.Now = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		collector.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		up.mutex.Lock()
		defer up.mutex.Unlock()
		return up.calls >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}

	stats, err := memory.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRecords)
}

type fakeIndexer struct {
	indexName string
	document  []byte
}

func (f *fakeIndexer) IndexRequest(indexName string, document io.ReadSeeker) {
	f.indexName = indexName
	f.document, _ = io.ReadAll(document)
}

func TestElasticEventRecorder(t *testing.T) {
	indexer := &fakeIndexer{}
	recorder := &ElasticEventRecorder{Indexer: indexer}

	recorder.RecordCycle(newCycleEvent(
		time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		[]ctdf.RouteType{ctdf.RouteTypeTram},
		CycleResult{Fetched: 4, Written: 3, Rejected: 1, RejectReasons: map[string]int{"out_of_bounds": 1}, Attempts: 1, Duration: 1500 * time.Millisecond},
	))

	assert.Equal(t, "vehiclehistory-ingest-events-2026-9", indexer.indexName)
	assert.JSONEq(t, `{
		"timestamp": "2026-03-01T09:30:00Z",
		"routetypes": ["Tram"],
		"fetched": 4,
		"rejected": 1,
		"rejectreasons": {"out_of_bounds": 1},
		"duplicates": 0,
		"written": 3,
		"attempts": 1,
		"dropped": false,
		"durationms": 1500
	}`, string(indexer.document))
}
