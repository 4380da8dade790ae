package store

import (
	"context"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
)

type timeoutStore struct {
	store   Store
	timeout time.Duration
}

// WithTimeout bounds every call on the wrapped store by the timeout, on top of any deadline the
// caller's context already has
func WithTimeout(s Store, timeout time.Duration) Store {
	if timeout <= 0 {
		return s
	}

	return &timeoutStore{store: s, timeout: timeout}
}

func (t *timeoutStore) InsertBatch(ctx context.Context, records []ctdf.PositionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.store.InsertBatch(ctx, records)
}

func (t *timeoutStore) QueryRange(ctx context.Context, query Query) ([]ctdf.PositionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.store.QueryRange(ctx, query)
}

func (t *timeoutStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.store.DeleteOlderThan(ctx, cutoff)
}

func (t *timeoutStore) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.store.Stats(ctx)
}

func (t *timeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.store.Ping(ctx)
}

func (t *timeoutStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return t.store.Close(ctx)
}

func (t *timeoutStore) DistinctRoutes(ctx context.Context, since time.Time) ([]ctdf.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return DistinctRoutes(ctx, t.store, since)
}
