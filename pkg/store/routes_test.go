package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/store"
)

// listingStore answers DistinctRoutes itself and fails any record scan
type listingStore struct {
	*store.MemoryStore
	since time.Time
}

func (s *listingStore) QueryRange(ctx context.Context, query store.Query) ([]ctdf.PositionRecord, error) {
	panic("routes should not be found by scanning records")
}

func (s *listingStore) DistinctRoutes(ctx context.Context, since time.Time) ([]ctdf.Route, error) {
	s.since = since
	return []ctdf.Route{{RouteID: "96", RouteType: ctdf.RouteTypeTram}}, nil
}

func TestDistinctRoutesUsesRouteLister(t *testing.T) {
	since := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
	lister := &listingStore{MemoryStore: store.NewMemoryStore()}

	for _, s := range []store.Store{lister, store.WithTimeout(lister, time.Second)} {
		routes, err := store.DistinctRoutes(context.Background(), s, since)
		require.NoError(t, err)
		assert.Equal(t, []ctdf.Route{{RouteID: "96", RouteType: ctdf.RouteTypeTram}}, routes)
		assert.Equal(t, since, lister.since)
	}
}
