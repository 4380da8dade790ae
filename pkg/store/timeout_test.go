package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/store"
	"github.com/travigo/vehiclehistory/pkg/store/storetest"
)

type stalledStore struct {
	store.MemoryStore
}

func (s *stalledStore) InsertBatch(ctx context.Context, records []ctdf.PositionRecord) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTimeoutStore(t *testing.T) {
	storetest.RunContractTests(t, func(t *testing.T) store.Store {
		return store.WithTimeout(store.NewMemoryStore(), time.Second)
	})
}

func TestTimeoutStoreBoundsStalledCalls(t *testing.T) {
	s := store.WithTimeout(&stalledStore{}, 50*time.Millisecond)

	start := time.Now()
	err := s.InsertBatch(context.Background(), []ctdf.PositionRecord{storetest.Record("A", "96", time.Now())})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWithTimeoutDisabled(t *testing.T) {
	memory := store.NewMemoryStore()
	assert.Same(t, memory, store.WithTimeout(memory, 0))
}
